// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

// Package boltevents provides the domain types for an Agent-to-Agent (A2A)
// task service built around an append-only, per-task event log. Tasks carry a
// lifecycle state machine driven by the events recorded in their log; the log
// itself lives in the stream package and the serving surface in server.
package boltevents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the lifecycle state of a Task.
type TaskState string

const (
	// TaskStateSubmitted indicates the task has been submitted and not yet
	// picked up by an agent.
	TaskStateSubmitted TaskState = "submitted"

	// TaskStateWorking indicates an agent is working on the task.
	TaskStateWorking TaskState = "working"

	// TaskStateCompleted indicates the task finished successfully.
	TaskStateCompleted TaskState = "completed"

	// TaskStateFailed indicates the task finished with an error.
	TaskStateFailed TaskState = "failed"

	// TaskStateCanceled indicates the task was canceled before completion.
	TaskStateCanceled TaskState = "canceled"

	// TaskStateRejected indicates the agent refused the task.
	TaskStateRejected TaskState = "rejected"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	}
	return false
}

// Valid reports whether s is a known task state.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateCompleted,
		TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	}
	return false
}

// Part is a piece of a message or artifact. Text parts carry Text, data
// parts carry an arbitrary JSON object in Data.
type Part struct {
	Type string         `json:"type"`
	Text string         `json:"text,omitzero"`
	Data map[string]any `json:"data,omitzero"`
}

// Part types.
const (
	PartTypeText = "text"
	PartTypeData = "data"
)

// Validate ensures the Part is valid.
func (p Part) Validate() error {
	if p.Type == "" {
		return fmt.Errorf("part type cannot be empty")
	}
	return nil
}

// Message represents a single message in a task conversation, from either
// the user or the agent.
type Message struct {
	MessageID string `json:"messageId,omitzero"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
}

// Message roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Validate ensures the Message is valid.
func (m Message) Validate() error {
	if m.Role == "" {
		return fmt.Errorf("message role cannot be empty")
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message must have at least one part")
	}
	for i, part := range m.Parts {
		if err := part.Validate(); err != nil {
			return fmt.Errorf("message part %d: %w", i, err)
		}
	}
	return nil
}

// Text returns the text of the first text part, or the empty string.
func (m Message) Text() string {
	for _, part := range m.Parts {
		if part.Type == PartTypeText {
			return part.Text
		}
	}
	return ""
}

// Artifact represents an output produced by an agent during a task.
type Artifact struct {
	Name     string         `json:"name"`
	Parts    []Part         `json:"parts"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// Validate ensures the Artifact is valid.
func (a Artifact) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}
	if len(a.Parts) == 0 {
		return fmt.Errorf("artifact must have at least one part")
	}
	for i, part := range a.Parts {
		if err := part.Validate(); err != nil {
			return fmt.Errorf("artifact part %d: %w", i, err)
		}
	}
	return nil
}

// TaskStatus is the current status of a task: its state plus the optional
// final message recorded when the state was entered.
type TaskStatus struct {
	State   TaskState `json:"state"`
	Message *Message  `json:"message,omitzero"`
}

// Validate ensures the TaskStatus is valid.
func (ts TaskStatus) Validate() error {
	if !ts.State.Valid() {
		return fmt.Errorf("invalid task state: %q", ts.State)
	}
	if ts.Message != nil {
		if err := ts.Message.Validate(); err != nil {
			return fmt.Errorf("status message: %w", err)
		}
	}
	return nil
}

// Task represents one unit of agent work with a lifecycle and an associated
// event log. Tasks are created on submission and mutated only by the task
// manager reacting to log events, or by an explicit cancel request.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId,omitzero"`
	Status    TaskStatus     `json:"status"`
	History   []Message      `json:"history"`
	Artifacts []Artifact     `json:"artifacts,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`
	CreatedAt time.Time      `json:"createdAt,omitzero"`
	UpdatedAt time.Time      `json:"updatedAt,omitzero"`
}

// Validate ensures the Task is valid.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if err := t.Status.Validate(); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	for i, msg := range t.History {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("task %s history message %d: %w", t.ID, i, err)
		}
	}
	for i, artifact := range t.Artifacts {
		if err := artifact.Validate(); err != nil {
			return fmt.Errorf("task %s artifact %d: %w", t.ID, i, err)
		}
	}
	return nil
}

// NewTask creates a Task in the submitted state from the initial user
// message. The message is recorded as the first entry of the task history.
// Empty taskID or contextID are filled with generated IDs.
func NewTask(message Message, taskID, contextID string) (*Task, error) {
	if err := message.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request message: %w", err)
	}

	if taskID == "" {
		taskID = NewTaskID()
	}
	if contextID == "" {
		contextID = NewContextID()
	}
	if message.MessageID == "" {
		message.MessageID = NewMessageID()
	}

	now := time.Now().UTC()
	return &Task{
		ID:        taskID,
		ContextID: contextID,
		Status:    TaskStatus{State: TaskStateSubmitted},
		History:   []Message{message},
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Conversation groups related tasks under one context.
type Conversation struct {
	ContextID   string    `json:"contextId"`
	AgentID     string    `json:"agentId"`
	Title       string    `json:"title,omitzero"`
	IsStreaming bool      `json:"isStreaming"`
	StreamURL   string    `json:"streamUrl,omitzero"`
	TaskCount   int       `json:"taskCount"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// Validate ensures the Conversation is valid.
func (c *Conversation) Validate() error {
	if c.ContextID == "" {
		return fmt.Errorf("conversation context ID cannot be empty")
	}
	if c.AgentID == "" {
		return fmt.Errorf("conversation agent ID cannot be empty")
	}
	return nil
}

// NewTaskID returns a new task identifier.
func NewTaskID() string { return "task-" + shortID() }

// NewContextID returns a new conversation context identifier.
func NewContextID() string { return "ctx-" + shortID() }

// NewMessageID returns a new message identifier.
func NewMessageID() string { return "msg-" + shortID() }

func shortID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:4])
}
