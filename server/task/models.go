// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	boltevents "github.com/daniprol/bolt-events"
)

// TaskStatusJSON provides JSON serialization for TaskStatus in database
// columns.
type TaskStatusJSON struct {
	boltevents.TaskStatus
}

// Value implements the driver.Valuer interface for database storage.
func (ts TaskStatusJSON) Value() (driver.Value, error) {
	if ts.TaskStatus.State == "" {
		return nil, nil
	}
	return json.Marshal(ts.TaskStatus)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (ts *TaskStatusJSON) Scan(value any) error {
	if value == nil {
		*ts = TaskStatusJSON{}
		return nil
	}

	bytes, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into TaskStatusJSON: %w", err)
	}

	var status boltevents.TaskStatus
	if err := json.Unmarshal(bytes, &status); err != nil {
		return fmt.Errorf("cannot unmarshal TaskStatusJSON: %w", err)
	}

	ts.TaskStatus = status
	return nil
}

// ArtifactSliceJSON provides JSON serialization for []Artifact in database
// columns.
type ArtifactSliceJSON struct {
	Artifacts []boltevents.Artifact
}

// Value implements the driver.Valuer interface for database storage.
func (as ArtifactSliceJSON) Value() (driver.Value, error) {
	if as.Artifacts == nil {
		return nil, nil
	}
	return json.Marshal(as.Artifacts)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (as *ArtifactSliceJSON) Scan(value any) error {
	if value == nil {
		*as = ArtifactSliceJSON{}
		return nil
	}

	bytes, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into ArtifactSliceJSON: %w", err)
	}

	var artifacts []boltevents.Artifact
	if err := json.Unmarshal(bytes, &artifacts); err != nil {
		return fmt.Errorf("cannot unmarshal ArtifactSliceJSON: %w", err)
	}

	as.Artifacts = artifacts
	return nil
}

// MessageSliceJSON provides JSON serialization for []Message in database
// columns.
type MessageSliceJSON struct {
	Messages []boltevents.Message
}

// Value implements the driver.Valuer interface for database storage.
func (ms MessageSliceJSON) Value() (driver.Value, error) {
	if ms.Messages == nil {
		return nil, nil
	}
	return json.Marshal(ms.Messages)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (ms *MessageSliceJSON) Scan(value any) error {
	if value == nil {
		*ms = MessageSliceJSON{}
		return nil
	}

	bytes, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into MessageSliceJSON: %w", err)
	}

	var messages []boltevents.Message
	if err := json.Unmarshal(bytes, &messages); err != nil {
		return fmt.Errorf("cannot unmarshal MessageSliceJSON: %w", err)
	}

	ms.Messages = messages
	return nil
}

// MetadataJSON provides JSON serialization for metadata maps in database
// columns.
type MetadataJSON struct {
	Fields map[string]any
}

// Value implements the driver.Valuer interface for database storage.
func (m MetadataJSON) Value() (driver.Value, error) {
	if m.Fields == nil {
		return nil, nil
	}
	return json.Marshal(m.Fields)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (m *MetadataJSON) Scan(value any) error {
	if value == nil {
		*m = MetadataJSON{}
		return nil
	}

	bytes, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into MetadataJSON: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(bytes, &fields); err != nil {
		return fmt.Errorf("cannot unmarshal MetadataJSON: %w", err)
	}

	m.Fields = fields
	return nil
}

func jsonBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}

// TaskModel is the database row for a task. Documents, artifacts and
// history are stored as JSON columns so the schema survives new part
// types without migrations.
type TaskModel struct {
	ID        string            `gorm:"primaryKey;size:64" json:"id"`
	ContextID string            `gorm:"size:64;index;not null" json:"contextId"`
	Status    TaskStatusJSON    `gorm:"type:json" json:"status"`
	History   MessageSliceJSON  `gorm:"type:json" json:"history"`
	Artifacts ArtifactSliceJSON `gorm:"type:json" json:"artifacts"`
	Metadata  MetadataJSON      `gorm:"type:json" json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// TableName returns the table name for the TaskModel.
func (TaskModel) TableName() string {
	return "tasks"
}

// Validate ensures the TaskModel is in a valid state.
func (tm *TaskModel) Validate() error {
	if tm.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if tm.ContextID == "" {
		return fmt.Errorf("task context ID cannot be empty")
	}
	if err := tm.Status.TaskStatus.Validate(); err != nil {
		return fmt.Errorf("task status is invalid: %w", err)
	}
	for i, message := range tm.History.Messages {
		if err := message.Validate(); err != nil {
			return fmt.Errorf("history message at index %d is invalid: %w", i, err)
		}
	}
	for i, artifact := range tm.Artifacts.Artifacts {
		if err := artifact.Validate(); err != nil {
			return fmt.Errorf("artifact at index %d is invalid: %w", i, err)
		}
	}
	return nil
}

// String returns a string representation of the TaskModel for debugging.
func (tm *TaskModel) String() string {
	return fmt.Sprintf("TaskModel{ID: %s, ContextID: %s, Status: %s}",
		tm.ID, tm.ContextID, tm.Status.TaskStatus.State)
}

// BeforeCreate is a GORM hook called before creating a record.
func (tm *TaskModel) BeforeCreate(tx *gorm.DB) error {
	return tm.Validate()
}

// BeforeUpdate is a GORM hook called before updating a record.
func (tm *TaskModel) BeforeUpdate(tx *gorm.DB) error {
	return tm.Validate()
}

// NewTaskModelFromTask converts a Task to its database row.
func NewTaskModelFromTask(task *boltevents.Task) (*TaskModel, error) {
	if task == nil {
		return nil, fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("task is invalid: %w", err)
	}

	return &TaskModel{
		ID:        task.ID,
		ContextID: task.ContextID,
		Status:    TaskStatusJSON{task.Status},
		History:   MessageSliceJSON{Messages: append([]boltevents.Message(nil), task.History...)},
		Artifacts: ArtifactSliceJSON{Artifacts: append([]boltevents.Artifact(nil), task.Artifacts...)},
		Metadata:  MetadataJSON{Fields: task.Metadata},
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}, nil
}

// ToTask converts a database row back to a Task.
func (tm *TaskModel) ToTask() (*boltevents.Task, error) {
	if err := tm.Validate(); err != nil {
		return nil, fmt.Errorf("task model is invalid: %w", err)
	}

	return &boltevents.Task{
		ID:        tm.ID,
		ContextID: tm.ContextID,
		Status:    tm.Status.TaskStatus,
		History:   append([]boltevents.Message(nil), tm.History.Messages...),
		Artifacts: append([]boltevents.Artifact(nil), tm.Artifacts.Artifacts...),
		Metadata:  tm.Metadata.Fields,
		CreatedAt: tm.CreatedAt,
		UpdatedAt: tm.UpdatedAt,
	}, nil
}

// ConversationModel is the database row for a conversation.
type ConversationModel struct {
	ContextID   string    `gorm:"primaryKey;size:64" json:"contextId"`
	AgentID     string    `gorm:"size:64;index;not null" json:"agentId"`
	Title       string    `gorm:"size:255" json:"title"`
	IsStreaming bool      `json:"isStreaming"`
	StreamURL   string    `gorm:"size:255" json:"streamUrl"`
	TaskCount   int       `json:"taskCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName returns the table name for the ConversationModel.
func (ConversationModel) TableName() string {
	return "conversations"
}

// NewConversationModel converts a Conversation to its database row.
func NewConversationModel(conv *boltevents.Conversation) (*ConversationModel, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation cannot be nil")
	}
	if err := conv.Validate(); err != nil {
		return nil, fmt.Errorf("conversation is invalid: %w", err)
	}

	return &ConversationModel{
		ContextID:   conv.ContextID,
		AgentID:     conv.AgentID,
		Title:       conv.Title,
		IsStreaming: conv.IsStreaming,
		StreamURL:   conv.StreamURL,
		TaskCount:   conv.TaskCount,
		CreatedAt:   conv.CreatedAt,
		UpdatedAt:   conv.UpdatedAt,
	}, nil
}

// ToConversation converts a database row back to a Conversation.
func (cm *ConversationModel) ToConversation() *boltevents.Conversation {
	return &boltevents.Conversation{
		ContextID:   cm.ContextID,
		AgentID:     cm.AgentID,
		Title:       cm.Title,
		IsStreaming: cm.IsStreaming,
		StreamURL:   cm.StreamURL,
		TaskCount:   cm.TaskCount,
		CreatedAt:   cm.CreatedAt,
		UpdatedAt:   cm.UpdatedAt,
	}
}
