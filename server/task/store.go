// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

// Package task provides persistence for tasks, conversations and push
// notification configurations. Stores are best-effort collaborators of the
// event log: updates here are not transactional with log appends, and the
// log remains the authoritative record from which task state can be
// rebuilt.
package task

import (
	"context"

	boltevents "github.com/daniprol/bolt-events"
)

// TaskStore defines the interface for task persistence operations.
// Implementations are free to back it with memory, a database or anything
// else; every operation is independently retryable.
type TaskStore interface {
	// Save persists a task, updating it if it already exists.
	Save(ctx context.Context, task *boltevents.Task) error

	// Get retrieves a task by ID. Returns boltevents.TaskNotFoundError if
	// the task doesn't exist.
	Get(ctx context.Context, taskID string) (*boltevents.Task, error)

	// UpdateStatus sets the task's state and optional final message.
	UpdateStatus(ctx context.Context, taskID string, state boltevents.TaskState, message *boltevents.Message) error

	// AppendMessage appends a message to the task's history.
	AppendMessage(ctx context.Context, taskID string, message boltevents.Message) error

	// AddArtifact appends an artifact to the task.
	AddArtifact(ctx context.Context, taskID string, artifact boltevents.Artifact) error

	// List retrieves tasks, newest first, optionally filtered by context.
	List(ctx context.Context, contextID string, limit, offset int) ([]*boltevents.Task, error)

	// Count returns the number of tasks, optionally filtered by context.
	Count(ctx context.Context, contextID string) (int64, error)

	// Delete removes a task. Returns boltevents.TaskNotFoundError if the
	// task doesn't exist.
	Delete(ctx context.Context, taskID string) error

	// Initialize prepares the storage backend for use.
	Initialize(ctx context.Context) error

	// Close cleanly shuts down the storage backend.
	Close(ctx context.Context) error
}

// ConversationStore defines persistence for conversations.
type ConversationStore interface {
	// Save persists a conversation, updating it if it already exists.
	Save(ctx context.Context, conv *boltevents.Conversation) error

	// Get retrieves a conversation by context ID. Returns
	// boltevents.ConversationNotFoundError if it doesn't exist.
	Get(ctx context.Context, contextID string) (*boltevents.Conversation, error)

	// List retrieves all conversations, most recently updated first.
	List(ctx context.Context) ([]*boltevents.Conversation, error)

	// Delete removes a conversation. Returns
	// boltevents.ConversationNotFoundError if it doesn't exist.
	Delete(ctx context.Context, contextID string) error
}
