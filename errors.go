// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package boltevents

import (
	"fmt"
)

// TaskNotFoundError is returned when a task ID does not resolve to a stored
// task. It maps to JSON-RPC code -32001 at the protocol boundary.
type TaskNotFoundError struct {
	TaskID string
}

// Error implements error.
func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// TaskNotCancelableError is returned when a cancel request targets a task
// already in a terminal state. It maps to JSON-RPC code -32002 at the
// protocol boundary.
type TaskNotCancelableError struct {
	TaskID string
	State  TaskState
}

// Error implements error.
func (e TaskNotCancelableError) Error() string {
	return fmt.Sprintf("task %s cannot be canceled: already in state %s", e.TaskID, e.State)
}

// ConversationNotFoundError is returned when a context ID does not resolve
// to a stored conversation.
type ConversationNotFoundError struct {
	ContextID string
}

// Error implements error.
func (e ConversationNotFoundError) Error() string {
	return fmt.Sprintf("conversation not found: %s", e.ContextID)
}
