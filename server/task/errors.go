// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"

	boltevents "github.com/daniprol/bolt-events"
)

// TaskStoreError represents an error from the task store backend.
type TaskStoreError struct {
	Operation string
	TaskID    string
	Err       error
}

// Error returns the error message.
func (e TaskStoreError) Error() string {
	return fmt.Sprintf("task store %s operation failed for task %s: %v", e.Operation, e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e TaskStoreError) Unwrap() error {
	return e.Err
}

// NewTaskStoreError creates a TaskStoreError.
func NewTaskStoreError(operation, taskID string, err error) TaskStoreError {
	return TaskStoreError{Operation: operation, TaskID: taskID, Err: err}
}

// TaskValidationError represents an error when task validation fails.
type TaskValidationError struct {
	TaskID string
	Err    error
}

// Error returns the error message.
func (e TaskValidationError) Error() string {
	return fmt.Sprintf("task %s validation failed: %v", e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e TaskValidationError) Unwrap() error {
	return e.Err
}

// NewTaskValidationError creates a TaskValidationError.
func NewTaskValidationError(taskID string, err error) TaskValidationError {
	return TaskValidationError{TaskID: taskID, Err: err}
}

// TaskNotUpdatableError represents an attempt to update a task already in a
// terminal state.
type TaskNotUpdatableError struct {
	TaskID string
	State  boltevents.TaskState
}

// Error returns the error message.
func (e TaskNotUpdatableError) Error() string {
	return fmt.Sprintf("task %s in state %s cannot be updated", e.TaskID, e.State)
}
