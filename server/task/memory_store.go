// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	boltevents "github.com/daniprol/bolt-events"
)

// InMemoryTaskStore is an in-memory implementation of TaskStore. Task data
// is lost when the server process stops. All operations are thread-safe.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*boltevents.Task
}

var _ TaskStore = (*InMemoryTaskStore)(nil)

// NewInMemoryTaskStore creates a new InMemoryTaskStore.
func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]*boltevents.Task),
	}
}

// Save persists a task to the in-memory storage.
func (s *InMemoryTaskStore) Save(ctx context.Context, task *boltevents.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return NewTaskValidationError(task.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a deep copy to avoid sharing mutable state with the caller.
	s.tasks[task.ID] = copyTask(task)
	return nil
}

// Get retrieves a task by its ID.
func (s *InMemoryTaskStore) Get(ctx context.Context, taskID string) (*boltevents.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, boltevents.TaskNotFoundError{TaskID: taskID}
	}
	return copyTask(task), nil
}

// UpdateStatus sets the task's state and optional final message.
func (s *InMemoryTaskStore) UpdateStatus(ctx context.Context, taskID string, state boltevents.TaskState, message *boltevents.Message) error {
	if !state.Valid() {
		return NewTaskValidationError(taskID, fmt.Errorf("invalid task state: %q", state))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return boltevents.TaskNotFoundError{TaskID: taskID}
	}
	task.Status = boltevents.TaskStatus{State: state, Message: message}
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendMessage appends a message to the task's history.
func (s *InMemoryTaskStore) AppendMessage(ctx context.Context, taskID string, message boltevents.Message) error {
	if err := message.Validate(); err != nil {
		return NewTaskValidationError(taskID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return boltevents.TaskNotFoundError{TaskID: taskID}
	}
	task.History = append(task.History, message)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// AddArtifact appends an artifact to the task.
func (s *InMemoryTaskStore) AddArtifact(ctx context.Context, taskID string, artifact boltevents.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return NewTaskValidationError(taskID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return boltevents.TaskNotFoundError{TaskID: taskID}
	}
	task.Artifacts = append(task.Artifacts, artifact)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// List retrieves tasks newest first, optionally filtered by context ID.
func (s *InMemoryTaskStore) List(ctx context.Context, contextID string, limit, offset int) ([]*boltevents.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*boltevents.Task
	for _, task := range s.tasks {
		if contextID != "" && task.ContextID != contextID {
			continue
		}
		tasks = append(tasks, copyTask(task))
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if offset > 0 {
		if offset >= len(tasks) {
			return nil, nil
		}
		tasks = tasks[offset:]
	}
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// Count returns the number of tasks, optionally filtered by context ID.
func (s *InMemoryTaskStore) Count(ctx context.Context, contextID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if contextID == "" {
		return int64(len(s.tasks)), nil
	}
	var count int64
	for _, task := range s.tasks {
		if task.ContextID == contextID {
			count++
		}
	}
	return count, nil
}

// Delete removes a task.
func (s *InMemoryTaskStore) Delete(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return boltevents.TaskNotFoundError{TaskID: taskID}
	}
	delete(s.tasks, taskID)
	return nil
}

// Initialize prepares the in-memory storage.
func (s *InMemoryTaskStore) Initialize(ctx context.Context) error { return nil }

// Close shuts down the in-memory storage.
func (s *InMemoryTaskStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*boltevents.Task)
	return nil
}

func copyTask(task *boltevents.Task) *boltevents.Task {
	clone := *task
	clone.History = slices.Clone(task.History)
	clone.Artifacts = slices.Clone(task.Artifacts)
	clone.Metadata = maps.Clone(task.Metadata)
	if task.Status.Message != nil {
		msg := *task.Status.Message
		clone.Status.Message = &msg
	}
	return &clone
}

// InMemoryConversationStore is an in-memory implementation of
// ConversationStore.
type InMemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*boltevents.Conversation
}

var _ ConversationStore = (*InMemoryConversationStore)(nil)

// NewInMemoryConversationStore creates a new InMemoryConversationStore.
func NewInMemoryConversationStore() *InMemoryConversationStore {
	return &InMemoryConversationStore{
		conversations: make(map[string]*boltevents.Conversation),
	}
}

// Save persists a conversation.
func (s *InMemoryConversationStore) Save(ctx context.Context, conv *boltevents.Conversation) error {
	if conv == nil {
		return fmt.Errorf("conversation cannot be nil")
	}
	if err := conv.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *conv
	s.conversations[conv.ContextID] = &clone
	return nil
}

// Get retrieves a conversation by context ID.
func (s *InMemoryConversationStore) Get(ctx context.Context, contextID string) (*boltevents.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[contextID]
	if !ok {
		return nil, boltevents.ConversationNotFoundError{ContextID: contextID}
	}
	clone := *conv
	return &clone, nil
}

// List retrieves all conversations, most recently updated first.
func (s *InMemoryConversationStore) List(ctx context.Context) ([]*boltevents.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversations := make([]*boltevents.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		clone := *conv
		conversations = append(conversations, &clone)
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})
	return conversations, nil
}

// Delete removes a conversation.
func (s *InMemoryConversationStore) Delete(ctx context.Context, contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[contextID]; !ok {
		return boltevents.ConversationNotFoundError{ContextID: contextID}
	}
	delete(s.conversations, contextID)
	return nil
}
