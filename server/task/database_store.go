// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	boltevents "github.com/daniprol/bolt-events"
)

// DatabaseTaskStore is a database implementation of TaskStore using GORM.
type DatabaseTaskStore struct {
	db          *gorm.DB
	createTable bool
}

var _ TaskStore = (*DatabaseTaskStore)(nil)

// DatabaseTaskStoreConfig holds configuration for DatabaseTaskStore.
type DatabaseTaskStoreConfig struct {
	DB          *gorm.DB
	CreateTable bool // Whether to create the table if it doesn't exist
}

// NewDatabaseTaskStore creates a new DatabaseTaskStore.
func NewDatabaseTaskStore(config DatabaseTaskStoreConfig) (*DatabaseTaskStore, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}

	return &DatabaseTaskStore{
		db:          config.DB,
		createTable: config.CreateTable,
	}, nil
}

// Save persists a task to the database.
func (s *DatabaseTaskStore) Save(ctx context.Context, task *boltevents.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return NewTaskValidationError(task.ID, err)
	}

	model, err := NewTaskModelFromTask(task)
	if err != nil {
		return NewTaskStoreError("save", task.ID, err)
	}

	if err := s.db.WithContext(ctx).Save(model).Error; err != nil {
		return NewTaskStoreError("save", task.ID, err)
	}
	return nil
}

// Get retrieves a task by its ID from the database.
func (s *DatabaseTaskStore) Get(ctx context.Context, taskID string) (*boltevents.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	var model TaskModel
	if err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, boltevents.TaskNotFoundError{TaskID: taskID}
		}
		return nil, NewTaskStoreError("get", taskID, err)
	}

	task, err := model.ToTask()
	if err != nil {
		return nil, NewTaskStoreError("get", taskID, err)
	}
	return task, nil
}

// UpdateStatus sets the task's state and optional final message.
//
// The update is a read-modify-write inside a transaction so a concurrent
// writer cannot interleave between the read and the save.
func (s *DatabaseTaskStore) UpdateStatus(ctx context.Context, taskID string, state boltevents.TaskState, message *boltevents.Message) error {
	if !state.Valid() {
		return NewTaskValidationError(taskID, fmt.Errorf("invalid task state: %q", state))
	}

	return s.mutate(ctx, "update_status", taskID, func(task *boltevents.Task) {
		task.Status = boltevents.TaskStatus{State: state, Message: message}
	})
}

// AppendMessage appends a message to the task's history.
func (s *DatabaseTaskStore) AppendMessage(ctx context.Context, taskID string, message boltevents.Message) error {
	if err := message.Validate(); err != nil {
		return NewTaskValidationError(taskID, err)
	}

	return s.mutate(ctx, "append_message", taskID, func(task *boltevents.Task) {
		task.History = append(task.History, message)
	})
}

// AddArtifact appends an artifact to the task.
func (s *DatabaseTaskStore) AddArtifact(ctx context.Context, taskID string, artifact boltevents.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return NewTaskValidationError(taskID, err)
	}

	return s.mutate(ctx, "add_artifact", taskID, func(task *boltevents.Task) {
		task.Artifacts = append(task.Artifacts, artifact)
	})
}

func (s *DatabaseTaskStore) mutate(ctx context.Context, op, taskID string, fn func(*boltevents.Task)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model TaskModel
		if err := tx.Where("id = ?", taskID).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return boltevents.TaskNotFoundError{TaskID: taskID}
			}
			return NewTaskStoreError(op, taskID, err)
		}

		task, err := model.ToTask()
		if err != nil {
			return NewTaskStoreError(op, taskID, err)
		}

		fn(task)
		task.UpdatedAt = time.Now().UTC()

		updated, err := NewTaskModelFromTask(task)
		if err != nil {
			return NewTaskStoreError(op, taskID, err)
		}
		if err := tx.Save(updated).Error; err != nil {
			return NewTaskStoreError(op, taskID, err)
		}
		return nil
	})
}

// List retrieves tasks newest first, optionally filtered by context ID.
func (s *DatabaseTaskStore) List(ctx context.Context, contextID string, limit, offset int) ([]*boltevents.Task, error) {
	var models []TaskModel
	db := s.db.WithContext(ctx)

	if contextID != "" {
		db = db.Where("context_id = ?", contextID)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	db = db.Order("created_at DESC")

	if err := db.Find(&models).Error; err != nil {
		return nil, NewTaskStoreError("list", "", err)
	}

	tasks := make([]*boltevents.Task, len(models))
	for i := range models {
		task, err := models[i].ToTask()
		if err != nil {
			return nil, NewTaskStoreError("list", models[i].ID, err)
		}
		tasks[i] = task
	}
	return tasks, nil
}

// Count returns the number of tasks, optionally filtered by context ID.
func (s *DatabaseTaskStore) Count(ctx context.Context, contextID string) (int64, error) {
	var count int64
	query := s.db.WithContext(ctx).Model(&TaskModel{})

	if contextID != "" {
		query = query.Where("context_id = ?", contextID)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, NewTaskStoreError("count", "", err)
	}
	return count, nil
}

// Delete removes a task from the database.
func (s *DatabaseTaskStore) Delete(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	result := s.db.WithContext(ctx).Where("id = ?", taskID).Delete(&TaskModel{})
	if result.Error != nil {
		return NewTaskStoreError("delete", taskID, result.Error)
	}
	if result.RowsAffected == 0 {
		return boltevents.TaskNotFoundError{TaskID: taskID}
	}
	return nil
}

// Initialize prepares the database for use.
func (s *DatabaseTaskStore) Initialize(ctx context.Context) error {
	if !s.createTable {
		return nil
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&TaskModel{}); err != nil {
		return NewTaskStoreError("initialize", "", err)
	}
	return nil
}

// Close cleanly shuts down the database store. The underlying connection
// is managed by GORM and is left open.
func (s *DatabaseTaskStore) Close(ctx context.Context) error {
	return nil
}

// DatabaseConversationStore is a database implementation of
// ConversationStore using GORM.
type DatabaseConversationStore struct {
	db *gorm.DB
}

var _ ConversationStore = (*DatabaseConversationStore)(nil)

// NewDatabaseConversationStore creates a new DatabaseConversationStore.
func NewDatabaseConversationStore(db *gorm.DB) (*DatabaseConversationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &DatabaseConversationStore{db: db}, nil
}

// Initialize creates the conversations table if it doesn't exist.
func (s *DatabaseConversationStore) Initialize(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&ConversationModel{}); err != nil {
		return NewTaskStoreError("initialize", "", err)
	}
	return nil
}

// Save persists a conversation.
func (s *DatabaseConversationStore) Save(ctx context.Context, conv *boltevents.Conversation) error {
	model, err := NewConversationModel(conv)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(model).Error; err != nil {
		return NewTaskStoreError("save", conv.ContextID, err)
	}
	return nil
}

// Get retrieves a conversation by context ID.
func (s *DatabaseConversationStore) Get(ctx context.Context, contextID string) (*boltevents.Conversation, error) {
	var model ConversationModel
	if err := s.db.WithContext(ctx).Where("context_id = ?", contextID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, boltevents.ConversationNotFoundError{ContextID: contextID}
		}
		return nil, NewTaskStoreError("get", contextID, err)
	}
	return model.ToConversation(), nil
}

// List retrieves all conversations, most recently updated first.
func (s *DatabaseConversationStore) List(ctx context.Context) ([]*boltevents.Conversation, error) {
	var models []ConversationModel
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, NewTaskStoreError("list", "", err)
	}

	conversations := make([]*boltevents.Conversation, len(models))
	for i := range models {
		conversations[i] = models[i].ToConversation()
	}
	return conversations, nil
}

// Delete removes a conversation.
func (s *DatabaseConversationStore) Delete(ctx context.Context, contextID string) error {
	result := s.db.WithContext(ctx).Where("context_id = ?", contextID).Delete(&ConversationModel{})
	if result.Error != nil {
		return NewTaskStoreError("delete", contextID, result.Error)
	}
	if result.RowsAffected == 0 {
		return boltevents.ConversationNotFoundError{ContextID: contextID}
	}
	return nil
}
