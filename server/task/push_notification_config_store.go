// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"sync"

	boltevents "github.com/daniprol/bolt-events"
)

// PushNotificationConfigStore defines the interface for storing and
// retrieving push notification configurations.
type PushNotificationConfigStore interface {
	// GetConfig retrieves a push notification configuration by task ID.
	// Returns TaskNotFoundError if the configuration doesn't exist.
	GetConfig(ctx context.Context, taskID string) (*boltevents.TaskPushNotificationConfig, error)

	// SaveConfig saves a push notification configuration for a task.
	// If the configuration already exists, it will be updated.
	SaveConfig(ctx context.Context, taskID string, config *boltevents.TaskPushNotificationConfig) error

	// DeleteConfig removes a push notification configuration for a task.
	// Returns TaskNotFoundError if the configuration doesn't exist.
	DeleteConfig(ctx context.Context, taskID string) error

	// ExistsConfig checks if a push notification configuration exists for
	// a task.
	ExistsConfig(ctx context.Context, taskID string) (bool, error)

	// Close cleanly shuts down the storage.
	Close(ctx context.Context) error
}

// InMemoryPushNotificationConfigStore is an in-memory implementation of
// PushNotificationConfigStore. All operations are thread-safe.
type InMemoryPushNotificationConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*boltevents.TaskPushNotificationConfig
}

var _ PushNotificationConfigStore = (*InMemoryPushNotificationConfigStore)(nil)

// NewInMemoryPushNotificationConfigStore creates a new in-memory push
// notification config store.
func NewInMemoryPushNotificationConfigStore() *InMemoryPushNotificationConfigStore {
	return &InMemoryPushNotificationConfigStore{
		configs: make(map[string]*boltevents.TaskPushNotificationConfig),
	}
}

// GetConfig retrieves a push notification configuration by task ID.
func (s *InMemoryPushNotificationConfigStore) GetConfig(ctx context.Context, taskID string) (*boltevents.TaskPushNotificationConfig, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	config, exists := s.configs[taskID]
	if !exists {
		return nil, boltevents.TaskNotFoundError{TaskID: taskID}
	}
	return copyPushConfig(config), nil
}

// SaveConfig saves a push notification configuration for a task.
func (s *InMemoryPushNotificationConfigStore) SaveConfig(ctx context.Context, taskID string, config *boltevents.TaskPushNotificationConfig) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if config == nil {
		return fmt.Errorf("push notification config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid push notification config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[taskID] = copyPushConfig(config)
	return nil
}

// DeleteConfig removes a push notification configuration for a task.
func (s *InMemoryPushNotificationConfigStore) DeleteConfig(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[taskID]; !exists {
		return boltevents.TaskNotFoundError{TaskID: taskID}
	}
	delete(s.configs, taskID)
	return nil
}

// ExistsConfig checks if a push notification configuration exists for a task.
func (s *InMemoryPushNotificationConfigStore) ExistsConfig(ctx context.Context, taskID string) (bool, error) {
	if taskID == "" {
		return false, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.configs[taskID]
	return exists, nil
}

// Close cleanly shuts down the in-memory storage.
func (s *InMemoryPushNotificationConfigStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = make(map[string]*boltevents.TaskPushNotificationConfig)
	return nil
}

func copyPushConfig(config *boltevents.TaskPushNotificationConfig) *boltevents.TaskPushNotificationConfig {
	if config == nil {
		return nil
	}

	clone := &boltevents.TaskPushNotificationConfig{TaskID: config.TaskID}
	if pn := config.PushNotificationConfig; pn != nil {
		pnClone := *pn
		if pn.Authentication != nil {
			auth := *pn.Authentication
			auth.Schemes = append([]string(nil), pn.Authentication.Schemes...)
			pnClone.Authentication = &auth
		}
		clone.PushNotificationConfig = &pnClone
	}
	return clone
}
