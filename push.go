// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package boltevents

import "fmt"

// AuthenticationInfo describes how to authenticate against a push
// notification endpoint.
type AuthenticationInfo struct {
	// Schemes lists the supported authentication schemes, e.g. "bearer".
	Schemes []string `json:"schemes"`

	// Credentials holds optional credential material for the schemes.
	Credentials string `json:"credentials,omitzero"`
}

// PushNotificationConfig is a client-supplied callback endpoint the server
// notifies when a task reaches a terminal state.
type PushNotificationConfig struct {
	// ID is assigned by the server to support multiple callbacks.
	ID string `json:"id,omitzero"`

	// URL the push notifications are delivered to.
	URL string `json:"url"`

	// Token unique to this task, echoed back in the notification so the
	// receiver can correlate it.
	Token string `json:"token,omitzero"`

	Authentication *AuthenticationInfo `json:"authentication,omitzero"`
}

// Validate ensures the PushNotificationConfig is valid.
func (c *PushNotificationConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("push notification URL cannot be empty")
	}
	return nil
}

// TaskPushNotificationConfig binds a push notification configuration to a
// task.
type TaskPushNotificationConfig struct {
	TaskID string `json:"taskId"`

	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig"`
}

// Validate ensures the TaskPushNotificationConfig is valid.
func (c *TaskPushNotificationConfig) Validate() error {
	if c.TaskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if c.PushNotificationConfig == nil {
		return fmt.Errorf("push notification config cannot be nil")
	}
	return c.PushNotificationConfig.Validate()
}
