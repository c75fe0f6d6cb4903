// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	boltevents "github.com/daniprol/bolt-events"
)

// PushNotification is the payload delivered to a task's webhook when the
// task reaches a terminal state.
type PushNotification struct {
	TaskID string               `json:"taskId"`
	State  boltevents.TaskState `json:"state"`
	Task   *boltevents.Task     `json:"task"`
}

// PushNotifier delivers terminal-state notifications to client-registered
// webhooks. Requests can carry a signed JWT bearer token so receivers can
// verify the sender.
type PushNotifier struct {
	client *http.Client
	logger *slog.Logger

	signingKey []byte
	issuer     string
}

// NewPushNotifier creates a PushNotifier with a 10 second request timeout.
func NewPushNotifier() *PushNotifier {
	return &PushNotifier{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the PushNotifier.
func (n *PushNotifier) WithLogger(logger *slog.Logger) *PushNotifier {
	n.logger = logger
	return n
}

// WithSigningKey enables JWT bearer signing of outgoing notifications with
// an HMAC key. The issuer claim identifies this server to the receiver.
func (n *PushNotifier) WithSigningKey(key []byte, issuer string) *PushNotifier {
	n.signingKey = key
	n.issuer = issuer
	return n
}

// Notify posts the task's terminal state to the configured webhook.
func (n *PushNotifier) Notify(ctx context.Context, t *boltevents.Task, config *boltevents.TaskPushNotificationConfig) error {
	if config == nil || config.PushNotificationConfig == nil {
		return fmt.Errorf("push notification config cannot be nil")
	}
	pn := config.PushNotificationConfig

	payload := PushNotification{
		TaskID: t.ID,
		State:  t.Status.State,
		Task:   t,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pn.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := n.authorize(req, t.ID, pn); err != nil {
		return err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification rejected with status code %d", resp.StatusCode)
	}

	n.logger.InfoContext(ctx, "push notification delivered", "task_id", t.ID, "state", t.Status.State, "url", pn.URL)
	return nil
}

// authorize sets the Authorization header. A configured signing key wins
// over the per-task token, which wins over static bearer credentials.
func (n *PushNotifier) authorize(req *http.Request, taskID string, pn *boltevents.PushNotificationConfig) error {
	switch {
	case len(n.signingKey) > 0:
		signed, err := n.signedToken(taskID, pn.Token)
		if err != nil {
			return fmt.Errorf("failed to sign notification token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+signed)

	case pn.Token != "":
		req.Header.Set("Authorization", "Bearer "+pn.Token)

	case pn.Authentication != nil &&
		slices.Contains(pn.Authentication.Schemes, "bearer") &&
		pn.Authentication.Credentials != "":
		req.Header.Set("Authorization", "Bearer "+pn.Authentication.Credentials)
	}
	return nil
}

func (n *PushNotifier) signedToken(taskID, taskToken string) (string, error) {
	now := time.Now().UTC()
	builder := jwt.NewBuilder().
		Issuer(n.issuer).
		IssuedAt(now).
		Expiration(now.Add(5 * time.Minute)).
		Claim("taskId", taskID)
	if taskToken != "" {
		builder = builder.Claim("token", taskToken)
	}

	token, err := builder.Build()
	if err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), n.signingKey))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}
