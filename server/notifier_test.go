// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	boltevents "github.com/daniprol/bolt-events"
	"github.com/daniprol/bolt-events/server/task"
)

type capturedNotification struct {
	payload       PushNotification
	authorization string
}

func webhookServer(t *testing.T, status int) (*httptest.Server, chan capturedNotification) {
	t.Helper()

	captured := make(chan capturedNotification, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload PushNotification
		if err := json.UnmarshalRead(r.Body, &payload); err != nil {
			t.Errorf("decoding webhook payload: %v", err)
		}
		captured <- capturedNotification{
			payload:       payload,
			authorization: r.Header.Get("Authorization"),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(ts.Close)
	return ts, captured
}

func terminalTask(t *testing.T) *boltevents.Task {
	t.Helper()

	task, err := boltevents.NewTask(userMessage("notify me"), "task-1", "ctx-1")
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	task.Status = boltevents.TaskStatus{State: boltevents.TaskStateCompleted}
	return task
}

func pushConfig(taskID, url string) *boltevents.TaskPushNotificationConfig {
	return &boltevents.TaskPushNotificationConfig{
		TaskID: taskID,
		PushNotificationConfig: &boltevents.PushNotificationConfig{
			URL: url,
		},
	}
}

func TestNotifyDeliversPayload(t *testing.T) {
	t.Parallel()

	ts, captured := webhookServer(t, http.StatusOK)
	task := terminalTask(t)

	n := NewPushNotifier().WithLogger(testLogger())
	if err := n.Notify(t.Context(), task, pushConfig(task.ID, ts.URL)); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	got := <-captured
	if got.payload.TaskID != task.ID {
		t.Errorf("payload task ID = %q, want %q", got.payload.TaskID, task.ID)
	}
	if got.payload.State != boltevents.TaskStateCompleted {
		t.Errorf("payload state = %q, want completed", got.payload.State)
	}
	if got.payload.Task == nil || got.payload.Task.ID != task.ID {
		t.Errorf("payload task = %+v, want the full task", got.payload.Task)
	}
	if got.authorization != "" {
		t.Errorf("authorization = %q, want none without credentials", got.authorization)
	}
}

func TestNotifyAuthorizationPriority(t *testing.T) {
	t.Parallel()

	t.Run("per-task token", func(t *testing.T) {
		t.Parallel()

		ts, captured := webhookServer(t, http.StatusOK)
		task := terminalTask(t)
		config := pushConfig(task.ID, ts.URL)
		config.PushNotificationConfig.Token = "task-secret"

		n := NewPushNotifier().WithLogger(testLogger())
		if err := n.Notify(t.Context(), task, config); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		if got := <-captured; got.authorization != "Bearer task-secret" {
			t.Errorf("authorization = %q, want the per-task token", got.authorization)
		}
	})

	t.Run("static bearer credentials", func(t *testing.T) {
		t.Parallel()

		ts, captured := webhookServer(t, http.StatusOK)
		task := terminalTask(t)
		config := pushConfig(task.ID, ts.URL)
		config.PushNotificationConfig.Authentication = &boltevents.AuthenticationInfo{
			Schemes:     []string{"bearer"},
			Credentials: "static-secret",
		}

		n := NewPushNotifier().WithLogger(testLogger())
		if err := n.Notify(t.Context(), task, config); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		if got := <-captured; got.authorization != "Bearer static-secret" {
			t.Errorf("authorization = %q, want the static credentials", got.authorization)
		}
	})

	t.Run("signing key wins over token", func(t *testing.T) {
		t.Parallel()

		ts, captured := webhookServer(t, http.StatusOK)
		task := terminalTask(t)
		config := pushConfig(task.ID, ts.URL)
		config.PushNotificationConfig.Token = "task-secret"

		key := []byte("0123456789abcdef0123456789abcdef")
		n := NewPushNotifier().WithLogger(testLogger()).WithSigningKey(key, "bolt-events")
		if err := n.Notify(t.Context(), task, config); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}

		got := <-captured
		raw, ok := strings.CutPrefix(got.authorization, "Bearer ")
		if !ok {
			t.Fatalf("authorization = %q, want a bearer token", got.authorization)
		}
		token, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256(), key))
		if err != nil {
			t.Fatalf("verifying signed token: %v", err)
		}
		if iss, _ := token.Issuer(); iss != "bolt-events" {
			t.Errorf("issuer = %q, want bolt-events", iss)
		}
		var taskID string
		if err := token.Get("taskId", &taskID); err != nil || taskID != task.ID {
			t.Errorf("taskId claim = %q (%v), want %q", taskID, err, task.ID)
		}
		var taskToken string
		if err := token.Get("token", &taskToken); err != nil || taskToken != "task-secret" {
			t.Errorf("token claim = %q (%v), want the per-task token", taskToken, err)
		}
	})
}

func TestNotifyRejectedByReceiver(t *testing.T) {
	t.Parallel()

	ts, captured := webhookServer(t, http.StatusForbidden)
	task := terminalTask(t)

	n := NewPushNotifier().WithLogger(testLogger())
	err := n.Notify(t.Context(), task, pushConfig(task.ID, ts.URL))
	if err == nil {
		t.Fatal("Notify() error = nil, want rejection error")
	}
	<-captured
}

func TestNotifyNilConfig(t *testing.T) {
	t.Parallel()

	n := NewPushNotifier().WithLogger(testLogger())
	task := terminalTask(t)

	if err := n.Notify(t.Context(), task, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if err := n.Notify(t.Context(), task, &boltevents.TaskPushNotificationConfig{TaskID: task.ID}); err == nil {
		t.Fatal("expected error for missing webhook config")
	}
}

func TestPushNotificationEndToEnd(t *testing.T) {
	t.Parallel()

	ts, captured := webhookServer(t, http.StatusOK)

	f := newManagerFixture(t, completingExecutor())
	configs := task.NewInMemoryPushNotificationConfigStore()
	if err := configs.SaveConfig(t.Context(), "task-push", pushConfig("task-push", ts.URL)); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	f.manager.WithPushNotifications(configs, NewPushNotifier().WithLogger(testLogger()))

	sent, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		ID:      "task-push",
		Message: userMessage("finish and notify"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	select {
	case got := <-captured:
		if got.payload.TaskID != sent.ID {
			t.Errorf("payload task ID = %q, want %q", got.payload.TaskID, sent.ID)
		}
		if got.payload.State != boltevents.TaskStateCompleted {
			t.Errorf("payload state = %q, want completed", got.payload.State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never called")
	}
}
