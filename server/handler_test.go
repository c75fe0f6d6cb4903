// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	boltevents "github.com/daniprol/bolt-events"
	"github.com/daniprol/bolt-events/agent"
)

func newTestServer(t *testing.T, executor agent.Executor) (*httptest.Server, *managerFixture) {
	t.Helper()

	f := newManagerFixture(t, executor)
	srv, err := NewServer(Config{
		AgentCard: &AgentCard{
			Name:    "test-agent",
			URL:     "http://localhost",
			Version: "0.0.1",
			Capabilities: AgentCapabilities{
				Streaming: true,
			},
		},
		TaskManager: f.manager,
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, f
}

type rpcEnvelope struct {
	JSONRPC string                   `json:"jsonrpc"`
	Result  jsontext.Value           `json:"result,omitzero"`
	Error   *boltevents.JSONRPCError `json:"error,omitzero"`
	ID      any                      `json:"id,omitzero"`
}

func postRPC(t *testing.T, ts *httptest.Server, body string) rpcEnvelope {
	t.Helper()

	resp, err := ts.Client().Post(ts.URL+"/rpc", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /rpc error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var env rpcEnvelope
	if err := json.UnmarshalRead(resp.Body, &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return env
}

func TestRPCTasksSend(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, completingExecutor())

	env := postRPC(t, ts, `{
		"jsonrpc": "2.0",
		"method": "tasks/send",
		"params": {"message": {"role": "user", "parts": [{"type": "text", "text": "hello"}]}},
		"id": 1
	}`)
	if env.Error != nil {
		t.Fatalf("rpc error = %+v", env.Error)
	}

	var got boltevents.Task
	if err := json.Unmarshal(env.Result, &got); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if got.Status.State != boltevents.TaskStateCompleted {
		t.Errorf("state = %q, want completed", got.Status.State)
	}
}

func TestRPCMessageSendAlias(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, completingExecutor())

	env := postRPC(t, ts, `{
		"jsonrpc": "2.0",
		"method": "message/send",
		"params": {"message": {"role": "user", "parts": [{"type": "text", "text": "hello"}]}},
		"id": 1
	}`)
	if env.Error != nil {
		t.Fatalf("rpc error = %+v", env.Error)
	}
}

func TestRPCSendSubscribeReturnsStreamURL(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, completingExecutor())

	env := postRPC(t, ts, `{
		"jsonrpc": "2.0",
		"method": "tasks/sendSubscribe",
		"params": {"message": {"role": "user", "parts": [{"type": "text", "text": "stream"}]}},
		"id": 7
	}`)
	if env.Error != nil {
		t.Fatalf("rpc error = %+v", env.Error)
	}

	var got boltevents.TaskSubscribeResult
	if err := json.Unmarshal(env.Result, &got); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if got.Task == nil || got.Task.Status.State != boltevents.TaskStateSubmitted {
		t.Fatalf("task = %+v, want a submitted snapshot", got.Task)
	}
	if want := "/rpc/" + got.Task.ID + "/stream"; got.StreamURL != want {
		t.Errorf("stream URL = %q, want %q", got.StreamURL, want)
	}
}

func TestRPCTasksGet(t *testing.T) {
	t.Parallel()

	ts, f := newTestServer(t, completingExecutor())

	sent, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("hello"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	env := postRPC(t, ts, `{
		"jsonrpc": "2.0",
		"method": "tasks/get",
		"params": {"id": "`+sent.ID+`", "historyLength": 1},
		"id": 2
	}`)
	if env.Error != nil {
		t.Fatalf("rpc error = %+v", env.Error)
	}

	var got boltevents.Task
	if err := json.Unmarshal(env.Result, &got); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if got.ID != sent.ID {
		t.Errorf("ID = %q, want %q", got.ID, sent.ID)
	}
	if len(got.History) != 1 {
		t.Errorf("history = %d messages, want 1 after truncation", len(got.History))
	}
}

func TestRPCTasksCancel(t *testing.T) {
	t.Parallel()

	executor := scriptedExecutor(func(taskID string) []boltevents.Event {
		return []boltevents.Event{boltevents.NewWorkingEvent(taskID)}
	})
	ts, f := newTestServer(t, executor)

	sent, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("long job"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	env := postRPC(t, ts, `{
		"jsonrpc": "2.0",
		"method": "tasks/cancel",
		"params": {"id": "`+sent.ID+`"},
		"id": 3
	}`)
	if env.Error != nil {
		t.Fatalf("rpc error = %+v", env.Error)
	}

	var got boltevents.Task
	if err := json.Unmarshal(env.Result, &got); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if got.Status.State != boltevents.TaskStateCanceled {
		t.Errorf("state = %q, want canceled", got.Status.State)
	}
}

func TestRPCErrorMapping(t *testing.T) {
	t.Parallel()

	ts, f := newTestServer(t, completingExecutor())

	done, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("finish"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	tests := map[string]struct {
		body     string
		wantCode int
	}{
		"error: parse failure": {
			body:     `{"jsonrpc": "2.0", "method"`,
			wantCode: boltevents.JSONParseErrorCode,
		},
		"error: missing jsonrpc version": {
			body:     `{"method": "tasks/get", "id": 1}`,
			wantCode: boltevents.InvalidRequestErrorCode,
		},
		"error: missing method": {
			body:     `{"jsonrpc": "2.0", "id": 1}`,
			wantCode: boltevents.InvalidRequestErrorCode,
		},
		"error: unknown method": {
			body:     `{"jsonrpc": "2.0", "method": "tasks/levitate", "id": 1}`,
			wantCode: boltevents.MethodNotFoundErrorCode,
		},
		"error: get without id": {
			body:     `{"jsonrpc": "2.0", "method": "tasks/get", "params": {}, "id": 1}`,
			wantCode: boltevents.InvalidParamsErrorCode,
		},
		"error: send with invalid message": {
			body:     `{"jsonrpc": "2.0", "method": "tasks/send", "params": {"message": {"role": "user"}}, "id": 1}`,
			wantCode: boltevents.InvalidParamsErrorCode,
		},
		"error: get unknown task": {
			body:     `{"jsonrpc": "2.0", "method": "tasks/get", "params": {"id": "task-missing"}, "id": 1}`,
			wantCode: boltevents.TaskNotFoundErrorCode,
		},
		"error: cancel unknown task": {
			body:     `{"jsonrpc": "2.0", "method": "tasks/cancel", "params": {"id": "task-missing"}, "id": 1}`,
			wantCode: boltevents.TaskNotFoundErrorCode,
		},
		"error: cancel terminal task": {
			body:     `{"jsonrpc": "2.0", "method": "tasks/cancel", "params": {"id": "` + done.ID + `"}, "id": 1}`,
			wantCode: boltevents.TaskNotCancelableErrorCode,
		},
		"error: follow-up on terminal task": {
			body:     `{"jsonrpc": "2.0", "method": "tasks/send", "params": {"id": "` + done.ID + `", "message": {"role": "user", "parts": [{"type": "text", "text": "more"}]}}, "id": 1}`,
			wantCode: boltevents.InvalidParamsErrorCode,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			env := postRPC(t, ts, tt.body)
			if env.Error == nil {
				t.Fatal("expected rpc error, got result")
			}
			if env.Error.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", env.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestAgentCardEndpoint(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t, completingExecutor())

	for _, path := range []string{"/.well-known/agent-card.json", "/card"} {
		resp, err := ts.Client().Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		var card AgentCard
		err = json.UnmarshalRead(resp.Body, &card)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decoding card from %s: %v", path, err)
		}
		if card.Name != "test-agent" || !card.Capabilities.Streaming {
			t.Errorf("card from %s = %+v, want the configured card", path, card)
		}
	}
}
