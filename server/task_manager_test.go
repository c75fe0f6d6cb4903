// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	boltevents "github.com/daniprol/bolt-events"
	"github.com/daniprol/bolt-events/agent"
	"github.com/daniprol/bolt-events/server/task"
	"github.com/daniprol/bolt-events/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func userMessage(text string) boltevents.Message {
	return boltevents.Message{
		MessageID: boltevents.NewMessageID(),
		Role:      boltevents.RoleUser,
		Parts:     []boltevents.Part{{Type: boltevents.PartTypeText, Text: text}},
	}
}

func agentMessage(text string) boltevents.Message {
	return boltevents.Message{
		MessageID: boltevents.NewMessageID(),
		Role:      boltevents.RoleAgent,
		Parts:     []boltevents.Part{{Type: boltevents.PartTypeText, Text: text}},
	}
}

// scriptedExecutor emits a fixed event sequence for whatever task it runs.
func scriptedExecutor(events func(taskID string) []boltevents.Event) agent.ExecutorFunc {
	return func(ctx context.Context, t *boltevents.Task, message boltevents.Message, out chan<- boltevents.Event) error {
		defer close(out)
		for _, ev := range events(t.ID) {
			out <- ev
		}
		return nil
	}
}

func completingExecutor() agent.ExecutorFunc {
	return scriptedExecutor(func(taskID string) []boltevents.Event {
		msg := agentMessage("partial answer")
		final := agentMessage("full answer")
		return []boltevents.Event{
			boltevents.NewWorkingEvent(taskID),
			&boltevents.MessageEvent{TaskID: taskID, Message: msg},
			boltevents.NewCompletedEvent(taskID, &final),
		}
	})
}

type managerFixture struct {
	log     *stream.MemoryLog
	store   *task.InMemoryTaskStore
	manager *TaskManager
}

func newManagerFixture(t *testing.T, executor agent.Executor) *managerFixture {
	t.Helper()

	log := stream.NewMemoryLog(stream.Options{}).WithLogger(testLogger())
	store := task.NewInMemoryTaskStore()
	manager := NewTaskManager(log, store, executor).WithLogger(testLogger())
	return &managerFixture{log: log, store: store, manager: manager}
}

func TestSendTaskRunsToCompletion(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())

	got, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("analyze the logs"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	if got.Status.State != boltevents.TaskStateCompleted {
		t.Errorf("state = %q, want completed", got.Status.State)
	}
	if got.Status.Message == nil || got.Status.Message.Text() != "full answer" {
		t.Errorf("status message = %+v, want the final answer", got.Status.Message)
	}
	// History holds the request plus the streamed agent message.
	if len(got.History) != 2 {
		t.Fatalf("history = %d messages, want 2", len(got.History))
	}
	if got.History[0].Role != boltevents.RoleUser || got.History[1].Role != boltevents.RoleAgent {
		t.Errorf("history roles = %q/%q, want user/agent", got.History[0].Role, got.History[1].Role)
	}

	// The log carries the full sequence: submitted, working, message, completed.
	entries, err := f.manager.Subscriber().AllEvents(t.Context(), got.ID, 0)
	if err != nil {
		t.Fatalf("AllEvents() error = %v", err)
	}
	wantTypes := []string{"task.submitted", "task.working", "task.message", "task.completed"}
	if len(entries) != len(wantTypes) {
		t.Fatalf("log holds %d events, want %d", len(entries), len(wantTypes))
	}
	for i, e := range entries {
		if e.Event.EventType() != wantTypes[i] {
			t.Errorf("log event %d type = %q, want %q", i, e.Event.EventType(), wantTypes[i])
		}
	}
}

func TestSendTaskWithArtifacts(t *testing.T) {
	t.Parallel()

	executor := scriptedExecutor(func(taskID string) []boltevents.Event {
		return []boltevents.Event{
			boltevents.NewWorkingEvent(taskID),
			&boltevents.ArtifactEvent{TaskID: taskID, Artifact: boltevents.Artifact{
				Name:  "report",
				Parts: []boltevents.Part{{Type: boltevents.PartTypeText, Text: "findings"}},
			}},
			boltevents.NewCompletedEvent(taskID, nil),
		}
	})
	f := newManagerFixture(t, executor)

	got, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("produce a report"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].Name != "report" {
		t.Fatalf("artifacts = %+v, want the report", got.Artifacts)
	}
}

func TestSendTaskExplicitIDs(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())

	got, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		ID:        "task-fixed",
		ContextID: "ctx-fixed",
		Message:   userMessage("hello"),
		Metadata:  map[string]any{"origin": "test"},
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}
	if got.ID != "task-fixed" || got.ContextID != "ctx-fixed" {
		t.Errorf("IDs = %q/%q, want task-fixed/ctx-fixed", got.ID, got.ContextID)
	}
	if got.Metadata["origin"] != "test" {
		t.Errorf("metadata = %+v, want origin preserved", got.Metadata)
	}
}

func TestSendTaskInvalidMessage(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())

	if _, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{}); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestSendTaskFollowUpOnTerminalTask(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())

	first, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("first"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	_, err = f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		ID:      first.ID,
		Message: userMessage("follow up"),
	})
	var notUpdatable task.TaskNotUpdatableError
	if !errors.As(err, &notUpdatable) {
		t.Fatalf("error = %v, want TaskNotUpdatableError", err)
	}
}

func TestSendTaskExecutorFailureRecordsFailed(t *testing.T) {
	t.Parallel()

	executor := agent.ExecutorFunc(func(ctx context.Context, tk *boltevents.Task, message boltevents.Message, out chan<- boltevents.Event) error {
		defer close(out)
		out <- boltevents.NewWorkingEvent(tk.ID)
		return errors.New("model unavailable")
	})
	f := newManagerFixture(t, executor)

	_, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("doomed"),
	})
	if err == nil {
		t.Fatal("SendTask() error = nil, want the executor error")
	}

	// The failure is recorded both in the log and the projection.
	tasks, err := f.store.List(t.Context(), "", 1, 0)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("List() = %v, %v, want the single task", tasks, err)
	}
	got := tasks[0]
	if got.Status.State != boltevents.TaskStateFailed {
		t.Errorf("state = %q, want failed", got.Status.State)
	}
	if got.Status.Message == nil || got.Status.Message.Text() != "model unavailable" {
		t.Errorf("status message = %+v, want the executor error text", got.Status.Message)
	}
}

func TestProcessEventAbsorbsStateChangeOnTerminalTask(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())

	done, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("finish"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	// A late working event still lands in the log but never rewinds the
	// projection.
	pos, err := f.manager.ProcessEvent(t.Context(), boltevents.NewWorkingEvent(done.ID))
	if err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}
	if pos == stream.Start {
		t.Fatal("ProcessEvent() returned the zero position")
	}

	got, err := f.store.Get(t.Context(), done.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status.State != boltevents.TaskStateCompleted {
		t.Errorf("state = %q after late event, want completed", got.Status.State)
	}
}

func TestSendTaskSubscribeReturnsSubmittedSnapshot(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())

	got, err := f.manager.SendTaskSubscribe(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("stream this"),
	})
	if err != nil {
		t.Fatalf("SendTaskSubscribe() error = %v", err)
	}
	if got.Status.State != boltevents.TaskStateSubmitted {
		t.Errorf("snapshot state = %q, want submitted", got.Status.State)
	}

	// The background executor drives the task to completion.
	deadline := time.After(5 * time.Second)
	for {
		current, err := f.store.Get(context.Background(), got.ID)
		if err == nil && current.Status.State == boltevents.TaskStateCompleted {
			return
		}
		select {
		case <-deadline:
			t.Fatal("task never reached completed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestGetTaskHistoryLength(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())

	sent, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("hello"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	tests := map[string]struct {
		historyLength *int
		want          int
	}{
		"nil keeps full history": {nil, 2},
		"larger than history":    {ptr(10), 2},
		"truncates to newest":    {ptr(1), 1},
		"zero drops history":     {ptr(0), 0},
		"negative treated as 0":  {ptr(-3), 0},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := f.manager.GetTask(t.Context(), sent.ID, tt.historyLength)
			if err != nil {
				t.Fatalf("GetTask() error = %v", err)
			}
			if len(got.History) != tt.want {
				t.Errorf("history = %d messages, want %d", len(got.History), tt.want)
			}
		})
	}

	// Truncation only touches the returned copy.
	if _, err := f.manager.GetTask(t.Context(), sent.ID, ptr(1)); err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	full, err := f.manager.GetTask(t.Context(), sent.ID, nil)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if len(full.History) != 2 {
		t.Errorf("stored history = %d messages after truncated read, want 2", len(full.History))
	}
}

func ptr(n int) *int { return &n }

func TestGetTaskNotFound(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())

	_, err := f.manager.GetTask(t.Context(), "task-missing", nil)
	var notFound boltevents.TaskNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want TaskNotFoundError", err)
	}
}

func TestCancelTask(t *testing.T) {
	t.Parallel()

	// An executor that never finishes on its own.
	executor := agent.ExecutorFunc(func(ctx context.Context, tk *boltevents.Task, message boltevents.Message, out chan<- boltevents.Event) error {
		defer close(out)
		out <- boltevents.NewWorkingEvent(tk.ID)
		return nil
	})
	f := newManagerFixture(t, executor)

	sent, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("long job"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}
	if sent.Status.State != boltevents.TaskStateWorking {
		t.Fatalf("state = %q before cancel, want working", sent.Status.State)
	}

	got, err := f.manager.CancelTask(t.Context(), sent.ID)
	if err != nil {
		t.Fatalf("CancelTask() error = %v", err)
	}
	if got.Status.State != boltevents.TaskStateCanceled {
		t.Errorf("state = %q, want canceled", got.Status.State)
	}

	// The cancellation went through the log.
	entries, err := f.manager.Subscriber().AllEvents(t.Context(), sent.ID, 0)
	if err != nil {
		t.Fatalf("AllEvents() error = %v", err)
	}
	last := entries[len(entries)-1].Event
	if last.EventType() != "task.canceled" {
		t.Errorf("last log event = %q, want task.canceled", last.EventType())
	}
}

func TestCancelTaskErrors(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())

	done, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("finish"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	t.Run("error: terminal task", func(t *testing.T) {
		t.Parallel()

		_, err := f.manager.CancelTask(t.Context(), done.ID)
		var notCancelable boltevents.TaskNotCancelableError
		if !errors.As(err, &notCancelable) {
			t.Fatalf("error = %v, want TaskNotCancelableError", err)
		}
		if notCancelable.State != boltevents.TaskStateCompleted {
			t.Errorf("error state = %q, want completed", notCancelable.State)
		}
	})

	t.Run("error: unknown task", func(t *testing.T) {
		t.Parallel()

		_, err := f.manager.CancelTask(t.Context(), "task-missing")
		var notFound boltevents.TaskNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("error = %v, want TaskNotFoundError", err)
		}
	})
}

func TestRebuildTaskFromLog(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())

	sent, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("rebuild me"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	// Simulate a store that lost the projection entirely.
	if err := f.store.Delete(t.Context(), sent.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	rebuilt, err := f.manager.RebuildTask(t.Context(), sent.ID)
	if err != nil {
		t.Fatalf("RebuildTask() error = %v", err)
	}
	if rebuilt.Status.State != boltevents.TaskStateCompleted {
		t.Errorf("rebuilt state = %q, want completed", rebuilt.Status.State)
	}
	if len(rebuilt.History) != len(sent.History) {
		t.Errorf("rebuilt history = %d messages, want %d", len(rebuilt.History), len(sent.History))
	}

	// The projection is restored in the store.
	got, err := f.store.Get(t.Context(), sent.ID)
	if err != nil {
		t.Fatalf("Get() after rebuild error = %v", err)
	}
	if got.Status.State != boltevents.TaskStateCompleted {
		t.Errorf("stored state = %q, want completed", got.Status.State)
	}
}

func TestRebuildTaskEmptyLog(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())

	_, err := f.manager.RebuildTask(t.Context(), "task-missing")
	var notFound boltevents.TaskNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want TaskNotFoundError", err)
	}
}

func TestConversationTracking(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t, completingExecutor())
	conversations := task.NewInMemoryConversationStore()
	f.manager.WithConversationStore(conversations)

	sent, err := f.manager.SendTask(t.Context(), boltevents.TaskSendParams{
		Message: userMessage("track me"),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	conv, err := conversations.Get(t.Context(), sent.ContextID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if conv.TaskCount != 1 {
		t.Errorf("task count = %d, want 1", conv.TaskCount)
	}
	// The task is done, so the conversation is no longer streaming.
	if conv.IsStreaming {
		t.Error("conversation still marked streaming after terminal state")
	}
}
