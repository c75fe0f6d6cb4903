// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	boltevents "github.com/daniprol/bolt-events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runExecutor(t *testing.T, ctx context.Context, e Executor) ([]boltevents.Event, error) {
	t.Helper()

	task, err := boltevents.NewTask(boltevents.Message{
		Role:  boltevents.RoleUser,
		Parts: []boltevents.Part{{Type: boltevents.PartTypeText, Text: "summarize the report"}},
	}, "task-1", "ctx-1")
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}

	events := make(chan boltevents.Event, 64)
	execErr := make(chan error, 1)
	go func() {
		execErr <- e.Execute(ctx, task, task.History[0], events)
	}()

	var emitted []boltevents.Event
	for ev := range events {
		emitted = append(emitted, ev)
	}
	return emitted, <-execErr
}

func TestFakeExecutorEventSequence(t *testing.T) {
	t.Parallel()

	e := NewFakeExecutor()
	e.TextDelay = 0
	e.NumChunks = 3

	emitted, err := runExecutor(t, t.Context(), e)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	wantTypes := []string{
		"task.working",
		"tool-call",
		"tool-call-result",
		"task.message",
		"task.message",
		"task.message",
		"task.artifact",
		"task.completed",
	}
	if len(emitted) != len(wantTypes) {
		t.Fatalf("emitted %d events, want %d", len(emitted), len(wantTypes))
	}
	for i, ev := range emitted {
		if ev.EventType() != wantTypes[i] {
			t.Errorf("event %d type = %q, want %q", i, ev.EventType(), wantTypes[i])
		}
		if ev.EventTaskID() != "task-1" {
			t.Errorf("event %d task ID = %q, want task-1", i, ev.EventTaskID())
		}
	}

	final, ok := emitted[len(emitted)-1].(*boltevents.StatusEvent)
	if !ok || !boltevents.IsFinalEvent(final) {
		t.Fatalf("last event = %T, want a terminal status event", emitted[len(emitted)-1])
	}
	if final.Message == nil || final.Message.Text() == "" {
		t.Error("completion event missing final message")
	}
}

func TestFakeExecutorMinimalSequence(t *testing.T) {
	t.Parallel()

	e := &FakeExecutor{NumChunks: 1, Logger: testLogger()}

	emitted, err := runExecutor(t, t.Context(), e)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	wantTypes := []string{"task.working", "task.message", "task.completed"}
	if len(emitted) != len(wantTypes) {
		t.Fatalf("emitted %d events, want %d", len(emitted), len(wantTypes))
	}
	for i, ev := range emitted {
		if ev.EventType() != wantTypes[i] {
			t.Errorf("event %d type = %q, want %q", i, ev.EventType(), wantTypes[i])
		}
	}
}

func TestFakeExecutorCancel(t *testing.T) {
	t.Parallel()

	e := NewFakeExecutor()
	e.TextDelay = time.Second
	e.NumChunks = 100

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	emitted, err := runExecutor(t, ctx, e)
	if err == nil {
		t.Fatal("Execute() error = nil, want context error")
	}
	if len(emitted) == 0 {
		t.Error("expected at least the working event before cancel")
	}
	for _, ev := range emitted {
		if boltevents.IsFinalEvent(ev) {
			t.Error("canceled run must not emit a terminal event")
		}
	}
}

func TestExecutorFunc(t *testing.T) {
	t.Parallel()

	fn := ExecutorFunc(func(ctx context.Context, task *boltevents.Task, message boltevents.Message, events chan<- boltevents.Event) error {
		defer close(events)
		events <- boltevents.NewWorkingEvent(task.ID)
		events <- boltevents.NewCompletedEvent(task.ID, nil)
		return nil
	})

	emitted, err := runExecutor(t, t.Context(), fn)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(emitted) != 2 || !boltevents.IsFinalEvent(emitted[1]) {
		t.Fatalf("emitted = %+v, want working then completed", emitted)
	}
}
