// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	boltevents "github.com/daniprol/bolt-events"
)

// FakeExecutor is a simulated agent for testing and benchmarking the
// streaming pipeline. It emits a working transition, an optional mock tool
// call, a configurable number of chunked text messages, an optional
// artifact and a final completion.
type FakeExecutor struct {
	// TextDelay is the pause between emitted chunks.
	TextDelay time.Duration

	// NumChunks is how many text message chunks to emit.
	NumChunks int

	// IncludeTools emits mock tool-call events (unknown-typed on the wire).
	IncludeTools bool

	// IncludeArtifacts emits a mock artifact.
	IncludeArtifacts bool

	Logger *slog.Logger
}

var _ Executor = (*FakeExecutor)(nil)

// NewFakeExecutor creates a FakeExecutor with the default behavior: five
// chunks, tool calls and artifacts included.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{
		TextDelay:        100 * time.Millisecond,
		NumChunks:        5,
		IncludeTools:     true,
		IncludeArtifacts: true,
		Logger:           slog.Default(),
	}
}

// Execute emits the simulated event sequence for the task.
func (e *FakeExecutor) Execute(ctx context.Context, task *boltevents.Task, message boltevents.Message, events chan<- boltevents.Event) error {
	defer close(events)

	userText := message.Text()
	e.Logger.InfoContext(ctx, "fake agent processing task", "task_id", task.ID, "input", userText)

	if err := e.emit(ctx, events, boltevents.NewWorkingEvent(task.ID)); err != nil {
		return err
	}

	if e.IncludeTools {
		callID := fmt.Sprintf("tool-%s-1", task.ID)
		if err := e.emit(ctx, events, &boltevents.UnknownEvent{
			Type:   "tool-call",
			TaskID: task.ID,
			Fields: map[string]any{
				"toolCallId": callID,
				"toolName":   "fake_search",
				"input":      map[string]any{"query": userText},
			},
		}); err != nil {
			return err
		}
		if err := e.sleep(ctx); err != nil {
			return err
		}
		if err := e.emit(ctx, events, &boltevents.UnknownEvent{
			Type:   "tool-call-result",
			TaskID: task.ID,
			Fields: map[string]any{
				"toolCallId": callID,
				"result":     map[string]any{"results": []any{"fake result 1", "fake result 2"}},
			},
		}); err != nil {
			return err
		}
	}

	for i := range e.NumChunks {
		text := fmt.Sprintf("Response chunk %d/%d. Your message was: %q. Processing step %d of %d complete.",
			i+1, e.NumChunks, userText, i+1, e.NumChunks)
		if err := e.emit(ctx, events, &boltevents.MessageEvent{
			TaskID: task.ID,
			Message: boltevents.Message{
				MessageID: boltevents.NewMessageID(),
				Role:      boltevents.RoleAgent,
				Parts:     []boltevents.Part{{Type: boltevents.PartTypeText, Text: text}},
			},
		}); err != nil {
			return err
		}
		if err := e.sleep(ctx); err != nil {
			return err
		}
	}

	if e.IncludeArtifacts {
		if err := e.emit(ctx, events, &boltevents.ArtifactEvent{
			TaskID: task.ID,
			Artifact: boltevents.Artifact{
				Name: "analysis_result",
				Parts: []boltevents.Part{{
					Type: boltevents.PartTypeData,
					Data: map[string]any{
						"summary": "This is a simulated artifact for testing",
						"items":   []any{"item1", "item2", "item3"},
					},
				}},
			},
		}); err != nil {
			return err
		}
	}

	final := &boltevents.Message{
		MessageID: boltevents.NewMessageID(),
		Role:      boltevents.RoleAgent,
		Parts:     []boltevents.Part{{Type: boltevents.PartTypeText, Text: "Task completed successfully!"}},
	}
	if err := e.emit(ctx, events, boltevents.NewCompletedEvent(task.ID, final)); err != nil {
		return err
	}

	e.Logger.InfoContext(ctx, "fake agent completed task", "task_id", task.ID)
	return nil
}

func (e *FakeExecutor) emit(ctx context.Context, events chan<- boltevents.Event, ev boltevents.Event) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *FakeExecutor) sleep(ctx context.Context) error {
	if e.TextDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(e.TextDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
