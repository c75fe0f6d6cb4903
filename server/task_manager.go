// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	boltevents "github.com/daniprol/bolt-events"
	"github.com/daniprol/bolt-events/agent"
	"github.com/daniprol/bolt-events/server/task"
	"github.com/daniprol/bolt-events/stream"
)

// TaskManager drives the task lifecycle. Every state change flows through
// the event log first; the task store is a best-effort projection that can
// be rebuilt from the log at any time.
type TaskManager struct {
	publisher  *stream.Publisher
	subscriber *stream.Subscriber
	store      task.TaskStore

	executor      agent.Executor
	conversations task.ConversationStore
	pushConfigs   task.PushNotificationConfigStore
	notifier      *PushNotifier

	logger *slog.Logger
	tracer trace.Tracer
}

// NewTaskManager creates a TaskManager on top of an event log and a task
// store.
func NewTaskManager(log stream.EventLog, store task.TaskStore, executor agent.Executor) *TaskManager {
	return &TaskManager{
		publisher:  stream.NewPublisher(log),
		subscriber: stream.NewSubscriber(log),
		store:      store,
		executor:   executor,
		logger:     slog.Default(),
		tracer:     otel.GetTracerProvider().Tracer("github.com/daniprol/bolt-events/server"),
	}
}

// WithLogger sets the logger for the TaskManager.
func (tm *TaskManager) WithLogger(logger *slog.Logger) *TaskManager {
	tm.logger = logger
	tm.publisher.WithLogger(logger)
	tm.subscriber.WithLogger(logger)
	return tm
}

// WithTracer sets the tracer for the TaskManager.
func (tm *TaskManager) WithTracer(tracer trace.Tracer) *TaskManager {
	tm.tracer = tracer
	tm.publisher.WithTracer(tracer)
	return tm
}

// WithConversationStore enables conversation bookkeeping.
func (tm *TaskManager) WithConversationStore(store task.ConversationStore) *TaskManager {
	tm.conversations = store
	return tm
}

// WithPushNotifications enables terminal-state webhook delivery.
func (tm *TaskManager) WithPushNotifications(configs task.PushNotificationConfigStore, notifier *PushNotifier) *TaskManager {
	tm.pushConfigs = configs
	tm.notifier = notifier
	return tm
}

// Subscriber exposes the log reader used for streaming and replay.
func (tm *TaskManager) Subscriber() *stream.Subscriber { return tm.subscriber }

// SendTask creates (or resumes) a task, runs the executor to completion and
// returns the final task. Blocks until the executor closes its event
// channel.
func (tm *TaskManager) SendTask(ctx context.Context, params boltevents.TaskSendParams) (*boltevents.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "task_manager.SendTask",
		trace.WithAttributes(attribute.String("a2a.task_id", params.ID)))
	defer span.End()

	t, err := tm.acceptTask(ctx, params)
	if err != nil {
		return nil, err
	}

	if err := tm.runExecutor(ctx, t, params.Message); err != nil {
		return nil, err
	}
	return tm.store.Get(ctx, t.ID)
}

// SendTaskSubscribe creates (or resumes) a task and runs the executor in
// the background. The returned task is the submitted snapshot; callers
// observe progress by subscribing to the event log.
func (tm *TaskManager) SendTaskSubscribe(ctx context.Context, params boltevents.TaskSendParams) (*boltevents.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "task_manager.SendTaskSubscribe",
		trace.WithAttributes(attribute.String("a2a.task_id", params.ID)))
	defer span.End()

	t, err := tm.acceptTask(ctx, params)
	if err != nil {
		return nil, err
	}

	// The executor must outlive the HTTP request that started it.
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := tm.runExecutor(bg, t, params.Message); err != nil {
			tm.logger.ErrorContext(bg, "background executor failed", "task_id", t.ID, "error", err)
		}
	}()

	return t, nil
}

// acceptTask resolves the task a send refers to. A new task is created and
// its submitted event appended; a follow-up message to an existing
// non-terminal task is appended to history through the log.
func (tm *TaskManager) acceptTask(ctx context.Context, params boltevents.TaskSendParams) (*boltevents.Task, error) {
	if err := params.Message.Validate(); err != nil {
		return nil, task.NewTaskValidationError(params.ID, err)
	}

	if params.ID != "" {
		existing, err := tm.store.Get(ctx, params.ID)
		switch {
		case err == nil:
			if existing.Status.State.Terminal() {
				return nil, task.TaskNotUpdatableError{TaskID: existing.ID, State: existing.Status.State}
			}
			ev := &boltevents.MessageEvent{TaskID: existing.ID, Message: params.Message}
			if _, err := tm.ProcessEvent(ctx, ev); err != nil {
				return nil, err
			}
			return existing, nil
		case errors.As(err, &boltevents.TaskNotFoundError{}):
			// Fall through and create the task with the given ID.
		default:
			return nil, err
		}
	}

	t, err := boltevents.NewTask(params.Message, params.ID, params.ContextID)
	if err != nil {
		return nil, err
	}
	if params.Metadata != nil {
		t.Metadata = params.Metadata
	}
	if err := tm.store.Save(ctx, t); err != nil {
		return nil, err
	}
	tm.trackConversation(ctx, t)

	submitted := &boltevents.StatusEvent{
		TaskID:  t.ID,
		State:   boltevents.TaskStateSubmitted,
		Message: &t.History[0],
	}
	if _, err := tm.publisher.Publish(ctx, t.ID, submitted); err != nil {
		return nil, err
	}

	tm.logger.InfoContext(ctx, "task created", "task_id", t.ID, "context_id", t.ContextID)
	return t, nil
}

// runExecutor runs the agent over a buffered channel and folds every
// emitted event through ProcessEvent. If the executor fails without
// reaching a terminal state, a task.failed event is appended on its
// behalf.
func (tm *TaskManager) runExecutor(ctx context.Context, t *boltevents.Task, message boltevents.Message) error {
	if tm.executor == nil {
		return fmt.Errorf("no executor configured")
	}

	events := make(chan boltevents.Event, 16)
	execErr := make(chan error, 1)
	go func() {
		execErr <- tm.executor.Execute(ctx, t, message, events)
	}()

	sawTerminal := false
	for ev := range events {
		if _, err := tm.ProcessEvent(ctx, ev); err != nil {
			tm.logger.WarnContext(ctx, "event dropped", "task_id", t.ID, "event_type", ev.EventType(), "error", err)
			continue
		}
		if boltevents.IsFinalEvent(ev) {
			sawTerminal = true
		}
	}

	err := <-execErr
	if err != nil && !sawTerminal {
		failure := boltevents.NewFailedEvent(t.ID, &boltevents.Message{
			MessageID: boltevents.NewMessageID(),
			Role:      boltevents.RoleAgent,
			Parts: []boltevents.Part{
				{Type: boltevents.PartTypeText, Text: err.Error()},
			},
		})
		if _, pubErr := tm.ProcessEvent(ctx, failure); pubErr != nil {
			tm.logger.ErrorContext(ctx, "failed to record executor failure", "task_id", t.ID, "error", pubErr)
		}
	}
	return err
}

// ProcessEvent appends an event to the log and projects it onto the task
// store. The append and the projection are two separate steps: the log is
// authoritative and a projection failure only logs a warning.
func (tm *TaskManager) ProcessEvent(ctx context.Context, ev boltevents.Event) (stream.Position, error) {
	ctx, span := tm.tracer.Start(ctx, "task_manager.ProcessEvent",
		trace.WithAttributes(
			attribute.String("a2a.task_id", ev.EventTaskID()),
			attribute.String("a2a.event_type", ev.EventType()),
		))
	defer span.End()

	pos, err := tm.publisher.Publish(ctx, ev.EventTaskID(), ev)
	if err != nil {
		return stream.Start, err
	}

	if err := tm.project(ctx, ev); err != nil {
		tm.logger.WarnContext(ctx, "projection failed, log remains authoritative",
			"task_id", ev.EventTaskID(), "event_type", ev.EventType(), "error", err)
	}
	return pos, nil
}

// project applies a single event to the task store. State-changing events
// against a terminal task are absorbed with a warning.
func (tm *TaskManager) project(ctx context.Context, ev boltevents.Event) error {
	taskID := ev.EventTaskID()

	switch e := ev.(type) {
	case *boltevents.StatusEvent:
		current, err := tm.store.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if current.Status.State.Terminal() {
			tm.logger.WarnContext(ctx, "ignoring state change on terminal task",
				"task_id", taskID, "state", current.Status.State, "event_type", ev.EventType())
			return nil
		}
		if err := tm.store.UpdateStatus(ctx, taskID, e.State, e.Message); err != nil {
			return err
		}
		if e.State.Terminal() {
			tm.updateConversationAfterTerminal(ctx, current.ContextID)
			tm.notifyTerminal(ctx, taskID)
		}
		return nil

	case *boltevents.MessageEvent:
		return tm.store.AppendMessage(ctx, taskID, e.Message)

	case *boltevents.ArtifactEvent:
		return tm.store.AddArtifact(ctx, taskID, e.Artifact)

	default:
		// Unknown event types live only in the log.
		tm.logger.DebugContext(ctx, "no projection for event", "task_id", taskID, "event_type", ev.EventType())
		return nil
	}
}

// GetTask retrieves a task. When historyLength is non-nil the history is
// truncated to the most recent n messages.
func (tm *TaskManager) GetTask(ctx context.Context, taskID string, historyLength *int) (*boltevents.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "task_manager.GetTask",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	t, err := tm.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if historyLength != nil {
		n := *historyLength
		if n < 0 {
			n = 0
		}
		if len(t.History) > n {
			t.History = t.History[len(t.History)-n:]
		}
	}
	return t, nil
}

// CancelTask cancels a non-terminal task. The cancellation goes through
// the event log like every other state change.
func (tm *TaskManager) CancelTask(ctx context.Context, taskID string) (*boltevents.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "task_manager.CancelTask",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	t, err := tm.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status.State.Terminal() {
		return nil, boltevents.TaskNotCancelableError{TaskID: taskID, State: t.Status.State}
	}

	if _, err := tm.ProcessEvent(ctx, boltevents.NewCanceledEvent(taskID)); err != nil {
		return nil, err
	}

	tm.logger.InfoContext(ctx, "task canceled", "task_id", taskID)
	return tm.store.Get(ctx, taskID)
}

// Resubscribe returns the current task snapshot for a streaming client
// that reconnects. The caller resumes event delivery from its last seen
// position via the Subscriber.
func (tm *TaskManager) Resubscribe(ctx context.Context, taskID string) (*boltevents.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "task_manager.Resubscribe",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	return tm.store.Get(ctx, taskID)
}

// RebuildTask reconstructs a task's projection by replaying the full event
// log for the task. This is the recovery path when the store has drifted
// from the log.
func (tm *TaskManager) RebuildTask(ctx context.Context, taskID string) (*boltevents.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "task_manager.RebuildTask",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	entries, err := tm.subscriber.AllEvents(ctx, taskID, 0)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, boltevents.TaskNotFoundError{TaskID: taskID}
	}

	t := &boltevents.Task{
		ID:     taskID,
		Status: boltevents.TaskStatus{State: boltevents.TaskStateSubmitted},
	}
	if existing, err := tm.store.Get(ctx, taskID); err == nil {
		t.ContextID = existing.ContextID
		t.Metadata = existing.Metadata
		t.CreatedAt = existing.CreatedAt
	} else {
		t.ContextID = boltevents.NewContextID()
	}

	for _, entry := range entries {
		switch e := entry.Event.(type) {
		case *boltevents.StatusEvent:
			t.Status = boltevents.TaskStatus{State: e.State, Message: e.Message}
			if e.State == boltevents.TaskStateSubmitted && e.Message != nil {
				t.History = append(t.History, *e.Message)
			}
		case *boltevents.MessageEvent:
			t.History = append(t.History, e.Message)
		case *boltevents.ArtifactEvent:
			t.Artifacts = append(t.Artifacts, e.Artifact)
		}
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	if err := tm.store.Save(ctx, t); err != nil {
		return nil, err
	}

	tm.logger.InfoContext(ctx, "task rebuilt from log", "task_id", taskID, "events", len(entries), "state", t.Status.State)
	return t, nil
}

func (tm *TaskManager) trackConversation(ctx context.Context, t *boltevents.Task) {
	if tm.conversations == nil {
		return
	}

	conv, err := tm.conversations.Get(ctx, t.ContextID)
	if err != nil {
		conv = &boltevents.Conversation{
			ContextID: t.ContextID,
			AgentID:   "default",
			CreatedAt: t.CreatedAt,
		}
	}
	conv.TaskCount++
	conv.IsStreaming = true
	conv.UpdatedAt = t.CreatedAt
	if err := tm.conversations.Save(ctx, conv); err != nil {
		tm.logger.WarnContext(ctx, "conversation update failed", "context_id", t.ContextID, "error", err)
	}
}

func (tm *TaskManager) updateConversationAfterTerminal(ctx context.Context, contextID string) {
	if tm.conversations == nil || contextID == "" {
		return
	}

	conv, err := tm.conversations.Get(ctx, contextID)
	if err != nil {
		return
	}
	conv.IsStreaming = false
	if err := tm.conversations.Save(ctx, conv); err != nil {
		tm.logger.WarnContext(ctx, "conversation update failed", "context_id", contextID, "error", err)
	}
}

// notifyTerminal delivers the push notification for a task that just
// reached a terminal state.
func (tm *TaskManager) notifyTerminal(ctx context.Context, taskID string) {
	if tm.pushConfigs == nil || tm.notifier == nil {
		return
	}

	config, err := tm.pushConfigs.GetConfig(ctx, taskID)
	if err != nil {
		return
	}
	t, err := tm.store.Get(ctx, taskID)
	if err != nil {
		return
	}

	go func() {
		bg := context.WithoutCancel(ctx)
		if err := tm.notifier.Notify(bg, t, config); err != nil {
			tm.logger.WarnContext(bg, "push notification failed", "task_id", taskID, "error", err)
		}
	}()
}
