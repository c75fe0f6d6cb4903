// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	boltevents "github.com/daniprol/bolt-events"
)

// Publisher appends task events to the event log. It performs no retries:
// a transport failure is returned to the caller, who decides whether to
// retry or abort the enclosing task operation.
type Publisher struct {
	log    EventLog
	logger *slog.Logger
	tracer trace.Tracer
}

// NewPublisher creates a Publisher over the given log.
func NewPublisher(log EventLog) *Publisher {
	return &Publisher{
		log:    log,
		logger: slog.Default(),
		tracer: otel.GetTracerProvider().Tracer("github.com/daniprol/bolt-events/stream"),
	}
}

// WithLogger sets the logger for the Publisher.
func (p *Publisher) WithLogger(logger *slog.Logger) *Publisher {
	p.logger = logger
	return p
}

// WithTracer sets the tracer for the Publisher.
func (p *Publisher) WithTracer(tracer trace.Tracer) *Publisher {
	p.tracer = tracer
	return p
}

// Publish appends the event to the task's log and returns its position.
// The caller is responsible for setting the event's task ID and type
// beforehand; Publish tags nothing on.
func (p *Publisher) Publish(ctx context.Context, taskID string, ev boltevents.Event) (Position, error) {
	ctx, span := p.tracer.Start(ctx, "stream.publish",
		trace.WithAttributes(
			attribute.String("a2a.task_id", taskID),
			attribute.String("a2a.event_type", ev.EventType()),
		))
	defer span.End()

	if taskID == "" {
		return Start, fmt.Errorf("task ID cannot be empty")
	}

	pos, err := p.log.Append(ctx, taskID, ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to publish event", "task_id", taskID, "type", ev.EventType(), "error", err)
		return Start, err
	}

	return pos, nil
}
