// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Subscriber turns a task's event log into a lazy, resumable, near-real-time
// sequence of entries. Every live viewer of a task holds its own
// Subscription; deliveries fan out to all of them, unlike the exclusive
// delivery of GroupReader.
type Subscriber struct {
	log    EventLog
	logger *slog.Logger

	// pollTimeout bounds each blocking read; it also bounds worst-case
	// shutdown latency of a live subscription.
	pollTimeout time.Duration

	// backoff is the fixed sleep after a transport failure before retrying
	// the same cursor.
	backoff time.Duration
}

// NewSubscriber creates a Subscriber over the given log with the default
// 1s poll timeout and 1s failure backoff.
func NewSubscriber(log EventLog) *Subscriber {
	return &Subscriber{
		log:         log,
		logger:      slog.Default(),
		pollTimeout: DefaultPollTimeout,
		backoff:     time.Second,
	}
}

// WithLogger sets the logger for the Subscriber.
func (s *Subscriber) WithLogger(logger *slog.Logger) *Subscriber {
	s.logger = logger
	return s
}

// WithPollTimeout sets the blocking-read timeout.
func (s *Subscriber) WithPollTimeout(d time.Duration) *Subscriber {
	if d > 0 {
		s.pollTimeout = d
	}
	return s
}

// WithBackoff sets the fixed retry backoff after transport failures.
func (s *Subscriber) WithBackoff(d time.Duration) *Subscriber {
	if d > 0 {
		s.backoff = d
	}
	return s
}

// Subscription is one live, non-restartable event sequence for a task.
// Entries arrive on Events in log order; each carries the position to
// resume from after a disconnect. The sequence ends when the context is
// canceled or Stop is called; cutting off at a terminal event is the
// calling layer's convention, not the Subscription's.
type Subscription struct {
	events chan Entry
	stop   chan struct{}
	once   sync.Once
}

// Events returns the channel entries are delivered on. It is closed when
// the subscription ends.
func (s *Subscription) Events() <-chan Entry { return s.events }

// Stop ends the subscription. Safe to call more than once.
func (s *Subscription) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// Subscribe starts streaming the task's events. With last == Start the
// whole retained log is replayed first; otherwise the stream resumes
// strictly after last, yielding exactly the later events in order with no
// duplicates and no gaps, unless trimming evicted them (bounded retention).
//
// Transport failures are retried in place with a fixed backoff, never
// advancing the cursor, so no event is skipped by a flaky connection.
func (s *Subscriber) Subscribe(ctx context.Context, taskID string, last Position) *Subscription {
	sub := &Subscription{
		events: make(chan Entry),
		stop:   make(chan struct{}),
	}

	go s.run(ctx, taskID, last, sub)
	return sub
}

func (s *Subscriber) run(ctx context.Context, taskID string, cursor Position, sub *Subscription) {
	defer close(sub.events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.stop:
			return
		default:
		}

		entries, err := s.log.ReadBlocking(ctx, taskID, cursor, s.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.WarnContext(ctx, "event stream read failed, retrying", "task_id", taskID, "cursor", cursor, "error", err)
			select {
			case <-time.After(s.backoff):
			case <-ctx.Done():
				return
			case <-sub.stop:
				return
			}
			continue
		}

		for _, entry := range entries {
			select {
			case sub.events <- entry:
				cursor = entry.Position
			case <-ctx.Done():
				return
			case <-sub.stop:
				return
			}
		}
	}
}

// EventsSince replays the events strictly after `after` without waiting for
// new ones. Transport failures are returned to the caller; malformed
// entries are skipped by the log.
func (s *Subscriber) EventsSince(ctx context.Context, taskID string, after Position, limit int64) ([]Entry, error) {
	return s.log.Range(ctx, taskID, after, Start, limit)
}

// AllEvents replays the task's whole retained log from the start.
func (s *Subscriber) AllEvents(ctx context.Context, taskID string, limit int64) ([]Entry, error) {
	return s.log.Range(ctx, taskID, Start, Start, limit)
}
