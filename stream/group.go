// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// GroupReader shares delivery of one task's events across the named
// consumers of a group: each event reaches exactly one consumer, which must
// acknowledge it after processing. Unacknowledged events stay pending and
// visible through Pending until the backend redelivers or an operator
// intervenes. Use it to split event-processing load horizontally; use
// Subscriber when every reader needs every event.
type GroupReader struct {
	log    EventLog
	group  string
	logger *slog.Logger

	pollTimeout time.Duration
	backoff     time.Duration
	batchSize   int64
}

// NewGroupReader creates a reader for the named consumer group.
func NewGroupReader(log EventLog, group string) (*GroupReader, error) {
	if group == "" {
		return nil, fmt.Errorf("group name cannot be empty")
	}
	return &GroupReader{
		log:         log,
		group:       group,
		logger:      slog.Default(),
		pollTimeout: 5 * time.Second,
		backoff:     time.Second,
		batchSize:   10,
	}, nil
}

// WithLogger sets the logger for the GroupReader.
func (g *GroupReader) WithLogger(logger *slog.Logger) *GroupReader {
	g.logger = logger
	return g
}

// WithBatchSize sets how many entries one blocking group read may claim.
func (g *GroupReader) WithBatchSize(n int64) *GroupReader {
	if n > 0 {
		g.batchSize = n
	}
	return g
}

// Read claims up to limit never-delivered entries for the named consumer,
// waiting up to timeout when none exist. Claimed entries are pending for
// this consumer until Ack.
func (g *GroupReader) Read(ctx context.Context, taskID, consumer string, timeout time.Duration, limit int64) ([]Entry, error) {
	if consumer == "" {
		return nil, fmt.Errorf("consumer name cannot be empty")
	}
	return g.log.ReadGroup(ctx, taskID, g.group, consumer, timeout, limit)
}

// Consume starts a live claiming loop in the same lazy-sequence shape as
// Subscriber.Subscribe. The caller must Ack every entry after successful
// processing; entries left unacknowledged remain pending and redeliverable.
func (g *GroupReader) Consume(ctx context.Context, taskID, consumer string) *Subscription {
	sub := &Subscription{
		events: make(chan Entry),
		stop:   make(chan struct{}),
	}
	go g.run(ctx, taskID, consumer, sub)
	return sub
}

func (g *GroupReader) run(ctx context.Context, taskID, consumer string, sub *Subscription) {
	defer close(sub.events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.stop:
			return
		default:
		}

		entries, err := g.log.ReadGroup(ctx, taskID, g.group, consumer, g.pollTimeout, g.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.WarnContext(ctx, "group read failed, retrying", "task_id", taskID, "group", g.group, "consumer", consumer, "error", err)
			select {
			case <-time.After(g.backoff):
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
			case <-ctx.Done():
				return
			case <-sub.stop:
				return
			}
		}
	}
}

// Ack acknowledges successful processing of the entry at pos.
func (g *GroupReader) Ack(ctx context.Context, taskID string, pos Position) error {
	return g.log.Ack(ctx, taskID, g.group, pos)
}

// Pending lists the group's delivered-but-unacknowledged entries so
// operators can inspect stuck or slow consumers.
func (g *GroupReader) Pending(ctx context.Context, taskID string, limit int64) ([]PendingEntry, error) {
	return g.log.Pending(ctx, taskID, g.group, limit)
}
