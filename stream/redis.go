// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	boltevents "github.com/daniprol/bolt-events"
)

// RedisLog is the Redis Streams implementation of EventLog. Each task owns
// one stream keyed <prefix>:<taskID>; entries hold the serialized event
// under the "data" field. Appends trim with MAXLEN ~ so retention is
// approximate. The client's connection pool is shared process-wide and
// connections are never held across blocking calls exclusively.
type RedisLog struct {
	client redis.UniversalClient
	opts   Options
	logger *slog.Logger
}

var _ EventLog = (*RedisLog)(nil)

// NewRedisLog creates a RedisLog on an existing client. The client is owned
// by the caller unless Close is used to tear the process down.
func NewRedisLog(client redis.UniversalClient, opts Options) *RedisLog {
	return &RedisLog{
		client: client,
		opts:   opts.withDefaults(),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the RedisLog.
func (l *RedisLog) WithLogger(logger *slog.Logger) *RedisLog {
	l.logger = logger
	return l
}

// Append appends the event to the task's stream via XADD.
func (l *RedisLog) Append(ctx context.Context, taskID string, ev boltevents.Event) (Position, error) {
	data, err := boltevents.MarshalEvent(ev)
	if err != nil {
		return Start, err
	}

	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.opts.key(taskID),
		MaxLen: l.opts.MaxLen,
		Approx: true,
		Values: map[string]any{"data": data},
	}).Result()
	if err != nil {
		return Start, &TransportError{Op: "append", Err: err}
	}

	l.logger.DebugContext(ctx, "appended event", "task_id", taskID, "type", ev.EventType(), "position", id)
	return Position(id), nil
}

// Range reads entries after `after` up to `to` inclusive via XRANGE.
func (l *RedisLog) Range(ctx context.Context, taskID string, after, to Position, limit int64) ([]Entry, error) {
	min := "-"
	if after != Start {
		min = "(" + string(after)
	}
	max := "+"
	if to != Start {
		max = string(to)
	}
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	msgs, err := l.client.XRangeN(ctx, l.opts.key(taskID), min, max, limit).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, &TransportError{Op: "range", Err: err}
	}

	return l.decode(ctx, taskID, msgs), nil
}

// ReadBlocking waits up to timeout for entries after `after` via
// XREAD BLOCK. A timeout returns an empty result.
func (l *RedisLog) ReadBlocking(ctx context.Context, taskID string, after Position, timeout time.Duration) ([]Entry, error) {
	cursor := "0"
	if after != Start {
		cursor = string(after)
	}

	streams, err := l.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{l.opts.key(taskID), cursor},
		Count:   DefaultReadLimit,
		Block:   timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// No new entries within the timeout.
			return nil, nil
		}
		return nil, &TransportError{Op: "read", Err: err}
	}

	var entries []Entry
	for _, s := range streams {
		entries = append(entries, l.decode(ctx, taskID, s.Messages)...)
	}
	return entries, nil
}

// CreateGroup creates the consumer group at the start of the stream,
// creating the stream itself if needed. An existing group is a no-op.
func (l *RedisLog) CreateGroup(ctx context.Context, taskID, group string) error {
	err := l.client.XGroupCreateMkStream(ctx, l.opts.key(taskID), group, "0").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return &TransportError{Op: "create group", Err: err}
	}
	return nil
}

// ReadGroup reads never-delivered entries for the consumer via
// XREADGROUP ">", leaving them pending until acknowledged.
func (l *RedisLog) ReadGroup(ctx context.Context, taskID, group, consumer string, timeout time.Duration, limit int64) ([]Entry, error) {
	if err := l.CreateGroup(ctx, taskID, group); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	streams, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{l.opts.key(taskID), ">"},
		Count:    limit,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, &TransportError{Op: "read group", Err: err}
	}

	var entries []Entry
	for _, s := range streams {
		entries = append(entries, l.decode(ctx, taskID, s.Messages)...)
	}
	return entries, nil
}

// Ack acknowledges the entry at pos for the group via XACK.
func (l *RedisLog) Ack(ctx context.Context, taskID, group string, pos Position) error {
	if err := l.client.XAck(ctx, l.opts.key(taskID), group, string(pos)).Err(); err != nil {
		return &TransportError{Op: "ack", Err: err}
	}
	return nil
}

// Pending lists the group's unacknowledged entries via XPENDING.
func (l *RedisLog) Pending(ctx context.Context, taskID, group string, limit int64) ([]PendingEntry, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	pending, err := l.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: l.opts.key(taskID),
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  limit,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, &TransportError{Op: "pending", Err: err}
	}

	entries := make([]PendingEntry, 0, len(pending))
	for _, p := range pending {
		entries = append(entries, PendingEntry{
			Position:      Position(p.ID),
			Consumer:      p.Consumer,
			DeliveryCount: p.RetryCount,
			Idle:          p.Idle,
		})
	}
	return entries, nil
}

// Close closes the underlying Redis client and its connection pool.
func (l *RedisLog) Close() error {
	return l.client.Close()
}

// decode turns raw stream messages into entries, skipping entries whose
// payload does not parse. A corrupt entry is logged and dropped, never
// fatal to the read.
func (l *RedisLog) decode(ctx context.Context, taskID string, msgs []redis.XMessage) []Entry {
	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			l.logger.WarnContext(ctx, "skipping malformed log entry", "task_id", taskID, "position", msg.ID, "reason", "missing data field")
			continue
		}
		ev, err := boltevents.UnmarshalEvent([]byte(data))
		if err != nil {
			l.logger.WarnContext(ctx, "skipping malformed log entry", "task_id", taskID, "position", msg.ID, "error", err)
			continue
		}
		entries = append(entries, Entry{Position: Position(msg.ID), Event: ev})
	}
	return entries
}

// Ping verifies connectivity to the log store.
func (l *RedisLog) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return &TransportError{Op: "ping", Err: err}
	}
	return nil
}

// NewRedisClient builds a Redis client with a process-wide connection pool
// sized for many concurrent logical readers and writers.
func NewRedisClient(addr, password string, db int) redis.UniversalClient {
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     100,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		DialTimeout:  10 * time.Second,
	})
}

// String describes the log for diagnostics.
func (l *RedisLog) String() string {
	return fmt.Sprintf("RedisLog{prefix: %s, maxlen: %d}", l.opts.Prefix, l.opts.MaxLen)
}
