// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream implements the per-task append-only event log and its
// consumption primitives: a Publisher that appends, a Subscriber that turns
// the log into a resumable near-real-time sequence, and a GroupReader that
// shares delivery across named consumers.
//
// Two EventLog implementations are provided: RedisLog over Redis Streams for
// production and MemoryLog for tests and single-process deployments. Both
// enforce an approximate maximum log length; resuming from a trimmed
// position silently skips the evicted entries, which is a documented
// limitation of bounded retention rather than an error.
package stream

import (
	"context"
	"strconv"
	"strings"
	"time"

	boltevents "github.com/daniprol/bolt-events"
)

// Default tuning values, matching the original deployment.
const (
	// DefaultStreamPrefix prefixes every per-task log key.
	DefaultStreamPrefix = "a2a:events"

	// DefaultMaxLen is the approximate maximum number of entries retained
	// per task log before the oldest are evicted.
	DefaultMaxLen = 1000

	// DefaultPollTimeout bounds a single blocking read.
	DefaultPollTimeout = time.Second

	// DefaultReadLimit caps a single non-blocking replay.
	DefaultReadLimit = 1000
)

// Position is the opaque, totally ordered identifier the log assigns to an
// event. Its string form doubles as the resumption token handed to clients.
// Positions support "strictly after" comparison only, never arithmetic.
// The zero value denotes the start of the log.
type Position string

// Start is the zero Position, denoting the start of a log.
const Start Position = ""

// After reports whether p sorts strictly after q in log order.
// Positions are two dash-separated numeric parts (Redis stream ID shape)
// and compare numerically part by part.
func (p Position) After(q Position) bool {
	if p == q || p == Start {
		return false
	}
	if q == Start {
		return true
	}
	pMajor, pMinor := p.parts()
	qMajor, qMinor := q.parts()
	if pMajor != qMajor {
		return pMajor > qMajor
	}
	return pMinor > qMinor
}

func (p Position) parts() (int64, int64) {
	major, minor, _ := strings.Cut(string(p), "-")
	ma, _ := strconv.ParseInt(major, 10, 64)
	mi, _ := strconv.ParseInt(minor, 10, 64)
	return ma, mi
}

// String returns the token form of the position.
func (p Position) String() string { return string(p) }

// Entry is one event together with its log position. The position is the
// resumption token for everything the consumer has seen up to and including
// this event.
type Entry struct {
	Position Position
	Event    boltevents.Event
}

// PendingEntry describes one delivered-but-unacknowledged entry of a
// consumer group, for operator inspection of stuck or slow consumers.
type PendingEntry struct {
	Position      Position
	Consumer      string
	DeliveryCount int64
	Idle          time.Duration
}

// EventLog is the append/read primitive over per-task ordered logs.
//
// Append is monotonic per task: every new position sorts strictly after all
// previously assigned positions for that task. Reads of an absent task or
// an empty range return empty results, never an error; transient
// connectivity failures surface as *TransportError for callers to retry.
// A single malformed entry is skipped with a logged warning and never
// aborts the surrounding read.
type EventLog interface {
	// Append appends the event to the task's log and returns its assigned
	// position. Appending may evict the oldest entries once the bounded
	// length is exceeded.
	Append(ctx context.Context, taskID string, ev boltevents.Event) (Position, error)

	// Range reads entries strictly after `after` and up to `to` inclusive,
	// in log order, returning at most limit entries. The zero `after` means
	// the start of the log and the zero `to` means the head. Range never
	// blocks.
	Range(ctx context.Context, taskID string, after, to Position, limit int64) ([]Entry, error)

	// ReadBlocking waits up to timeout for at least one entry strictly
	// after `after`, returning immediately if any already exist. A timeout
	// yields an empty slice, not an error.
	ReadBlocking(ctx context.Context, taskID string, after Position, timeout time.Duration) ([]Entry, error)

	// CreateGroup creates the named consumer group anchored at the start of
	// the task's log. Creating an existing group is a no-op.
	CreateGroup(ctx context.Context, taskID, group string) error

	// ReadGroup returns entries never before delivered to any consumer of
	// the group, marking them pending for the named consumer. It waits up
	// to timeout when no undelivered entries exist.
	ReadGroup(ctx context.Context, taskID, group, consumer string, timeout time.Duration, limit int64) ([]Entry, error)

	// Ack removes the entry at pos from the group's pending set. Acking an
	// already-acknowledged position is a no-op.
	Ack(ctx context.Context, taskID, group string, pos Position) error

	// Pending lists the group's delivered-but-unacknowledged entries.
	Pending(ctx context.Context, taskID, group string, limit int64) ([]PendingEntry, error)

	// Close releases the log's underlying resources.
	Close() error
}

// Options tunes an EventLog implementation.
type Options struct {
	// Prefix is prepended to task IDs to form log keys.
	Prefix string

	// MaxLen is the approximate maximum entries retained per task. The
	// bound is advisory: an implementation may briefly retain slightly
	// more, never fewer.
	MaxLen int64
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultStreamPrefix
	}
	if o.MaxLen <= 0 {
		o.MaxLen = DefaultMaxLen
	}
	return o
}

func (o Options) key(taskID string) string {
	return o.Prefix + ":" + taskID
}
