// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	boltevents "github.com/daniprol/bolt-events"
)

// MemoryLog is an in-memory implementation of EventLog with the same
// contract as RedisLog: monotonic per-task positions, bounded retention,
// blocking reads and consumer groups. Data is lost when the process stops.
// All operations are safe for concurrent use.
type MemoryLog struct {
	mu      sync.Mutex
	streams map[string]*memStream
	opts    Options
	logger  *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

var _ EventLog = (*MemoryLog)(nil)

type memStream struct {
	entries []memEntry
	lastMS  int64
	lastSeq int64
	groups  map[string]*memGroup

	// notify is closed and replaced on every append, waking blocked reads.
	notify chan struct{}
}

type memEntry struct {
	pos  Position
	data []byte
}

type memGroup struct {
	// lastDelivered is the highest position handed to any consumer.
	lastDelivered Position
	pending       map[Position]*memPending
}

type memPending struct {
	consumer      string
	deliveryCount int64
	deliveredAt   time.Time
}

// NewMemoryLog creates an empty MemoryLog.
func NewMemoryLog(opts Options) *MemoryLog {
	return &MemoryLog{
		streams: make(map[string]*memStream),
		opts:    opts.withDefaults(),
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// WithLogger sets the logger for the MemoryLog.
func (l *MemoryLog) WithLogger(logger *slog.Logger) *MemoryLog {
	l.logger = logger
	return l
}

func (l *MemoryLog) stream(taskID string, create bool) *memStream {
	s, ok := l.streams[taskID]
	if !ok && create {
		s = &memStream{
			groups: make(map[string]*memGroup),
			notify: make(chan struct{}),
		}
		l.streams[taskID] = s
	}
	return s
}

// Append appends the event and trims the oldest entries beyond the
// configured maximum.
func (l *MemoryLog) Append(ctx context.Context, taskID string, ev boltevents.Event) (Position, error) {
	data, err := boltevents.MarshalEvent(ev)
	if err != nil {
		return Start, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(taskID, true)
	pos := s.nextPosition(l.now())
	s.entries = append(s.entries, memEntry{pos: pos, data: data})
	if over := int64(len(s.entries)) - l.opts.MaxLen; over > 0 {
		s.entries = s.entries[over:]
	}

	close(s.notify)
	s.notify = make(chan struct{})

	return pos, nil
}

// appendRaw records arbitrary bytes as an entry. Used by tests to exercise
// the malformed-entry path.
func (l *MemoryLog) appendRaw(taskID string, data []byte) Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(taskID, true)
	pos := s.nextPosition(l.now())
	s.entries = append(s.entries, memEntry{pos: pos, data: data})
	close(s.notify)
	s.notify = make(chan struct{})
	return pos
}

func (s *memStream) nextPosition(now time.Time) Position {
	ms := now.UnixMilli()
	if ms <= s.lastMS {
		// Same or rewound clock: keep the position monotonic.
		ms = s.lastMS
		s.lastSeq++
	} else {
		s.lastMS = ms
		s.lastSeq = 0
	}
	// Matches the Redis stream ID shape <ms>-<seq>.
	return Position(strconv.FormatInt(ms, 10) + "-" + strconv.FormatInt(s.lastSeq, 10))
}

// Range reads entries after `after` up to `to` inclusive.
func (l *MemoryLog) Range(ctx context.Context, taskID string, after, to Position, limit int64) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(taskID, false)
	if s == nil {
		return nil, nil
	}
	return l.collect(ctx, taskID, s, after, to, limit), nil
}

// collect gathers decoded entries in (after, to] under the log lock.
func (l *MemoryLog) collect(ctx context.Context, taskID string, s *memStream, after, to Position, limit int64) []Entry {
	var entries []Entry
	for _, e := range s.entries {
		if !e.pos.After(after) {
			continue
		}
		if to != Start && e.pos.After(to) {
			break
		}
		ev, err := boltevents.UnmarshalEvent(e.data)
		if err != nil {
			l.logger.WarnContext(ctx, "skipping malformed log entry", "task_id", taskID, "position", e.pos, "error", err)
			continue
		}
		entries = append(entries, Entry{Position: e.pos, Event: ev})
		if int64(len(entries)) >= limit {
			break
		}
	}
	return entries
}

// ReadBlocking waits up to timeout for entries after `after`.
func (l *MemoryLog) ReadBlocking(ctx context.Context, taskID string, after Position, timeout time.Duration) ([]Entry, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		l.mu.Lock()
		s := l.stream(taskID, true)
		entries := l.collect(ctx, taskID, s, after, Start, DefaultReadLimit)
		notify := s.notify
		l.mu.Unlock()

		if len(entries) > 0 {
			return entries, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-notify:
			// New append; re-collect.
		}
	}
}

// CreateGroup creates the consumer group anchored at the log start.
func (l *MemoryLog) CreateGroup(ctx context.Context, taskID, group string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureGroup(l.stream(taskID, true), group)
	return nil
}

func (l *MemoryLog) ensureGroup(s *memStream, group string) *memGroup {
	g, ok := s.groups[group]
	if !ok {
		g = &memGroup{pending: make(map[Position]*memPending)}
		s.groups[group] = g
	}
	return g
}

// ReadGroup delivers never-before-delivered entries to the consumer and
// marks them pending.
func (l *MemoryLog) ReadGroup(ctx context.Context, taskID, group, consumer string, timeout time.Duration, limit int64) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		l.mu.Lock()
		s := l.stream(taskID, true)
		g := l.ensureGroup(s, group)
		entries := l.collect(ctx, taskID, s, g.lastDelivered, Start, limit)
		if len(entries) > 0 {
			now := l.now()
			for _, e := range entries {
				g.pending[e.Position] = &memPending{
					consumer:      consumer,
					deliveryCount: 1,
					deliveredAt:   now,
				}
				g.lastDelivered = e.Position
			}
			l.mu.Unlock()
			return entries, nil
		}
		notify := s.notify
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-notify:
		}
	}
}

// Ack removes the position from the group's pending set.
func (l *MemoryLog) Ack(ctx context.Context, taskID, group string, pos Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(taskID, false)
	if s == nil {
		return nil
	}
	if g, ok := s.groups[group]; ok {
		delete(g.pending, pos)
	}
	return nil
}

// Pending lists unacknowledged entries in position order.
func (l *MemoryLog) Pending(ctx context.Context, taskID, group string, limit int64) ([]PendingEntry, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stream(taskID, false)
	if s == nil {
		return nil, nil
	}
	g, ok := s.groups[group]
	if !ok {
		return nil, nil
	}

	now := l.now()
	entries := make([]PendingEntry, 0, len(g.pending))
	for pos, p := range g.pending {
		entries = append(entries, PendingEntry{
			Position:      pos,
			Consumer:      p.consumer,
			DeliveryCount: p.deliveryCount,
			Idle:          now.Sub(p.deliveredAt),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[j].Position.After(entries[i].Position)
	})
	if int64(len(entries)) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Close releases the log. MemoryLog holds no external resources.
func (l *MemoryLog) Close() error {
	return nil
}
