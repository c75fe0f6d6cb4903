// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent defines the pluggable producer of task events. An Executor
// emits domain events for one task onto a channel; the task manager drains
// the channel, publishing each event to the log and projecting it onto the
// stored task. The channel decouples production rate from log-append rate
// and gives the manager backpressure when the log store is slow.
package agent

import (
	"context"

	boltevents "github.com/daniprol/bolt-events"
)

// Executor runs an agent against a task's input message and emits events on
// the provided channel. Execute must close the channel when done and return
// any failure that prevented completion; emitting a task.failed event for
// domain-level failures is the executor's own choice.
type Executor interface {
	Execute(ctx context.Context, task *boltevents.Task, message boltevents.Message, events chan<- boltevents.Event) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *boltevents.Task, message boltevents.Message, events chan<- boltevents.Event) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, task *boltevents.Task, message boltevents.Message, events chan<- boltevents.Event) error {
	return f(ctx, task, message, events)
}
