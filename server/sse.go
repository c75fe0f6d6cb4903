// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"net/http"

	"github.com/go-json-experiment/json"

	boltevents "github.com/daniprol/bolt-events"
	"github.com/daniprol/bolt-events/internal/sse"
	"github.com/daniprol/bolt-events/stream"
)

// handleStream serves a task's event stream over Server-Sent Events.
//
// A reconnecting client sends the position of its last received entry in
// Last-Event-ID and the stream resumes strictly after it. The stream ends
// once a terminal event has been delivered; everything before that is
// replayed from the retained log, so a viewer that reconnects late still
// sees the whole tail.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskID")
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	t, err := s.manager.Resubscribe(ctx, taskID)
	if err != nil {
		s.writeStreamError(w, flusher, err)
		return
	}

	last := stream.Position(r.Header.Get("Last-Event-ID"))
	if last == stream.Start {
		last = stream.Position(r.URL.Query().Get("lastEventId"))
	}

	// Fresh viewers get the current task snapshot before the event tail so
	// they can render immediately.
	if last == stream.Start && !t.Status.State.Terminal() {
		if err := s.writeSnapshot(w, t); err != nil {
			return
		}
		flusher.Flush()
	}

	sub := s.manager.Subscriber().Subscribe(ctx, taskID, last)
	defer sub.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := boltevents.MarshalEvent(entry.Event)
			if err != nil {
				s.logger.WarnContext(ctx, "skipping unencodable event", "task_id", taskID, "position", entry.Position, "error", err)
				continue
			}
			frame := sse.Frame{
				ID:    string(entry.Position),
				Event: entry.Event.EventType(),
				Data:  data,
			}
			if err := sse.Write(w, frame); err != nil {
				return
			}
			flusher.Flush()

			if boltevents.IsFinalEvent(entry.Event) {
				return
			}
		}
	}
}

// writeSnapshot emits the initial task state as a dedicated event.
func (s *Server) writeSnapshot(w http.ResponseWriter, t *boltevents.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return sse.Write(w, sse.Frame{Event: "task", Data: data})
}

// writeStreamError emits a single error frame and ends the stream. The
// code matches the JSON-RPC mapping of the same failure.
func (s *Server) writeStreamError(w http.ResponseWriter, flusher http.Flusher, err error) {
	rpcErr := boltevents.NewInternalError()
	var notFound boltevents.TaskNotFoundError
	if errors.As(err, &notFound) {
		rpcErr = boltevents.NewTaskNotFoundError(notFound.TaskID)
	}

	data, mErr := json.Marshal(rpcErr)
	if mErr != nil {
		return
	}
	if wErr := sse.Write(w, sse.Frame{Event: "error", Data: data}); wErr != nil {
		return
	}
	flusher.Flush()
}
