// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	boltevents "github.com/daniprol/bolt-events"
)

// StreamEvent is one Server-Sent Events frame from a task stream. Event is
// the decoded log event for event frames; snapshot ("task") and "error"
// frames carry only the raw Data.
type StreamEvent struct {
	// ID is the resumption token of the underlying log entry.
	ID string

	// Type is the SSE event name, e.g. "task.working" or "task".
	Type string

	// Data is the raw frame payload.
	Data []byte

	// Event is the decoded event, nil for non-log frames.
	Event boltevents.Event
}

// TaskStream is a live task event stream with automatic reconnection.
type TaskStream struct {
	events chan StreamEvent
}

// Events returns the channel frames are delivered on. It is closed after
// the terminal event, on context cancellation, or when reconnection is
// exhausted.
func (s *TaskStream) Events() <-chan StreamEvent { return s.events }

// StreamTask attaches to a task's SSE stream. lastEventID resumes
// delivery strictly after a previously seen frame; empty replays the
// retained log from the start. The stream reconnects on transport
// failures, resuming from the last delivered frame, and ends after a
// terminal event.
func (c *Client) StreamTask(ctx context.Context, streamURL, lastEventID string) *TaskStream {
	ts := &TaskStream{events: make(chan StreamEvent)}
	go c.runStream(ctx, streamURL, lastEventID, ts)
	return ts
}

func (c *Client) runStream(ctx context.Context, streamURL, lastEventID string, ts *TaskStream) {
	defer close(ts.events)

	url := streamURL
	if !strings.HasPrefix(url, "http") {
		url = c.baseURL + streamURL
	}

	for {
		if ctx.Err() != nil {
			return
		}

		done, err := c.streamOnce(ctx, url, &lastEventID, ts)
		if done {
			return
		}
		if err != nil {
			c.logger.WarnContext(ctx, "stream disconnected, reconnecting", "url", streamURL, "last_event_id", lastEventID, "error", err)
		}

		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
	}
}

// streamOnce runs a single SSE connection. It returns done == true when
// the stream finished cleanly (terminal event or server closed after an
// error frame).
func (c *Client) streamOnce(ctx context.Context, url string, lastEventID *string, ts *TaskStream) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return true, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if *lastEventID != "" {
		req.Header.Set("Last-Event-ID", *lastEventID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var frame StreamEvent
	var data []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(data) == 0 && frame.Type == "" {
				continue
			}
			frame.Data = []byte(strings.Join(data, "\n"))
			if frame.Type != "task" && frame.Type != "error" {
				if ev, err := boltevents.UnmarshalEvent(frame.Data); err == nil {
					frame.Event = ev
				}
			}
			if frame.ID != "" {
				*lastEventID = frame.ID
			}

			select {
			case ts.events <- frame:
			case <-ctx.Done():
				return true, nil
			}

			final := frame.Event != nil && boltevents.IsFinalEvent(frame.Event)
			frame = StreamEvent{}
			data = nil
			if final {
				return true, nil
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "id: "):
			frame.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			frame.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		case strings.HasPrefix(line, ":"):
			// Comment line, keep-alive.
		}
	}

	if err := scanner.Err(); err != nil {
		return false, err
	}
	// Server closed the connection without a terminal event.
	return false, nil
}
