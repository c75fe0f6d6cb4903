// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package boltevents

import (
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"
)

// Well-known task event types. Agents are free to emit additional types;
// those round-trip through the log untouched as UnknownEvent.
const (
	EventTypeSubmitted = "task.submitted"
	EventTypeWorking   = "task.working"
	EventTypeMessage   = "task.message"
	EventTypeArtifact  = "task.artifact"
	EventTypeCompleted = "task.completed"
	EventTypeFailed    = "task.failed"
	EventTypeCanceled  = "task.canceled"
	EventTypeRejected  = "task.rejected"
)

// Event is an immutable, typed record of something that happened to a task.
// Concrete variants are StatusEvent, MessageEvent, ArtifactEvent and
// UnknownEvent.
type Event interface {
	// EventType returns the wire type of the event, e.g. "task.message".
	EventType() string

	// EventTaskID returns the ID of the task the event belongs to.
	EventTaskID() string

	// Validate ensures the event is in a valid state.
	Validate() error

	// String returns a short description of the event.
	String() string
}

// StatusEvent signals a task state transition. Terminal transitions may
// carry an optional final message.
type StatusEvent struct {
	TaskID  string
	State   TaskState
	Message *Message
}

var _ Event = (*StatusEvent)(nil)

// EventType returns "task.<state>".
func (e *StatusEvent) EventType() string { return "task." + string(e.State) }

// EventTaskID returns the owning task ID.
func (e *StatusEvent) EventTaskID() string { return e.TaskID }

// Validate ensures the StatusEvent is valid.
func (e *StatusEvent) Validate() error {
	if !e.State.Valid() {
		return fmt.Errorf("status event has invalid state %q", e.State)
	}
	if e.Message != nil {
		if err := e.Message.Validate(); err != nil {
			return fmt.Errorf("status event message: %w", err)
		}
	}
	return nil
}

// String returns a short description of the StatusEvent.
func (e *StatusEvent) String() string {
	return fmt.Sprintf("StatusEvent{TaskID: %s, State: %s}", e.TaskID, e.State)
}

// MessageEvent carries an intermediate agent message to append to the task
// history. It does not change the task state.
type MessageEvent struct {
	TaskID  string
	Message Message
}

var _ Event = (*MessageEvent)(nil)

// EventType returns "task.message".
func (e *MessageEvent) EventType() string { return EventTypeMessage }

// EventTaskID returns the owning task ID.
func (e *MessageEvent) EventTaskID() string { return e.TaskID }

// Validate ensures the MessageEvent is valid.
func (e *MessageEvent) Validate() error {
	if err := e.Message.Validate(); err != nil {
		return fmt.Errorf("message event: %w", err)
	}
	return nil
}

// String returns a short description of the MessageEvent.
func (e *MessageEvent) String() string {
	return fmt.Sprintf("MessageEvent{TaskID: %s, Role: %s}", e.TaskID, e.Message.Role)
}

// ArtifactEvent carries an artifact produced by the agent. It does not
// change the task state.
type ArtifactEvent struct {
	TaskID   string
	Artifact Artifact
}

var _ Event = (*ArtifactEvent)(nil)

// EventType returns "task.artifact".
func (e *ArtifactEvent) EventType() string { return EventTypeArtifact }

// EventTaskID returns the owning task ID.
func (e *ArtifactEvent) EventTaskID() string { return e.TaskID }

// Validate ensures the ArtifactEvent is valid.
func (e *ArtifactEvent) Validate() error {
	if err := e.Artifact.Validate(); err != nil {
		return fmt.Errorf("artifact event: %w", err)
	}
	return nil
}

// String returns a short description of the ArtifactEvent.
func (e *ArtifactEvent) String() string {
	return fmt.Sprintf("ArtifactEvent{TaskID: %s, Artifact: %s}", e.TaskID, e.Artifact.Name)
}

// UnknownEvent is the forward-compatibility variant for event types this
// package does not interpret (tool calls, progress pings and whatever agents
// invent next). The full wire object is retained opaquely in Fields.
type UnknownEvent struct {
	Type   string
	TaskID string
	Fields map[string]any
}

var _ Event = (*UnknownEvent)(nil)

// EventType returns the wire type of the unknown event.
func (e *UnknownEvent) EventType() string { return e.Type }

// EventTaskID returns the owning task ID.
func (e *UnknownEvent) EventTaskID() string { return e.TaskID }

// Validate ensures the UnknownEvent is valid.
func (e *UnknownEvent) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("unknown event type cannot be empty")
	}
	return nil
}

// String returns a short description of the UnknownEvent.
func (e *UnknownEvent) String() string {
	return fmt.Sprintf("UnknownEvent{TaskID: %s, Type: %s}", e.TaskID, e.Type)
}

// NewWorkingEvent creates the event that moves a task to the working state.
func NewWorkingEvent(taskID string) *StatusEvent {
	return &StatusEvent{TaskID: taskID, State: TaskStateWorking}
}

// NewCompletedEvent creates the event that completes a task, with an
// optional final message.
func NewCompletedEvent(taskID string, message *Message) *StatusEvent {
	return &StatusEvent{TaskID: taskID, State: TaskStateCompleted, Message: message}
}

// NewFailedEvent creates the event that fails a task.
func NewFailedEvent(taskID string, message *Message) *StatusEvent {
	return &StatusEvent{TaskID: taskID, State: TaskStateFailed, Message: message}
}

// NewCanceledEvent creates the event that cancels a task.
func NewCanceledEvent(taskID string) *StatusEvent {
	return &StatusEvent{TaskID: taskID, State: TaskStateCanceled}
}

// IsFinalEvent reports whether the event puts its task into a terminal
// state. Streams conventionally stop after observing a final event.
func IsFinalEvent(ev Event) bool {
	se, ok := ev.(*StatusEvent)
	return ok && se.State.Terminal()
}

// wireEvent is the serialized form shared by all well-known event variants.
type wireEvent struct {
	Type     string    `json:"type"`
	TaskID   string    `json:"taskId,omitzero"`
	Message  *Message  `json:"message,omitzero"`
	Artifact *Artifact `json:"artifact,omitzero"`
}

// MarshalEvent serializes an event to its wire JSON object. All values
// round-trip losslessly; timestamps are RFC 3339 strings and there are no
// binary payloads.
func MarshalEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("event cannot be nil")
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	switch e := ev.(type) {
	case *StatusEvent:
		return json.Marshal(wireEvent{Type: e.EventType(), TaskID: e.TaskID, Message: e.Message})
	case *MessageEvent:
		msg := e.Message
		return json.Marshal(wireEvent{Type: EventTypeMessage, TaskID: e.TaskID, Message: &msg})
	case *ArtifactEvent:
		artifact := e.Artifact
		return json.Marshal(wireEvent{Type: EventTypeArtifact, TaskID: e.TaskID, Artifact: &artifact})
	case *UnknownEvent:
		fields := make(map[string]any, len(e.Fields)+2)
		for k, v := range e.Fields {
			fields[k] = v
		}
		fields["type"] = e.Type
		if e.TaskID != "" {
			fields["taskId"] = e.TaskID
		}
		return json.Marshal(fields)
	default:
		return nil, fmt.Errorf("unsupported event variant %T", ev)
	}
}

// UnmarshalEvent parses a wire JSON object into its typed event variant.
// Objects whose type is not interpreted by this package come back as an
// UnknownEvent carrying every field.
func UnmarshalEvent(data []byte) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}
	if wire.Type == "" {
		return nil, fmt.Errorf("malformed event: missing type")
	}

	switch wire.Type {
	case EventTypeMessage:
		if wire.Message == nil {
			return nil, fmt.Errorf("malformed %s event: missing message", wire.Type)
		}
		return &MessageEvent{TaskID: wire.TaskID, Message: *wire.Message}, nil

	case EventTypeArtifact:
		if wire.Artifact == nil {
			return nil, fmt.Errorf("malformed %s event: missing artifact", wire.Type)
		}
		return &ArtifactEvent{TaskID: wire.TaskID, Artifact: *wire.Artifact}, nil
	}

	if state, ok := strings.CutPrefix(wire.Type, "task."); ok && TaskState(state).Valid() {
		return &StatusEvent{TaskID: wire.TaskID, State: TaskState(state), Message: wire.Message}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}
	taskID, _ := fields["taskId"].(string)
	delete(fields, "type")
	delete(fields, "taskId")
	return &UnknownEvent{Type: wire.Type, TaskID: taskID, Fields: fields}, nil
}
