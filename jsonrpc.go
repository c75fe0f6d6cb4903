// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package boltevents

import (
	"github.com/go-json-experiment/json/jsontext"
)

// JSON-RPC methods exposed by the A2A serving surface.
const (
	// MethodTasksSend submits a task and runs it to completion.
	MethodTasksSend = "tasks/send"
	// MethodMessageSend is the protocol alias of tasks/send.
	MethodMessageSend = "message/send"
	// MethodTasksSendSubscribe submits a task and returns a stream URL.
	MethodTasksSendSubscribe = "tasks/sendSubscribe"
	// MethodMessageStream is the protocol alias of tasks/sendSubscribe.
	MethodMessageStream = "message/stream"
	// MethodTasksResubscribe returns the stream URL for an existing task.
	MethodTasksResubscribe = "tasks/resubscribe"
	// MethodTasksGet retrieves a task.
	MethodTasksGet = "tasks/get"
	// MethodTasksCancel cancels a non-terminal task.
	MethodTasksCancel = "tasks/cancel"
)

// Standard JSON-RPC 2.0 error codes.
const (
	// JSONParseErrorCode indicates invalid JSON payload.
	JSONParseErrorCode = -32700
	// InvalidRequestErrorCode indicates request payload validation error.
	InvalidRequestErrorCode = -32600
	// MethodNotFoundErrorCode indicates the method does not exist.
	MethodNotFoundErrorCode = -32601
	// InvalidParamsErrorCode indicates invalid method parameters.
	InvalidParamsErrorCode = -32602
	// InternalErrorCode indicates an internal server error.
	InternalErrorCode = -32603
)

// A2A specific error codes.
const (
	// TaskNotFoundErrorCode indicates the specified task ID was not found.
	TaskNotFoundErrorCode = -32001
	// TaskNotCancelableErrorCode indicates the task is in a terminal state
	// and cannot be canceled.
	TaskNotCancelableErrorCode = -32002
)

// JSONRPCRequest is a JSON-RPC 2.0 request envelope. Params are kept raw
// until the method handler decodes them into their typed form.
type JSONRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  jsontext.Value `json:"params,omitzero"`
	ID      any            `json:"id,omitzero"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response envelope.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitzero"`
	Error   *JSONRPCError `json:"error,omitzero"`
	ID      any           `json:"id,omitzero"`
}

// JSONRPCError is a JSON-RPC 2.0 error object with a stable code and a
// human-readable message.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitzero"`
}

// Error implements error.
func (e *JSONRPCError) Error() string { return e.Message }

// NewJSONParseError creates the error for an unparseable payload.
func NewJSONParseError() *JSONRPCError {
	return &JSONRPCError{Code: JSONParseErrorCode, Message: "Invalid JSON payload"}
}

// NewInvalidRequestError creates the error for an invalid request envelope.
func NewInvalidRequestError() *JSONRPCError {
	return &JSONRPCError{Code: InvalidRequestErrorCode, Message: "Request payload validation error"}
}

// NewMethodNotFoundError creates the error for an unknown method.
func NewMethodNotFoundError(method string) *JSONRPCError {
	return &JSONRPCError{Code: MethodNotFoundErrorCode, Message: "Method not found: " + method}
}

// NewInvalidParamsError creates the error for invalid method parameters.
func NewInvalidParamsError(detail string) *JSONRPCError {
	err := &JSONRPCError{Code: InvalidParamsErrorCode, Message: "Invalid parameters"}
	if detail != "" {
		err.Message = detail
	}
	return err
}

// NewInternalError creates the error for an internal failure.
func NewInternalError() *JSONRPCError {
	return &JSONRPCError{Code: InternalErrorCode, Message: "Internal error"}
}

// NewTaskNotFoundError creates the protocol error for an unknown task.
func NewTaskNotFoundError(taskID string) *JSONRPCError {
	return &JSONRPCError{Code: TaskNotFoundErrorCode, Message: "Task not found: " + taskID}
}

// NewTaskNotCancelableError creates the protocol error for canceling a
// terminal task.
func NewTaskNotCancelableError(detail string) *JSONRPCError {
	err := &JSONRPCError{Code: TaskNotCancelableErrorCode, Message: "Task cannot be canceled"}
	if detail != "" {
		err.Message = detail
	}
	return err
}

// TaskSendParams are the parameters of tasks/send and message/send.
type TaskSendParams struct {
	ID        string         `json:"id,omitzero"`
	ContextID string         `json:"contextId,omitzero"`
	Message   Message        `json:"message"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// TaskIDParams are the parameters of methods addressed by task ID only.
type TaskIDParams struct {
	ID string `json:"id"`
}

// TaskGetParams are the parameters of tasks/get. A non-nil HistoryLength
// truncates the returned history to the most recent N messages.
type TaskGetParams struct {
	ID            string `json:"id"`
	HistoryLength *int   `json:"historyLength,omitzero"`
}

// TaskSubscribeResult is the result of tasks/sendSubscribe and
// tasks/resubscribe: the task plus the SSE URL to attach to.
type TaskSubscribeResult struct {
	Task      *Task  `json:"task"`
	StreamURL string `json:"streamUrl"`
}
