// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the JSON-RPC and SSE client for a bolt-events server.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	boltevents "github.com/daniprol/bolt-events"
)

// HTTPError is a non-2xx HTTP response surfaced before the JSON-RPC layer.
type HTTPError struct {
	StatusCode int
	Status     string
}

// Error implements error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http request failed: %s", e.Status)
}

// Client calls a bolt-events server over JSON-RPC with transport retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *RetryConfig
	logger     *slog.Logger

	nextID int64
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      DefaultRetryConfig(),
		logger:     slog.Default(),
	}
}

// WithHTTPClient sets the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithRetryConfig sets the retry policy. Nil disables retries.
func (c *Client) WithRetryConfig(config *RetryConfig) *Client {
	c.retry = config
	return c
}

// WithLogger sets the logger for the Client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// SendTask submits a task and blocks until the agent finishes it.
func (c *Client) SendTask(ctx context.Context, params boltevents.TaskSendParams) (*boltevents.Task, error) {
	var task boltevents.Task
	if err := c.call(ctx, boltevents.MethodTasksSend, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SendTaskSubscribe submits a task for background execution and returns
// the submitted snapshot plus the SSE URL to stream progress from.
func (c *Client) SendTaskSubscribe(ctx context.Context, params boltevents.TaskSendParams) (*boltevents.TaskSubscribeResult, error) {
	var result boltevents.TaskSubscribeResult
	if err := c.call(ctx, boltevents.MethodTasksSendSubscribe, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Resubscribe returns the task snapshot and stream URL for an existing
// task after a disconnect.
func (c *Client) Resubscribe(ctx context.Context, taskID string) (*boltevents.TaskSubscribeResult, error) {
	var result boltevents.TaskSubscribeResult
	params := boltevents.TaskIDParams{ID: taskID}
	if err := c.call(ctx, boltevents.MethodTasksResubscribe, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTask retrieves a task, optionally truncating history to the most
// recent historyLength messages.
func (c *Client) GetTask(ctx context.Context, taskID string, historyLength *int) (*boltevents.Task, error) {
	var task boltevents.Task
	params := boltevents.TaskGetParams{ID: taskID, HistoryLength: historyLength}
	if err := c.call(ctx, boltevents.MethodTasksGet, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask cancels a non-terminal task.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*boltevents.Task, error) {
	var task boltevents.Task
	params := boltevents.TaskIDParams{ID: taskID}
	if err := c.call(ctx, boltevents.MethodTasksCancel, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// call performs one JSON-RPC method call with retries and decodes the
// result into result.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	paramsData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	c.nextID++
	req := boltevents.JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  jsontext.Value(paramsData),
		ID:      c.nextID,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var envelope struct {
		Error  *boltevents.JSONRPCError `json:"error,omitzero"`
		Result jsontext.Value           `json:"result,omitzero"`
	}
	err = withRetry(ctx, c.retry, method, func(ctx context.Context) error {
		body, err := c.post(ctx, payload)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if envelope.Error != nil {
			return decodeRPCError(envelope.Error)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return io.ReadAll(resp.Body)
}

// decodeRPCError maps protocol error codes back to their domain errors so
// callers can match with errors.As.
func decodeRPCError(rpcErr *boltevents.JSONRPCError) error {
	switch rpcErr.Code {
	case boltevents.TaskNotFoundErrorCode:
		id := strings.TrimPrefix(rpcErr.Message, "Task not found: ")
		return boltevents.TaskNotFoundError{TaskID: id}
	case boltevents.TaskNotCancelableErrorCode:
		return boltevents.TaskNotCancelableError{}
	default:
		return rpcErr
	}
}
