// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	boltevents "github.com/daniprol/bolt-events"
)

// RetryConfig controls transport-level retries of JSON-RPC calls.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64

	// RetryableErrors decides whether an error is worth another attempt.
	// Nil retries everything.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns the default retry policy: three attempts with
// exponential backoff from 500ms up to 5s.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RetryableErrors: IsRetryableError,
	}
}

// IsRetryableError reports whether the error is transient. Protocol errors
// carry a definitive answer and are never retried, except the internal
// error code.
func IsRetryableError(err error) bool {
	var rpcErr *boltevents.JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == boltevents.InternalErrorCode
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == 429
	}

	return false
}

// withRetry executes fn with the configured retry policy, adding 10%
// jitter to each delay.
func withRetry(ctx context.Context, config *RetryConfig, operation string, fn func(context.Context) error) error {
	if config == nil || config.MaxAttempts <= 0 {
		return fn(ctx)
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operation, config.MaxAttempts, lastErr)
}
