// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUpstreamError_Classification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		retryable  bool
	}{
		{"rate limited", 429, true},
		{"server error", 500, true},
		{"bad gateway", 502, true},
		{"service unavailable", 503, true},
		{"network failure", 0, true},
		{"unauthorized", 401, false},
		{"bad request", 400, false},
		{"not found", 404, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewUpstreamError(tt.statusCode, "boom")
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestIsRetryable_NonUpstreamError(t *testing.T) {
	assert.False(t, IsRetryable(fmt.Errorf("some other error")))
	assert.False(t, IsRetryable(nil))
}

func TestIsRetryable_Wrapped(t *testing.T) {
	inner := NewUpstreamError(429, "rate limited")
	wrapped := fmt.Errorf("calling model: %w", inner)
	assert.True(t, IsRetryable(wrapped))
}

func TestClassify_APIError(t *testing.T) {
	err := classify(&openai.APIError{HTTPStatusCode: 429, Message: "too many requests"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	err = classify(&openai.APIError{HTTPStatusCode: 401, Message: "invalid key"})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestClassify_TransportError(t *testing.T) {
	err := classify(fmt.Errorf("dial tcp: connection refused"))
	require.Error(t, err)
	assert.True(t, IsRetryable(err), "errors with no HTTP status are treated as transient")
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, classify(nil))
}

func TestWithRetry_PermanentErrorAbortsImmediately(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), "test_op", func(ctx context.Context) error {
		calls++
		return NewUpstreamError(400, "bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestWithRetry_SuccessFirstAttempt(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), "test_op", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_TransientErrorRetriedToSuccess(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), "test_op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return NewUpstreamError(503, "unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a transient failure must be retried, then succeed")
}

func TestWithRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- withRetry(ctx, "test_op", func(ctx context.Context) error {
			return NewUpstreamError(503, "unavailable")
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not honor context cancellation")
	}
}

func TestEmbedBatch_SizeLimit(t *testing.T) {
	gw := &AzureOpenAI{}

	texts := make([]string, MaxEmbedBatchSize+1)
	for i := range texts {
		texts[i] = "text"
	}
	_, err := gw.EmbedBatch(context.Background(), texts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")

	_, err = gw.EmbedBatch(context.Background(), nil)
	require.Error(t, err)
}
