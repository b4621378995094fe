// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm defines the gateway interface to the hosted language model
// and embedding deployments, plus the transient-error classification the
// retry layer depends on.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// MaxEmbedBatchSize is the largest number of texts a single EmbedBatch
// call may carry. Larger inputs must be split by the caller.
const MaxEmbedBatchSize = 100

// GenerationParams holds the optional sampling parameters for a chat
// completion. Nil fields use the deployment defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Message is one turn passed to the chat deployment.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatResult is the outcome of a chat completion: the generated text,
// the total token usage reported upstream, and the finish reason.
type ChatResult struct {
	Text       string
	TokensUsed int
	StopReason string
}

// Gateway is the interface the conversation pipeline depends on. Both
// the collection and QA stages call Chat; only the QA stage embeds.
type Gateway interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (*ChatResult, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// =============================================================================
// Errors
// =============================================================================

// UpstreamError describes a failed call to the model provider.
//
// Retryable is true for transient conditions (rate limiting, provider
// 5xx, transport failures) and false for permanent ones (auth, bad
// request, content policy). The retry loop only re-attempts retryable
// errors.
type UpstreamError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d, retryable: %v): %s",
		e.StatusCode, e.Retryable, e.Message)
}

// IsRetryable reports whether err is an UpstreamError marked transient.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable
	}
	return false
}

// NewUpstreamError builds an UpstreamError, classifying retryability
// from the HTTP status. Status 0 means the request never produced a
// response (network failure) and is treated as transient.
func NewUpstreamError(statusCode int, message string) *UpstreamError {
	retryable := statusCode == 0 || statusCode == 429 || statusCode >= 500
	return &UpstreamError{
		StatusCode: statusCode,
		Message:    message,
		Retryable:  retryable,
	}
}
