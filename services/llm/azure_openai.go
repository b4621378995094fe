// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxConcurrentCalls = 10
	maxRetryAttempts          = 3
	initialRetryBackoff       = 2 * time.Second
	maxRetryBackoff           = 10 * time.Second
)

// AzureOpenAI is the Gateway implementation backed by Azure OpenAI
// deployments. A weighted semaphore bounds the number of in-flight
// upstream calls across all request goroutines; callers past the limit
// queue rather than fail.
type AzureOpenAI struct {
	client          *openai.Client
	chatDeployment  string
	embedDeployment string
	gate            *semaphore.Weighted
}

// NewAzureOpenAI builds the gateway from environment configuration.
//
// # Description
//
// Reads AZURE_OPENAI_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT
// and AZURE_OPENAI_EMBEDDING_DEPLOYMENT. Key and endpoint are required;
// deployment names fall back to logged defaults. MAX_CONCURRENT_LLM_CALLS
// sizes the concurrency gate (default 10).
//
// # Outputs
//
//   - *AzureOpenAI: The configured gateway.
//   - error: Non-nil if required configuration is missing.
func NewAzureOpenAI() (*AzureOpenAI, error) {
	apiKey := os.Getenv("AZURE_OPENAI_KEY")
	endpoint := os.Getenv("AZURE_OPENAI_ENDPOINT")
	if apiKey == "" || endpoint == "" {
		slog.Error("Azure OpenAI configuration incomplete",
			"have_key", apiKey != "", "have_endpoint", endpoint != "")
		return nil, fmt.Errorf("AZURE_OPENAI_KEY and AZURE_OPENAI_ENDPOINT must be set")
	}

	chatDeployment := os.Getenv("AZURE_OPENAI_DEPLOYMENT")
	if chatDeployment == "" {
		chatDeployment = "gpt-4o-mini"
		slog.Warn("AZURE_OPENAI_DEPLOYMENT not set, defaulting", "deployment", chatDeployment)
	}
	embedDeployment := os.Getenv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT")
	if embedDeployment == "" {
		embedDeployment = "text-embedding-ada-002"
		slog.Warn("AZURE_OPENAI_EMBEDDING_DEPLOYMENT not set, defaulting", "deployment", embedDeployment)
	}

	maxConcurrent := defaultMaxConcurrentCalls
	if v := os.Getenv("MAX_CONCURRENT_LLM_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxConcurrent = n
		} else {
			slog.Warn("Invalid MAX_CONCURRENT_LLM_CALLS, using default",
				"value", v, "default", defaultMaxConcurrentCalls)
		}
	}

	config := openai.DefaultAzureConfig(apiKey, endpoint)
	config.AzureModelMapperFunc = func(model string) string {
		// Deployment names are passed through verbatim.
		return model
	}

	slog.Info("Initializing Azure OpenAI gateway",
		"chat_deployment", chatDeployment,
		"embed_deployment", embedDeployment,
		"max_concurrent_calls", maxConcurrent)

	return &AzureOpenAI{
		client:          openai.NewClientWithConfig(config),
		chatDeployment:  chatDeployment,
		embedDeployment: embedDeployment,
		gate:            semaphore.NewWeighted(int64(maxConcurrent)),
	}, nil
}

// Chat runs a chat completion against the configured deployment,
// retrying transient failures with exponential backoff.
func (a *AzureOpenAI) Chat(ctx context.Context, messages []Message, params GenerationParams) (*ChatResult, error) {
	if err := a.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for llm slot: %w", err)
	}
	defer a.gate.Release(1)

	req := openai.ChatCompletionRequest{
		Model:    a.chatDeployment,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	var resp openai.ChatCompletionResponse
	err := withRetry(ctx, "chat_completion", func(ctx context.Context) error {
		var callErr error
		resp, callErr = a.client.CreateChatCompletion(ctx, req)
		return classify(callErr)
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, NewUpstreamError(502, "model returned no choices")
	}
	choice := resp.Choices[0]
	return &ChatResult{
		Text:       choice.Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		StopReason: string(choice.FinishReason),
	}, nil
}

// Embed returns the embedding vector for a single text.
func (a *AzureOpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding vector per input text, in input
// order. The batch may not exceed MaxEmbedBatchSize.
func (a *AzureOpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty embedding batch")
	}
	if len(texts) > MaxEmbedBatchSize {
		return nil, fmt.Errorf("embedding batch of %d exceeds limit of %d", len(texts), MaxEmbedBatchSize)
	}

	if err := a.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for llm slot: %w", err)
	}
	defer a.gate.Release(1)

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(a.embedDeployment),
	}

	var resp openai.EmbeddingResponse
	err := withRetry(ctx, "embedding", func(ctx context.Context) error {
		var callErr error
		resp, callErr = a.client.CreateEmbeddings(ctx, req)
		return classify(callErr)
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, NewUpstreamError(502,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, NewUpstreamError(502, fmt.Sprintf("embedding index %d out of range", d.Index))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// withRetry runs op up to maxRetryAttempts times, backing off
// exponentially between attempts. Permanent errors abort immediately.
// Shared by every Gateway implementation in this package.
func withRetry(ctx context.Context, operation string, op func(context.Context) error) error {
	backoff := initialRetryBackoff
	var lastErr error

	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			slog.Error("Upstream call failed permanently",
				"operation", operation, "attempt", attempt, "error", lastErr)
			return lastErr
		}
		if attempt == maxRetryAttempts {
			break
		}

		slog.Warn("Upstream call failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled during backoff: %w", operation, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}

	slog.Error("Upstream call exhausted retries",
		"operation", operation, "attempts", maxRetryAttempts, "error", lastErr)
	return lastErr
}

// classify wraps provider errors as UpstreamError so the retry loop can
// distinguish transient from permanent failures.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewUpstreamError(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewUpstreamError(reqErr.HTTPStatusCode, reqErr.Error())
	}
	// Transport-level failure with no HTTP status.
	return NewUpstreamError(0, err.Error())
}
