// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Ollama is the Gateway implementation backed by a local or self-hosted
// Ollama server. It exists for development and air-gapped deployments
// where Azure OpenAI is unreachable; the service semantics are identical.
type Ollama struct {
	httpClient *http.Client
	baseURL    string
	chatModel  string
	embedModel string
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllama builds the gateway from environment configuration.
//
// OLLAMA_BASE_URL is required. OLLAMA_MODEL and OLLAMA_EMBEDDING_MODEL
// fall back to logged defaults.
func NewOllama() (*Ollama, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	chatModel := os.Getenv("OLLAMA_MODEL")
	if chatModel == "" {
		chatModel = "llama3.1"
		slog.Warn("OLLAMA_MODEL not set, defaulting", "model", chatModel)
	}
	embedModel := os.Getenv("OLLAMA_EMBEDDING_MODEL")
	if embedModel == "" {
		embedModel = "nomic-embed-text"
		slog.Warn("OLLAMA_EMBEDDING_MODEL not set, defaulting", "model", embedModel)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	slog.Info("Initializing Ollama gateway",
		"base_url", baseURL, "chat_model", chatModel, "embed_model", embedModel)

	return &Ollama{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		chatModel:  chatModel,
		embedModel: embedModel,
	}, nil
}

// Chat runs a chat completion against the configured model, retrying
// transient failures with exponential backoff.
func (o *Ollama) Chat(ctx context.Context, messages []Message, params GenerationParams) (*ChatResult, error) {
	options := make(map[string]any)
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}

	payload := ollamaChatRequest{
		Model:    o.chatModel,
		Messages: messages,
		Stream:   false,
		Options:  options,
	}

	var parsed ollamaChatResponse
	err := withRetry(ctx, "ollama_chat", func(ctx context.Context) error {
		return o.post(ctx, "/api/chat", payload, &parsed)
	})
	if err != nil {
		return nil, err
	}

	if parsed.Message.Role != RoleAssistant {
		slog.Warn("Ollama chat response role was not assistant", "role", parsed.Message.Role)
	}
	return &ChatResult{
		Text:       parsed.Message.Content,
		TokensUsed: parsed.PromptEvalCount + parsed.EvalCount,
		StopReason: parsed.DoneReason,
	}, nil
}

// Embed returns the embedding vector for a single text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding vector per input text, in input
// order. The batch may not exceed MaxEmbedBatchSize.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty embedding batch")
	}
	if len(texts) > MaxEmbedBatchSize {
		return nil, fmt.Errorf("embedding batch of %d exceeds limit of %d", len(texts), MaxEmbedBatchSize)
	}

	payload := ollamaEmbedRequest{Model: o.embedModel, Input: texts}

	var parsed ollamaEmbedResponse
	err := withRetry(ctx, "ollama_embedding", func(ctx context.Context) error {
		return o.post(ctx, "/api/embed", payload, &parsed)
	})
	if err != nil {
		return nil, err
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, NewUpstreamError(502,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Embeddings)))
	}
	return parsed.Embeddings, nil
}

// post sends a JSON request to the Ollama server and decodes the JSON
// response into out. HTTP failures are wrapped as UpstreamError so the
// retry loop can classify them.
func (o *Ollama) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return NewUpstreamError(0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewUpstreamError(0, fmt.Sprintf("read ollama response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			var errResp struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(respBody, &errResp) == nil &&
				strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found") {
				return NewUpstreamError(404,
					fmt.Sprintf("model not found, run: ollama pull %s", o.chatModel))
			}
		}
		return NewUpstreamError(resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return NewUpstreamError(502, fmt.Sprintf("parse ollama response: %v", err))
	}
	return nil
}
