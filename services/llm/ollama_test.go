// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOllama(serverURL string) *Ollama {
	return &Ollama{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    serverURL,
		chatModel:  "llama3.1",
		embedModel: "nomic-embed-text",
	}
}

func TestOllama_Chat(t *testing.T) {
	var gotReq ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:         Message{Role: RoleAssistant, Content: "shalom"},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 12,
			EvalCount:       8,
		})
	}))
	defer server.Close()

	gw := newTestOllama(server.URL)
	temp := float32(0.7)
	maxTokens := 500
	result, err := gw.Chat(context.Background(),
		[]Message{{Role: RoleUser, Content: "hello"}},
		GenerationParams{Temperature: &temp, MaxTokens: &maxTokens})

	require.NoError(t, err)
	assert.Equal(t, "shalom", result.Text)
	assert.Equal(t, 20, result.TokensUsed)
	assert.Equal(t, "stop", result.StopReason)

	assert.Equal(t, "llama3.1", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.InDelta(t, 0.7, gotReq.Options["temperature"], 1e-6)
	assert.EqualValues(t, 500, gotReq.Options["num_predict"])
}

func TestOllama_Chat_ModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": `model "llama3.1" not found`})
	}))
	defer server.Close()

	gw := newTestOllama(server.URL)
	_, err := gw.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, GenerationParams{})

	require.Error(t, err)
	assert.False(t, IsRetryable(err), "a missing model is not transient")
	assert.Contains(t, err.Error(), "ollama pull")
}

func TestOllama_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"first", "second"}, req.Input)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer server.Close()

	gw := newTestOllama(server.URL)
	vectors, err := gw.EmbedBatch(context.Background(), []string{"first", "second"})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
}

func TestOllama_EmbedBatch_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1}}})
	}))
	defer server.Close()

	gw := newTestOllama(server.URL)
	_, err := gw.EmbedBatch(context.Background(), []string{"first", "second"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 embeddings")
}
