// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refualabs/medassist/services/medchat/datatypes"
	"github.com/refualabs/medassist/services/medchat/knowledge"
	"github.com/refualabs/medassist/services/medchat/services"
)

type stubHandler struct {
	resp *datatypes.ChatResponse
	err  error
}

func (s *stubHandler) HandleTurn(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.resp != nil {
		return s.resp, nil
	}
	return datatypes.NewChatResponse(req.RequestID, datatypes.PhaseCollection, "hello!", req.UserData), nil
}

func newTestRouter(collector, qaEngine services.TurnHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := services.NewChatService(collector, qaEngine, nil, 0)
	router := gin.New()
	router.POST("/v1/chat", HandleChat(svc))
	return router
}

func postChat(t *testing.T, router *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleChat_Success(t *testing.T) {
	router := newTestRouter(&stubHandler{}, &stubHandler{})

	rec := postChat(t, router, map[string]any{"message": "hi", "language": "en"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hello!", resp.Response)
	assert.Equal(t, datatypes.PhaseCollection, resp.Phase)
	assert.NotEmpty(t, resp.ResponseID)
}

func TestHandleChat_MalformedJSONIs400(t *testing.T) {
	router := newTestRouter(&stubHandler{}, &stubHandler{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_EmptyMessageIs400(t *testing.T) {
	router := newTestRouter(&stubHandler{}, &stubHandler{})

	rec := postChat(t, router, map[string]any{"message": ""})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_UpstreamFailureIsOpaque500(t *testing.T) {
	router := newTestRouter(&stubHandler{err: errors.New("azure key rejected: sk-secret-123")}, &stubHandler{})

	rec := postChat(t, router, map[string]any{"message": "hi"})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sk-secret-123",
		"upstream error detail must not leak to the client")
	assert.Contains(t, rec.Body.String(), "internal error")
}

func TestHandleHealth_AllComponentsUp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", HandleHealth(knowledge.NewMemoryIndex(), true))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp datatypes.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Components["llm_gateway"])
	assert.Equal(t, "ok", resp.Components["knowledge_base"])
	assert.False(t, resp.Timestamp.IsZero())
	assert.WithinDuration(t, time.Now().UTC(), resp.Timestamp, time.Minute)
}

func TestHandleHealth_DegradedWithoutKnowledgeBase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", HandleHealth(nil, true))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp datatypes.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unavailable", resp.Components["knowledge_base"])
}

func TestHandleKnowledgeStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	idx := knowledge.NewMemoryIndex()
	idx.Add("chunk", datatypes.ChunkMetadata{Type: "context", Category: "dental", HMO: "all", Tier: "all"}, []float32{1})
	router := gin.New()
	router.GET("/v1/knowledge/stats", HandleKnowledgeStats(idx))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/knowledge/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats knowledge.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalChunks)
	assert.True(t, stats.Available)
}

func TestHandleKnowledgeStats_NotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/v1/knowledge/stats", HandleKnowledgeStats(nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/knowledge/stats", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
