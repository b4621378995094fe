// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services provides the business logic layer of the chat
// service, separating it from HTTP handlers. Services receive their
// dependencies via constructors and accept context on every method for
// cancellation and distributed tracing.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/refualabs/medassist/services/llm"
	"github.com/refualabs/medassist/services/medchat/collection"
	"github.com/refualabs/medassist/services/medchat/datatypes"
	"github.com/refualabs/medassist/services/medchat/knowledge"
	"github.com/refualabs/medassist/services/medchat/observability"
	"github.com/refualabs/medassist/services/medchat/qa"
)

var chatTracer = otel.Tracer("refualabs.medchat.services.chat")

// ErrInvalidRequest marks request validation failures so the HTTP layer
// can map them to a 400 instead of a 500.
var ErrInvalidRequest = errors.New("invalid chat request")

// TurnHandler processes one conversation turn for a single phase.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.ChatResponse, error)
}

// ChatService routes each turn to the collection or QA phase based on
// the profile state carried in the request.
//
// # Description
//
// The service is stateless: all conversation state (profile, history)
// arrives in the request and the updated state is returned in the
// response. The client is responsible for echoing it back on the next
// turn. A turn runs in the QA phase only when the profile is both
// complete and explicitly confirmed; otherwise it stays in collection.
//
// # Thread Safety
//
// ChatService is safe for concurrent use.
type ChatService struct {
	collector  TurnHandler
	qaEngine   TurnHandler
	metrics    *observability.ChatMetrics
	maxHistory int
}

// NewChatService creates the service from its phase handlers. A
// non-positive maxHistory falls back to the default window.
func NewChatService(collector, qaEngine TurnHandler, metrics *observability.ChatMetrics, maxHistory int) *ChatService {
	if maxHistory <= 0 {
		maxHistory = datatypes.DefaultMaxHistory
	}
	return &ChatService{
		collector:  collector,
		qaEngine:   qaEngine,
		metrics:    metrics,
		maxHistory: maxHistory,
	}
}

// NewDefaultChatService wires the standard phase handlers from a
// gateway and a knowledge searcher.
func NewDefaultChatService(gateway llm.Gateway, searcher knowledge.Searcher, metrics *observability.ChatMetrics, topK, maxHistory int) *ChatService {
	return NewChatService(
		collection.NewCollector(gateway),
		qa.NewEngine(gateway, searcher, topK),
		metrics,
		maxHistory,
	)
}

// Process validates the request, selects the phase, and runs the turn.
//
// # Inputs
//
//   - ctx: Request context.
//   - req: The raw chat request. Defaults (request ID, language,
//     history truncation) are applied in place before validation.
//
// # Outputs
//
//   - *ChatResponse: The phase handler's response.
//   - error: Non-nil on validation failure or when the phase handler
//     fails. Callers must not leak the error detail to end users.
func (s *ChatService) Process(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	req.EnsureDefaults(s.maxHistory)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	phase := s.selectPhase(req)
	ctx, span := chatTracer.Start(ctx, "chat.Process")
	span.SetAttributes(
		attribute.String("chat.request_id", req.RequestID),
		attribute.String("chat.phase", phase),
		attribute.String("chat.language", req.Language),
		attribute.Int("chat.history_len", len(req.History)),
	)
	defer span.End()

	if s.metrics != nil {
		s.metrics.ActiveTurns.Inc()
		defer s.metrics.ActiveTurns.Dec()
	}

	start := time.Now()
	var resp *datatypes.ChatResponse
	var err error
	if phase == datatypes.PhaseQA {
		resp, err = s.qaEngine.HandleTurn(ctx, req)
	} else {
		resp, err = s.collector.HandleTurn(ctx, req)
	}
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		s.metrics.RecordTurn(phase, "error", duration.Seconds(), 0)
		slog.Error("Chat turn failed",
			"request_id", req.RequestID, "phase", phase, "error", err)
		return nil, err
	}

	tokens, _ := resp.Metadata["tokens_used"].(int)
	s.metrics.RecordTurn(phase, "success", duration.Seconds(), tokens)
	if strategy, ok := resp.Metadata["retrieval_strategy"].(string); ok {
		s.metrics.RecordRetrievalStrategy(strategy)
	}

	slog.Info("Chat turn complete",
		"request_id", req.RequestID,
		"response_id", resp.ResponseID,
		"phase", phase,
		"duration_ms", duration.Milliseconds())
	return resp, nil
}

// selectPhase decides which phase handles this turn. QA requires a
// complete and confirmed profile; everything else is collection,
// including turns where a previously confirmed client clears a field.
func (s *ChatService) selectPhase(req *datatypes.ChatRequest) string {
	if req.UserData.IsComplete() && req.UserData.Confirmed {
		return datatypes.PhaseQA
	}
	return datatypes.PhaseCollection
}
