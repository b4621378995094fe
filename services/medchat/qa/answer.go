// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package qa

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/refualabs/medassist/services/llm"
	"github.com/refualabs/medassist/services/medchat/datatypes"
	"github.com/refualabs/medassist/services/medchat/knowledge"
)

var tracer = otel.Tracer("refualabs.medchat.qa")

// DefaultTopK is the number of chunks retrieved per query when no
// override is configured.
const DefaultTopK = 5

var (
	answerTemperature float32 = 0.3
	answerMaxTokens           = 800
)

// Engine handles one turn of the question answering phase.
//
// # Thread Safety
//
// Engine is stateless apart from the injected dependencies and safe for
// concurrent use.
type Engine struct {
	gateway  llm.Gateway
	searcher knowledge.Searcher
	topK     int
}

// NewEngine creates a QA engine. A non-positive topK falls back to
// DefaultTopK.
func NewEngine(gateway llm.Gateway, searcher knowledge.Searcher, topK int) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Engine{gateway: gateway, searcher: searcher, topK: topK}
}

// HandleTurn answers one question with the retrieval pipeline: plan the
// query, embed the question, run the retrieval cascade, and generate a
// grounded answer with source attribution.
//
// The profile in the request is returned unchanged; the QA phase never
// modifies collected data.
func (e *Engine) HandleTurn(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "qa.HandleTurn")
	defer span.End()

	plan := PlanQuery(ctx, e.gateway, req.Message)

	vector, err := e.gateway.Embed(ctx, req.Message)
	if err != nil {
		return nil, fmt.Errorf("question embedding failed: %w", err)
	}

	chunks, strategy, err := RetrieveCascade(ctx, e.searcher, vector, req.UserData, plan, e.topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge retrieval failed: %w", err)
	}
	slog.Info("Retrieval complete",
		"request_id", req.RequestID,
		"chunks", len(chunks),
		"strategy", strategy)

	answer, tokensUsed, err := e.generate(ctx, req, chunks)
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}

	resp := datatypes.NewChatResponse(req.RequestID, datatypes.PhaseQA, answer, req.UserData)
	resp.Sources = datatypes.SourcesFromChunks(chunks)
	resp.Metadata["tokens_used"] = tokensUsed
	resp.Metadata["chunks_retrieved"] = len(chunks)
	resp.Metadata["top_k"] = e.topK
	resp.Metadata["retrieval_strategy"] = strategy
	return resp, nil
}

// generate produces the grounded answer from the retrieved context and
// the conversation history.
func (e *Engine) generate(ctx context.Context, req *datatypes.ChatRequest, chunks []datatypes.RetrievedChunk) (string, int, error) {
	formatted := FormatRetrievedChunks(chunks, req.Language)
	systemPrompt := BuildAnswerPrompt(req.UserData, formatted, req.Language)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
	}
	for _, m := range req.History {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	result, err := e.gateway.Chat(ctx, messages, llm.GenerationParams{
		Temperature: &answerTemperature,
		MaxTokens:   &answerMaxTokens,
	})
	if err != nil {
		return "", 0, err
	}
	return result.Text, result.TokensUsed, nil
}
