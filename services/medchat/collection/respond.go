// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/refualabs/medassist/services/llm"
	"github.com/refualabs/medassist/services/medchat/datatypes"
)

var tracer = otel.Tracer("refualabs.medchat.collection")

var (
	generationTemperature float32 = 0.7
	generationMaxTokens           = 500
)

// Collector handles one turn of the profile collection phase.
//
// # Thread Safety
//
// Collector is stateless apart from the injected gateway and safe for
// concurrent use. All conversation state arrives in the request and
// leaves in the response.
type Collector struct {
	gateway llm.Gateway
}

// NewCollector creates a Collector backed by the given gateway.
func NewCollector(gateway llm.Gateway) *Collector {
	return &Collector{gateway: gateway}
}

// HandleTurn runs the extract, merge, and respond steps for one
// collection turn.
//
// # Description
//
// The first turn of a conversation (empty history) returns a canned
// greeting without calling the model. Every later turn runs the silent
// extraction step, merges and validates the result against the profile
// carried in the request, and generates the visible reply from the
// validated state. If the reply carries the completion marker, the
// marker is stripped, the profile is flagged confirmed, and an empty
// remainder is replaced with a canned transition message.
//
// # Inputs
//
//   - ctx: Request context.
//   - req: The validated chat request.
//
// # Outputs
//
//   - *ChatResponse: The collection-phase response with updated profile.
//   - error: Non-nil only when response generation fails upstream.
func (c *Collector) HandleTurn(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "collection.HandleTurn")
	defer span.End()

	if len(req.History) == 0 {
		slog.Info("First message - sending introduction", "request_id", req.RequestID)
		resp := datatypes.NewChatResponse(req.RequestID, datatypes.PhaseCollection,
			GreetingMessage(req.Language), req.UserData)
		resp.MissingFields = req.UserData.MissingFields()
		resp.Metadata["tokens_used"] = 0
		resp.Metadata["fields_collected"] = 0
		resp.Metadata["is_complete"] = false
		resp.Metadata["is_greeting"] = true
		return resp, nil
	}

	update := ExtractUpdate(ctx, c.gateway, req)
	profile, problems := MergeValidated(req.UserData, update)

	reply, tokensUsed, err := c.generate(ctx, profile, problems, req)
	if err != nil {
		return nil, fmt.Errorf("collection response generation failed: %w", err)
	}

	isComplete := strings.Contains(reply, CompletionSentinel)
	if isComplete {
		reply = strings.TrimSpace(strings.ReplaceAll(reply, CompletionSentinel, ""))
		profile.Confirmed = true
		slog.Info("User confirmed profile", "request_id", req.RequestID)
		if reply == "" {
			reply = TransitionMessage(req.Language)
		}
	}

	missing := profile.MissingFields()
	slog.Info("Collection turn complete",
		"request_id", req.RequestID,
		"missing_fields", len(missing),
		"validation_problems", len(problems),
		"confirmed", profile.Confirmed,
		"tokens", tokensUsed)

	resp := datatypes.NewChatResponse(req.RequestID, datatypes.PhaseCollection, reply, profile)
	resp.MissingFields = missing
	resp.Metadata["tokens_used"] = tokensUsed
	resp.Metadata["fields_collected"] = len(datatypes.ProfileFieldOrder) - len(missing)
	resp.Metadata["is_complete"] = isComplete
	resp.Metadata["validation_errors"] = problemFields(problems)
	return resp, nil
}

// generate runs the visible response step over the full history plus
// the current message, with the validated profile state in the system
// prompt.
func (c *Collector) generate(ctx context.Context, profile datatypes.UserProfile, problems map[string]string, req *datatypes.ChatRequest) (string, int, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: BuildGenerationPrompt(profile, problems, req.Language)},
	}
	for _, m := range req.History {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	result, err := c.gateway.Chat(ctx, messages, llm.GenerationParams{
		Temperature: &generationTemperature,
		MaxTokens:   &generationMaxTokens,
	})
	if err != nil {
		return "", 0, err
	}
	return result.Text, result.TokensUsed, nil
}

// problemFields lists the problem map's keys in canonical field order so
// response metadata stays stable across turns.
func problemFields(problems map[string]string) []string {
	if len(problems) == 0 {
		return []string{}
	}
	fields := make([]string, 0, len(problems))
	for _, field := range datatypes.ProfileFieldOrder {
		if _, ok := problems[field]; ok {
			fields = append(fields, field)
		}
	}
	return fields
}
