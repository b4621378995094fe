// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package qa implements the question answering phase: query planning,
// the retrieval cascade over the knowledge base, and grounded answer
// generation.
package qa

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/refualabs/medassist/services/llm"
	"github.com/refualabs/medassist/services/medchat/datatypes"
)

var (
	planningTemperature float32 = 0.1
	planningMaxTokens           = 150
)

// PlanQuery asks the model which filters to apply for the question.
//
// Planning is best-effort: an unparsable reply or upstream failure
// falls back to the permissive plan (no filters, tier applied), so a
// bad plan can never block retrieval.
func PlanQuery(ctx context.Context, gateway llm.Gateway, userMessage string) datatypes.QueryPlan {
	result, err := gateway.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: queryPlanningPrompt},
		{Role: llm.RoleUser, Content: userMessage},
	}, llm.GenerationParams{
		Temperature: &planningTemperature,
		MaxTokens:   &planningMaxTokens,
	})
	if err != nil {
		slog.Error("Query planning failed", "error", err)
		return datatypes.PermissiveQueryPlan()
	}

	cleaned := llm.CleanJSONResponse(result.Text)
	var plan datatypes.QueryPlan
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		slog.Warn("Failed to parse query plan JSON", "error", err, "response", cleaned)
		return datatypes.PermissiveQueryPlan()
	}

	slog.Info("Query plan",
		"chunk_type", plan.ChunkType,
		"category", plan.Category,
		"ignore_tier", plan.IgnoreTier,
		"needs_comparison", plan.NeedsComparison)
	return plan
}
