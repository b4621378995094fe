// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package collection implements the profile collection phase: a silent
// extraction step pulls structured fields out of the user's free-form
// message, a merge step validates them against the running profile, and
// a generation step produces the visible reply.
package collection

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/refualabs/medassist/services/llm"
	"github.com/refualabs/medassist/services/medchat/datatypes"
)

// extractionHistoryTurns is how many recent turns are given to the
// extraction model so bare answers like "30" can be tied to the field
// the assistant just asked for.
const extractionHistoryTurns = 4

var (
	extractionTemperature float32 = 0.1
	extractionMaxTokens           = 200
)

// ExtractUpdate runs the silent extraction step over the current
// message and recent history.
//
// Extraction is best-effort: a reply that is not valid JSON, or an
// upstream failure, yields an empty update and the turn proceeds. The
// conversation never stalls on a bad extraction.
func ExtractUpdate(ctx context.Context, gateway llm.Gateway, req *datatypes.ChatRequest) datatypes.ProfileUpdate {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: extractionPrompt},
	}
	for _, m := range req.RecentHistory(extractionHistoryTurns) {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	result, err := gateway.Chat(ctx, messages, llm.GenerationParams{
		Temperature: &extractionTemperature,
		MaxTokens:   &extractionMaxTokens,
	})
	if err != nil {
		slog.Error("Extraction step failed", "error", err)
		return datatypes.ProfileUpdate{}
	}

	cleaned := llm.CleanJSONResponse(result.Text)
	var update datatypes.ProfileUpdate
	if err := json.Unmarshal([]byte(cleaned), &update); err != nil {
		slog.Warn("Failed to parse extraction JSON", "error", err, "response", cleaned)
		return datatypes.ProfileUpdate{}
	}

	slog.Debug("Extracted profile update", "fields", update.TouchedFields())
	return update
}
