// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package qa

import (
	"context"

	"github.com/refualabs/medassist/services/llm"
	"github.com/refualabs/medassist/services/medchat/datatypes"
	"github.com/refualabs/medassist/services/medchat/knowledge"
)

// mockGateway returns scripted chat replies in order and a fixed
// embedding vector.
type mockGateway struct {
	replies   []string
	calls     [][]llm.Message
	chatErr   error
	embedErr  error
	embedding []float32
	tokenCost int
}

func (m *mockGateway) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (*llm.ChatResult, error) {
	m.calls = append(m.calls, messages)
	if m.chatErr != nil {
		return nil, m.chatErr
	}
	reply := ""
	if idx := len(m.calls) - 1; idx < len(m.replies) {
		reply = m.replies[idx]
	}
	return &llm.ChatResult{Text: reply, TokensUsed: m.tokenCost, StopReason: "stop"}, nil
}

func (m *mockGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.embedding != nil {
		return m.embedding, nil
	}
	return []float32{1, 0, 0}, nil
}

func (m *mockGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		v, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// mockSearcher records search calls and serves scripted results per
// invocation, so cascade stages can be observed.
type mockSearcher struct {
	results   [][]datatypes.RetrievedChunk
	filters   []datatypes.SearchFilters
	searchErr error
}

func (m *mockSearcher) Search(ctx context.Context, vector []float32, f datatypes.SearchFilters, topK int) ([]datatypes.RetrievedChunk, error) {
	m.filters = append(m.filters, f)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if idx := len(m.filters) - 1; idx < len(m.results) {
		return m.results[idx], nil
	}
	return nil, nil
}

func (m *mockSearcher) IsAvailable(ctx context.Context) bool { return true }

func (m *mockSearcher) Stats(ctx context.Context) (*knowledge.Stats, error) {
	return &knowledge.Stats{Available: true}, nil
}

func qaProfile() datatypes.UserProfile {
	age := 30
	return datatypes.UserProfile{
		Name: "Ron Isakov", ID: "123456789", Gender: "male", Age: &age,
		HMO: datatypes.HMOMaccabi, HMOCard: "987654321", Tier: datatypes.TierGold,
		Confirmed: true,
	}
}

func benefitChunk(content string, distance float64) datatypes.RetrievedChunk {
	return datatypes.RetrievedChunk{
		Content: content,
		Metadata: datatypes.ChunkMetadata{
			Type: datatypes.ChunkTypeBenefit, Category: "dental", Service: "checkup",
			HMO: datatypes.HMOMaccabi, Tier: datatypes.TierGold,
		},
		Distance: distance,
	}
}
