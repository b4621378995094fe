// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchFilters_Matches(t *testing.T) {
	meta := ChunkMetadata{
		Type:     ChunkTypeBenefit,
		Category: "dental",
		HMO:      HMOMaccabi,
		Tier:     TierGold,
	}

	tests := []struct {
		name    string
		filters SearchFilters
		want    bool
	}{
		{"empty filters match everything", SearchFilters{}, true},
		{"all conditions hold", SearchFilters{HMO: HMOMaccabi, Tier: TierGold, ChunkType: ChunkTypeBenefit, Category: "dental"}, true},
		{"hmo mismatch", SearchFilters{HMO: HMOClalit}, false},
		{"tier mismatch", SearchFilters{Tier: TierSilver}, false},
		{"type mismatch", SearchFilters{ChunkType: ChunkTypeContact}, false},
		{"category mismatch", SearchFilters{Category: "optometry"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.Matches(meta))
		})
	}
}

func TestSearchFilters_Matches_Wildcard(t *testing.T) {
	// A chunk scoped to every HMO and tier matches any concrete filter.
	meta := ChunkMetadata{Type: ChunkTypeContext, Category: "general", HMO: ScopeAll, Tier: ScopeAll}

	assert.True(t, SearchFilters{HMO: HMOMaccabi, Tier: TierGold}.Matches(meta))
	assert.True(t, SearchFilters{HMO: HMOClalit, Tier: TierBronze}.Matches(meta))

	// The wildcard lives on the chunk side only. Type and category are
	// always exact.
	assert.False(t, SearchFilters{ChunkType: ChunkTypeBenefit}.Matches(meta))
}

func TestSearchFilters_IsEmpty(t *testing.T) {
	assert.True(t, SearchFilters{}.IsEmpty())
	assert.False(t, SearchFilters{Category: "dental"}.IsEmpty())
	assert.False(t, SearchFilters{HMO: HMOMaccabi}.IsEmpty())
}

func TestRelevanceFromDistance(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		want     float64
	}{
		{"identical vectors", 0.0, 1.0},
		{"orthogonal vectors", 1.0, 0.5},
		{"opposite vectors", 2.0, 0.0},
		{"beyond range clamps", 3.5, 0.0},
		{"rounds to three decimals", 0.4444, 0.778},
		{"partial relevance", 1.5, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RelevanceFromDistance(tt.distance), 1e-9)
		})
	}
}

func TestSourcesFromChunks_SortedByRelevance(t *testing.T) {
	chunks := []RetrievedChunk{
		{
			Content:  "orthodontics coverage",
			Metadata: ChunkMetadata{Type: ChunkTypeBenefit, Category: "dental", Service: "orthodontics", HMO: HMOMaccabi, Tier: TierGold},
			Distance: 0.8,
		},
		{
			Content:  "dental overview",
			Metadata: ChunkMetadata{Type: ChunkTypeContext, Category: "dental", HMO: ScopeAll, Tier: ScopeAll},
			Distance: 0.2,
		},
		{
			Content:  "clinic phone numbers",
			Metadata: ChunkMetadata{Type: ChunkTypeContact, Category: "dental", HMO: HMOMaccabi, Tier: ScopeAll},
			Distance: 0.5,
		},
	}

	sources := SourcesFromChunks(chunks)
	require.Len(t, sources, 3)

	assert.Equal(t, ChunkTypeContext, sources[0].Type)
	assert.InDelta(t, 0.9, sources[0].RelevanceScore, 1e-9)
	assert.Equal(t, ChunkTypeContact, sources[1].Type)
	assert.InDelta(t, 0.75, sources[1].RelevanceScore, 1e-9)
	assert.Equal(t, ChunkTypeBenefit, sources[2].Type)
	assert.InDelta(t, 0.6, sources[2].RelevanceScore, 1e-9)

	// The input order is untouched.
	assert.InDelta(t, 0.8, chunks[0].Distance, 1e-9)
}

func TestSourcesFromChunks_Empty(t *testing.T) {
	sources := SourcesFromChunks(nil)
	assert.NotNil(t, sources)
	assert.Empty(t, sources)
}

func TestPermissiveQueryPlan(t *testing.T) {
	plan := PermissiveQueryPlan()
	assert.Empty(t, plan.ChunkType)
	assert.Empty(t, plan.Category)
	assert.False(t, plan.IgnoreTier)
	assert.False(t, plan.NeedsComparison)
}
