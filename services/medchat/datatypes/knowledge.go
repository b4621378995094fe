// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the knowledge-base retrieval types: the indexed
// chunk, the sparse query plan inferred from a question, and the filter
// set executed against the index.
package datatypes

import (
	"math"
	"sort"
)

// =============================================================================
// Chunks
// =============================================================================

// Knowledge chunk kinds produced by the offline ingestion pipeline.
const (
	ChunkTypeContext = "context"
	ChunkTypeBenefit = "benefit"
	ChunkTypeContact = "contact"
)

// ChunkMetadata is the typed metadata attached to every indexed chunk.
//
// HMO and Tier may hold the wildcard value ScopeAll ("all"), meaning the
// chunk applies regardless of the user's HMO or tier. Retrieval filters
// must treat the wildcard as matching any concrete value.
type ChunkMetadata struct {
	Type     string `json:"type"`
	Category string `json:"category"`
	Service  string `json:"service,omitempty"`
	HMO      string `json:"hmo"`
	Tier     string `json:"tier"`
}

// RetrievedChunk is one knowledge-base hit: the chunk text, its metadata,
// and the similarity distance reported by the index (cosine distance,
// lower is closer).
type RetrievedChunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Distance float64       `json:"distance"`
}

// =============================================================================
// Query Plan
// =============================================================================

// QueryPlan is the sparse filter specification inferred from a raw
// question by the planning stage. All fields are optional; the zero
// value with IgnoreTier=false is the maximally permissive plan used
// when planning fails.
type QueryPlan struct {
	ChunkType       string `json:"chunk_type,omitempty"`
	Category        string `json:"category,omitempty"`
	IgnoreTier      bool   `json:"ignore_tier"`
	NeedsComparison bool   `json:"needs_comparison"`
}

// PermissiveQueryPlan returns the fallback plan applied when the model's
// plan output cannot be parsed: no filters, tier applied, no comparison.
func PermissiveQueryPlan() QueryPlan {
	return QueryPlan{}
}

// =============================================================================
// Search Filters
// =============================================================================

// SearchFilters is the concrete metadata filter set for one index query.
// Empty string fields are not filtered on. HMO and Tier are matched with
// an IN predicate against {value, ScopeAll} so wildcard-scoped chunks are
// always eligible.
type SearchFilters struct {
	HMO       string
	Tier      string
	ChunkType string
	Category  string
}

// IsEmpty reports whether no filter conditions are set at all.
func (f SearchFilters) IsEmpty() bool {
	return f.HMO == "" && f.Tier == "" && f.ChunkType == "" && f.Category == ""
}

// Matches reports whether a chunk's metadata satisfies the filter set.
//
// This is the reference semantics for the Weaviate where-clause built by
// the knowledge package, and the implementation used by the in-memory
// index: every present condition must hold (logical AND), and the
// wildcard ScopeAll on the chunk side matches any concrete HMO/Tier.
func (f SearchFilters) Matches(m ChunkMetadata) bool {
	if f.HMO != "" && m.HMO != f.HMO && m.HMO != ScopeAll {
		return false
	}
	if f.Tier != "" && m.Tier != f.Tier && m.Tier != ScopeAll {
		return false
	}
	if f.ChunkType != "" && m.Type != f.ChunkType {
		return false
	}
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	return true
}

// Retrieval strategy names, reported in response metadata so operators
// can see how far the cascade had to relax.
const (
	StrategyPlanned = "planned"
	StrategyRelaxed = "relaxed"
	StrategyGlobal  = "global"
)

// =============================================================================
// Source Attribution
// =============================================================================

// RelevanceFromDistance maps a cosine distance in [0, 2] onto a
// relevance score in [0, 1], rounded to three decimal places. Distances
// beyond 2 clamp to zero.
func RelevanceFromDistance(distance float64) float64 {
	score := 1.0 - distance/2.0
	if score < 0 {
		score = 0
	}
	return math.Round(score*1000) / 1000
}

// SourcesFromChunks builds the source attribution list for a set of
// retrieved chunks, sorted by relevance score descending. The input
// slice is not modified.
func SourcesFromChunks(chunks []RetrievedChunk) []Source {
	sources := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, Source{
			Type:           c.Metadata.Type,
			Category:       c.Metadata.Category,
			Service:        c.Metadata.Service,
			HMO:            c.Metadata.HMO,
			Tier:           c.Metadata.Tier,
			RelevanceScore: RelevanceFromDistance(c.Distance),
		})
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].RelevanceScore > sources[j].RelevanceScore
	})
	return sources
}
