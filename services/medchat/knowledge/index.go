// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"

	"github.com/refualabs/medassist/services/medchat/datatypes"
)

var tracer = otel.Tracer("refualabs.medchat.knowledge")

// Stats summarizes the state of the knowledge base, including the
// distribution of chunks across metadata values.
type Stats struct {
	TotalChunks int            `json:"total_chunks"`
	Available   bool           `json:"available"`
	ByType      map[string]int `json:"by_type,omitempty"`
	ByHMO       map[string]int `json:"by_hmo,omitempty"`
	ByTier      map[string]int `json:"by_tier,omitempty"`
	ByCategory  map[string]int `json:"by_category,omitempty"`
}

// Searcher is the retrieval interface the QA pipeline depends on.
//
// Search returns up to topK chunks nearest to the query vector that
// satisfy the filter set, ordered by ascending distance. An empty
// result is not an error.
type Searcher interface {
	Search(ctx context.Context, vector []float32, f datatypes.SearchFilters, topK int) ([]datatypes.RetrievedChunk, error)
	IsAvailable(ctx context.Context) bool
	Stats(ctx context.Context) (*Stats, error)
}

// WeaviateIndex implements Searcher against a Weaviate instance holding
// the pre-indexed knowledge base.
//
// # Thread Safety
//
// WeaviateIndex is safe for concurrent use. The underlying Weaviate
// client handles connection pooling.
type WeaviateIndex struct {
	client *weaviate.Client
}

// NewWeaviateIndex creates a Searcher backed by the given client.
func NewWeaviateIndex(client *weaviate.Client) *WeaviateIndex {
	return &WeaviateIndex{client: client}
}

// Search runs a filtered nearVector query over the KnowledgeChunk class.
//
// HMO and tier conditions use a ContainsAny predicate against the
// concrete value and the wildcard "all", so chunks scoped to every HMO
// or tier stay eligible. Chunk type and category use exact matches.
func (w *WeaviateIndex) Search(ctx context.Context, vector []float32, f datatypes.SearchFilters, topK int) ([]datatypes.RetrievedChunk, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Search")
	defer span.End()

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "chunk_type"},
		{Name: "category"},
		{Name: "service"},
		{Name: "hmo"},
		{Name: "tier"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "distance"},
		}},
	}

	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	query := w.client.GraphQL().Get().
		WithClassName(KnowledgeChunkClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK)

	if where := buildWhere(f); where != nil {
		query = query.WithWhere(where)
	}

	result, err := query.Do(ctx)
	if err != nil {
		slog.Error("Knowledge base query failed", "error", err)
		return nil, fmt.Errorf("knowledge base query failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeChunkQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base response: %w", err)
	}

	chunks := make([]datatypes.RetrievedChunk, 0, len(parsed.Get.KnowledgeChunk))
	for _, hit := range parsed.Get.KnowledgeChunk {
		chunks = append(chunks, hit.ToRetrievedChunk())
	}
	slog.Debug("Knowledge base search complete",
		"hits", len(chunks), "top_k", topK,
		"hmo", f.HMO, "tier", f.Tier, "chunk_type", f.ChunkType, "category", f.Category)
	return chunks, nil
}

// buildWhere converts the filter set into a Weaviate where clause.
// Returns nil when no conditions are set.
func buildWhere(f datatypes.SearchFilters) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder

	if f.HMO != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"hmo"}).
			WithOperator(filters.ContainsAny).
			WithValueText(f.HMO, datatypes.ScopeAll))
	}
	if f.Tier != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"tier"}).
			WithOperator(filters.ContainsAny).
			WithValueText(f.Tier, datatypes.ScopeAll))
	}
	if f.ChunkType != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"chunk_type"}).
			WithOperator(filters.Equal).
			WithValueText(f.ChunkType))
	}
	if f.Category != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"category"}).
			WithOperator(filters.Equal).
			WithValueText(f.Category))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().
			WithOperator(filters.And).
			WithOperands(operands)
	}
}

// IsAvailable reports whether the Weaviate instance answers its
// readiness probe.
func (w *WeaviateIndex) IsAvailable(ctx context.Context) bool {
	ready, err := w.client.Misc().ReadyChecker().Do(ctx)
	return err == nil && ready
}

// Stats counts the indexed chunks via an aggregate query.
func (w *WeaviateIndex) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Stats")
	defer span.End()

	result, err := w.client.GraphQL().Aggregate().
		WithClassName(KnowledgeChunkClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("knowledge base aggregate failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeChunkCountResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregate response: %w", err)
	}

	stats := &Stats{Available: true}
	if agg := parsed.Aggregate.KnowledgeChunk; len(agg) > 0 {
		stats.TotalChunks = agg[0].Meta.Count
	}

	// Per-property distributions are informational; a failed group
	// aggregate degrades to totals only.
	stats.ByType = w.groupCounts(ctx, "chunk_type")
	stats.ByHMO = w.groupCounts(ctx, "hmo")
	stats.ByTier = w.groupCounts(ctx, "tier")
	stats.ByCategory = w.groupCounts(ctx, "category")
	return stats, nil
}

// groupCounts counts chunks per distinct value of one metadata
// property. Returns nil on failure.
func (w *WeaviateIndex) groupCounts(ctx context.Context, property string) map[string]int {
	result, err := w.client.GraphQL().Aggregate().
		WithClassName(KnowledgeChunkClassName).
		WithGroupBy(property).
		WithFields(
			graphql.Field{Name: "groupedBy", Fields: []graphql.Field{{Name: "value"}}},
			graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}},
		).
		Do(ctx)
	if err != nil {
		slog.Warn("Knowledge base group aggregate failed", "property", property, "error", err)
		return nil
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeChunkGroupResponse](result)
	if err != nil {
		slog.Warn("Failed to parse group aggregate response", "property", property, "error", err)
		return nil
	}

	counts := make(map[string]int, len(parsed.Aggregate.KnowledgeChunk))
	for _, group := range parsed.Aggregate.KnowledgeChunk {
		counts[group.GroupedBy.Value] = group.Meta.Count
	}
	return counts
}
