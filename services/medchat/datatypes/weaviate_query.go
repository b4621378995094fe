// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Type Parameters
//
//   - T: The target struct type with json tags matching the response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from the Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if the response is nil or parsing fails.
//
// # Limitations
//
//   - Type mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Knowledge Chunk Response Types
// =============================================================================

// KnowledgeChunkQueryResponse represents the response from querying the
// KnowledgeChunk class.
type KnowledgeChunkQueryResponse struct {
	Get struct {
		KnowledgeChunk []KnowledgeChunkResult `json:"KnowledgeChunk"`
	} `json:"Get"`
}

// KnowledgeChunkResult is a single chunk hit, including the vector
// distance reported under _additional.
type KnowledgeChunkResult struct {
	Content    string `json:"content"`
	ChunkType  string `json:"chunk_type"`
	Category   string `json:"category"`
	Service    string `json:"service"`
	HMO        string `json:"hmo"`
	Tier       string `json:"tier"`
	Additional struct {
		ID       string  `json:"id"`
		Distance float64 `json:"distance"`
	} `json:"_additional"`
}

// ToRetrievedChunk converts a raw query result into the retrieval type
// used by the rest of the pipeline.
func (r KnowledgeChunkResult) ToRetrievedChunk() RetrievedChunk {
	return RetrievedChunk{
		Content: r.Content,
		Metadata: ChunkMetadata{
			Type:     r.ChunkType,
			Category: r.Category,
			Service:  r.Service,
			HMO:      r.HMO,
			Tier:     r.Tier,
		},
		Distance: r.Additional.Distance,
	}
}

// KnowledgeChunkCountResponse represents an Aggregate query counting
// chunks in the KnowledgeChunk class.
type KnowledgeChunkCountResponse struct {
	Aggregate struct {
		KnowledgeChunk []struct {
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		} `json:"KnowledgeChunk"`
	} `json:"Aggregate"`
}

// KnowledgeChunkGroupResponse represents an Aggregate query grouped by
// one metadata property, one group per distinct value.
type KnowledgeChunkGroupResponse struct {
	Aggregate struct {
		KnowledgeChunk []struct {
			GroupedBy struct {
				Value string `json:"value"`
			} `json:"groupedBy"`
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		} `json:"KnowledgeChunk"`
	} `json:"Aggregate"`
}
