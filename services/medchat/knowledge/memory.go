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
	"math"
	"sort"
	"sync"

	"github.com/refualabs/medassist/services/medchat/datatypes"
)

// MemoryIndex is an in-process Searcher used when no Weaviate instance
// is configured (lightweight mode) and in tests. It applies the same
// filter semantics as the Weaviate index, including the "all" wildcard
// on HMO and tier.
//
// # Thread Safety
//
// MemoryIndex is safe for concurrent use.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks []memoryChunk
}

type memoryChunk struct {
	content  string
	metadata datatypes.ChunkMetadata
	vector   []float32
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Add indexes one chunk with its embedding vector.
func (m *MemoryIndex) Add(content string, metadata datatypes.ChunkMetadata, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, memoryChunk{
		content:  content,
		metadata: metadata,
		vector:   vector,
	})
}

// Search performs brute-force cosine search over the indexed chunks,
// keeping only those matching the filter set.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, f datatypes.SearchFilters, topK int) ([]datatypes.RetrievedChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]datatypes.RetrievedChunk, 0, topK)
	for _, c := range m.chunks {
		if !f.Matches(c.metadata) {
			continue
		}
		results = append(results, datatypes.RetrievedChunk{
			Content:  c.content,
			Metadata: c.metadata,
			Distance: cosineDistance(vector, c.vector),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// IsAvailable always reports true; the index lives in process memory.
func (m *MemoryIndex) IsAvailable(ctx context.Context) bool {
	return true
}

// Stats reports the number of indexed chunks and their distribution
// across metadata values.
func (m *MemoryIndex) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{
		TotalChunks: len(m.chunks),
		Available:   true,
		ByType:      make(map[string]int),
		ByHMO:       make(map[string]int),
		ByTier:      make(map[string]int),
		ByCategory:  make(map[string]int),
	}
	for _, c := range m.chunks {
		stats.ByType[c.metadata.Type]++
		stats.ByHMO[c.metadata.HMO]++
		stats.ByTier[c.metadata.Tier]++
		stats.ByCategory[c.metadata.Category]++
	}
	return stats, nil
}

// cosineDistance returns 1 - cosine similarity, the same distance
// metric Weaviate reports for cosine-indexed classes. Mismatched or
// zero-magnitude vectors yield the maximum distance.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
