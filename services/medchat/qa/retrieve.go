// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package qa

import (
	"context"
	"log/slog"

	"github.com/refualabs/medassist/services/medchat/knowledge"
	"github.com/refualabs/medassist/services/medchat/datatypes"
)

// RetrieveCascade runs the three-stage retrieval cascade.
//
// # Description
//
// Stage one queries with the full planned filter set: the user's HMO,
// their tier (unless the plan says tier is irrelevant), and any chunk
// type or category the plan named. If nothing comes back, stage two
// relaxes to the HMO filter alone. If that is still empty, stage three
// searches globally with no filters. The strategy of the stage that
// produced the final result is returned alongside the chunks, so
// callers can surface it in response metadata.
//
// An empty final result is not an error; the answering prompt states
// that no relevant information was found.
func RetrieveCascade(ctx context.Context, searcher knowledge.Searcher, vector []float32, profile datatypes.UserProfile, plan datatypes.QueryPlan, topK int) ([]datatypes.RetrievedChunk, string, error) {
	tier := profile.Tier
	if plan.IgnoreTier {
		tier = ""
	}

	planned := datatypes.SearchFilters{
		HMO:       profile.HMO,
		Tier:      tier,
		ChunkType: plan.ChunkType,
		Category:  plan.Category,
	}
	chunks, err := searcher.Search(ctx, vector, planned, topK)
	if err != nil {
		return nil, "", err
	}
	if len(chunks) > 0 {
		return chunks, datatypes.StrategyPlanned, nil
	}

	slog.Info("No results with planned filters, trying relaxed (hmo only)",
		"hmo", profile.HMO, "tier", tier,
		"chunk_type", plan.ChunkType, "category", plan.Category)
	chunks, err = searcher.Search(ctx, vector, datatypes.SearchFilters{HMO: profile.HMO}, topK)
	if err != nil {
		return nil, "", err
	}
	if len(chunks) > 0 {
		return chunks, datatypes.StrategyRelaxed, nil
	}

	slog.Info("No results with relaxed filters, trying global search")
	chunks, err = searcher.Search(ctx, vector, datatypes.SearchFilters{}, topK)
	if err != nil {
		return nil, "", err
	}
	return chunks, datatypes.StrategyGlobal, nil
}
