// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package knowledge provides similarity search over the pre-indexed
// medical services knowledge base, backed by Weaviate in production and
// by an in-memory index for tests and lightweight deployments.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// KnowledgeChunkClassName is the Weaviate class holding indexed chunks.
const KnowledgeChunkClassName = "KnowledgeChunk"

// GetKnowledgeChunkSchema returns the schema for the KnowledgeChunk
// class. Vectors are supplied externally by the ingestion pipeline, so
// the vectorizer is "none". Metadata properties are filterable to
// support the retrieval cascade's where clauses.
func GetKnowledgeChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       KnowledgeChunkClassName,
		Description: "A chunk of medical services documentation with scope metadata.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:        "content",
				DataType:    []string{"text"},
				Description: "The chunk text shown to the answering model.",
			},
			{
				Name:            "chunk_type",
				DataType:        []string{"text"},
				Description:     "Chunk kind: context, benefit, or contact.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "category",
				DataType:        []string{"text"},
				Description:     "Medical service category, e.g. dental or optometry.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "service",
				DataType:        []string{"text"},
				Description:     "Specific service name within the category, if any.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "hmo",
				DataType:        []string{"text"},
				Description:     "HMO scope: maccabi, meuhedet, clalit, or the wildcard 'all'.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "tier",
				DataType:        []string{"text"},
				Description:     "Membership tier scope: gold, silver, bronze, or the wildcard 'all'.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureSchema creates the KnowledgeChunk class if it does not exist.
// The knowledge base itself is populated by the offline ingestion
// pipeline; this only guarantees the class is queryable at startup.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	class := GetKnowledgeChunkSchema()
	slog.Info("Checking schema", "class", class.Class)

	_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
	if err == nil {
		slog.Info("Schema already exists", "class", class.Class)
		return nil
	}

	slog.Info("Schema not found, creating it...", "class", class.Class)
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create schema for class %s: %w", class.Class, err)
	}
	slog.Info("Successfully created schema", "class", class.Class)
	return nil
}
