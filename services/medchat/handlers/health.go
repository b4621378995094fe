// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/refualabs/medassist/services/medchat/datatypes"
	"github.com/refualabs/medassist/services/medchat/knowledge"
)

// HandleHealth reports service liveness and the state of each
// dependency.
//
// GET /health
//
// Returns 200 with status "healthy" when every component is up, and
// status "degraded" otherwise. The service keeps serving while
// degraded; collection turns work without the knowledge base.
func HandleHealth(searcher knowledge.Searcher, gatewayConfigured bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		components := map[string]string{}

		if gatewayConfigured {
			components["llm_gateway"] = "ok"
		} else {
			components["llm_gateway"] = "not_configured"
		}

		if searcher != nil && searcher.IsAvailable(c.Request.Context()) {
			components["knowledge_base"] = "ok"
		} else {
			components["knowledge_base"] = "unavailable"
		}

		status := "healthy"
		for _, state := range components {
			if state != "ok" {
				status = "degraded"
				break
			}
		}

		c.JSON(http.StatusOK, datatypes.HealthResponse{
			Status:     status,
			Timestamp:  time.Now().UTC(),
			Components: components,
		})
	}
}

// HandleKnowledgeStats reports the size and availability of the indexed
// knowledge base.
//
// GET /v1/knowledge/stats
func HandleKnowledgeStats(searcher knowledge.Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if searcher == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Knowledge base not configured"})
			return
		}
		stats, err := searcher.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Knowledge base unavailable"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
