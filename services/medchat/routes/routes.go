// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/refualabs/medassist/services/medchat/handlers"
	"github.com/refualabs/medassist/services/medchat/knowledge"
	"github.com/refualabs/medassist/services/medchat/middleware"
	"github.com/refualabs/medassist/services/medchat/services"
)

// SetupRoutes registers all HTTP routes on the router. Health and
// metrics stay open for probes and scrapers; the v1 API group is
// guarded by the API key when one is configured.
func SetupRoutes(router *gin.Engine, chatService *services.ChatService, searcher knowledge.Searcher, gatewayConfigured bool, apiKey string) {
	router.GET("/health", handlers.HandleHealth(searcher, gatewayConfigured))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.APIKeyAuth(apiKey))
	{
		v1.POST("/chat", handlers.HandleChat(chatService))
		v1.GET("/knowledge/stats", handlers.HandleKnowledgeStats(searcher))
	}
}
