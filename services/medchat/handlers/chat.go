// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin HTTP handlers of the chat service.
// Handlers bind and sanity-check the request, delegate to the service
// layer, and translate errors into opaque HTTP responses. Upstream
// error detail never reaches the client.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/refualabs/medassist/services/medchat/datatypes"
	"github.com/refualabs/medassist/services/medchat/services"
)

var handlerTracer = otel.Tracer("refualabs.medchat.handlers")

// HandleChat processes one conversation turn.
//
// POST /v1/chat
//
// The request carries the full conversation state (profile plus
// history); the response returns the updated state for the client to
// echo back. Validation failures return 400, everything else that goes
// wrong returns an opaque 500.
func HandleChat(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bind failed")
			slog.Error("Failed to bind chat request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		resp, err := chatService.Process(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "turn failed")
			if errors.Is(err, services.ErrInvalidRequest) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
				return
			}
			// Detail stays in the logs; the client sees a generic failure.
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "An internal error occurred while processing your message. Please try again.",
			})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
