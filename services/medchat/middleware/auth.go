// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the medchat service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header and compares it against the service API key in constant time:
//
//	Request
//	   │
//	   ▼
//	APIKeyAuth
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► Constant-time compare against configured key
//	   │
//	   └─► 401 on mismatch, Next() on match
//
// # Open Deployment Behavior
//
// When no API key is configured (MEDCHAT_API_KEY unset), all requests
// pass through. This keeps local development and demo deployments
// working without any credential plumbing; production deployments set
// the key at the gateway or via the environment.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth creates a Gin middleware that guards routes with a static
// bearer API key.
//
// # Description
//
// With an empty key the middleware is a pass-through. With a key set,
// requests must carry "Authorization: Bearer <key>"; anything else is
// rejected with 401 before reaching the handler. Comparison uses
// crypto/subtle so timing does not leak key prefixes.
//
// # Inputs
//
//   - apiKey: The expected key. Empty disables authentication.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware ready for use with a route group.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		token := extractBearerToken(c)
		if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		c.Next()
	}
}

// extractBearerToken extracts the token from the Authorization header.
// Expected format is "Bearer <token>"; the scheme is matched
// case-insensitively per RFC 7235. Returns "" when the header is
// missing or malformed.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
