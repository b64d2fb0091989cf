// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the voltcord API.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header
// and compares it in constant time against the configured service token.
// There is exactly one caller (the chat-platform collaborator), so a single
// shared token is the whole identity model; user identity travels in request
// bodies, not in auth headers.
//
//	Request
//	   │
//	   ▼
//	BearerAuth
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   └─► subtle.ConstantTimeCompare against the service token
//	           │
//	           ▼
//	       Handler
//
// An empty configured token disables authentication entirely. That is a
// development convenience, never a production mode.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voltcord/voltcord/pkg/logging"
)

// BearerAuth creates a Gin middleware that authenticates requests.
//
// # Description
//
// Validates the Authorization header against the configured service token.
// Missing, malformed, and wrong tokens all produce the same 401 body so the
// response reveals nothing about which part of the check failed.
//
// # Inputs
//
//   - token: The shared service token. Empty disables auth.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func BearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		presented := extractBearerToken(c)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		c.Next()
	}
}

// RequestLogger logs one line per completed request at debug level, or at
// warn level for 5xx responses.
func RequestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("request failed", args...)
			return
		}
		logger.Debug("request completed", args...)
	}
}

// extractBearerToken parses the Authorization header expecting the format
// "Bearer <token>". Returns empty string if the header is missing or
// malformed. The "Bearer" prefix is case-insensitive per RFC 7235.
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
