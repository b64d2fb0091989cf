// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voltcord/voltcord/services/core/audit"
	"github.com/voltcord/voltcord/services/core/domain"
)

const defaultAuditLimit = 50

// ListAudit returns the guild's audit entries, newest first. Query
// parameters: actor, target, source, since (RFC 3339), limit.
func ListAudit(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := audit.Filter{
			Actor:  c.Query("actor"),
			Target: c.Query("target"),
			Source: domain.Source(c.Query("source")),
			Limit:  defaultAuditLimit,
		}

		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			filter.Limit = limit
		}
		if raw := c.Query("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC 3339"})
				return
			}
			filter.Since = since
		}

		entries, err := deps.Sink.List(c.Request.Context(), c.Param("guild"), filter)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}
