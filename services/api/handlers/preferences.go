// Copyright (C) 2025 Voltcord Contributors
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

	"github.com/voltcord/voltcord/services/core/domain"
)

type putPreferenceRequest struct {
	// Target scopes the preference to one target principal. Empty sets the
	// controller's global default.
	Target string `json:"target"`

	DefaultIntensity int    `json:"defaultIntensity" binding:"omitempty,min=1,max=100"`
	DefaultDuration  int    `json:"defaultDuration" binding:"omitempty,min=300,max=65535"`
	DefaultType      string `json:"defaultType" binding:"omitempty,actiontype"`
}

// PutPreference stores configured defaults for the principal in the path,
// either globally or for one target. Last-used values on an existing record
// are preserved; only the defaults are replaced.
func PutPreference(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild, principal := c.Param("guild"), c.Param("id")
		var req putPreferenceRequest
		if !bindJSON(c, &req) {
			return
		}

		pref := domain.Preference{
			Guild:            guild,
			Principal:        principal,
			Target:           req.Target,
			DefaultIntensity: req.DefaultIntensity,
			DefaultDuration:  req.DefaultDuration,
			DefaultType:      domain.ActionType(req.DefaultType),
			UpdatedAt:        time.Now().UTC(),
		}
		if err := deps.Store.PutPreference(c.Request.Context(), pref); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, pref)
	}
}

// ListPreferences returns the principal's preference records, global and
// per-target.
func ListPreferences(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		prefs, err := deps.Store.ListPreferences(c.Request.Context(), c.Param("guild"), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"preferences": prefs})
	}
}

// DeletePreference removes one preference record. The target query parameter
// selects the per-target record; omitting it removes the global default.
func DeletePreference(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := deps.Store.DeletePreference(c.Request.Context(),
			c.Param("guild"), c.Param("id"), c.Query("target"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}
