// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voltcord/voltcord/services/core/domain"
	"github.com/voltcord/voltcord/services/core/pipeline"
)

type dispatchActionRequest struct {
	Requester      string   `json:"requester" binding:"required,identifier"`
	RequesterRoles []string `json:"requesterRoles"`
	Target         string   `json:"target" binding:"required,identifier"`

	// Partial parameters. Omitted fields are filled from the requester's
	// preferences, then last-used values, then the safe minimums.
	ShockerID  string  `json:"shockerId"`
	Type       *string `json:"type" binding:"omitempty,actiontype"`
	Intensity  *int    `json:"intensity" binding:"omitempty,min=1,max=100"`
	DurationMs *int    `json:"durationMs" binding:"omitempty,min=300,max=65535"`

	// Name is shown on the wearer's device alongside the command.
	Name string `json:"name"`
}

type ingestMessageRequest struct {
	Author  string `json:"author" binding:"required,identifier"`
	Content string `json:"content" binding:"required"`
}

// DispatchAction runs a manual action through the full pipeline and, on
// approval, sends it downstream. The response reports the downstream outcome,
// not just the validation verdict.
func DispatchAction(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild := c.Param("guild")
		var req dispatchActionRequest
		if !bindJSON(c, &req) {
			return
		}

		params := domain.RequestParams{ShockerID: req.ShockerID}
		if req.Type != nil {
			t := domain.ActionType(*req.Type)
			params.Type = &t
		}
		params.Intensity = req.Intensity
		params.DurationMs = req.DurationMs

		preq := pipeline.Request{
			Guild:          guild,
			Requester:      req.Requester,
			RequesterRoles: req.RequesterRoles,
			Target:         req.Target,
			Source:         domain.SourceManual,
			Params:         params,
		}
		if err := deps.Dispatcher.Dispatch(c.Request.Context(), preq, req.Name); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	}
}

// IngestMessage feeds one chat message through the trigger matcher. A
// non-match is a normal 200 with fired=false; the collaborator calls this for
// every message and must not treat silence as an error.
func IngestMessage(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild := c.Param("guild")
		var req ingestMessageRequest
		if !bindJSON(c, &req) {
			return
		}

		fired, err := deps.Matcher.OnMessage(c.Request.Context(), guild, req.Author, req.Content)
		if err != nil {
			writeError(c, err)
			return
		}
		if fired == nil {
			c.JSON(http.StatusOK, gin.H{"fired": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"fired": true, "triggerId": fired.ID, "target": fired.Target})
	}
}
