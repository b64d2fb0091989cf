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
	"github.com/google/uuid"

	"github.com/voltcord/voltcord/services/core/domain"
	"github.com/voltcord/voltcord/services/core/trigger"
)

type createTriggerRequest struct {
	Owner      string   `json:"owner" binding:"required,identifier"`
	OwnerRoles []string `json:"ownerRoles"`
	Target     string   `json:"target" binding:"required,identifier"`

	Name    string `json:"name"`
	Pattern string `json:"pattern" binding:"required"`

	Params          actionParamsRequest `json:"params" binding:"required"`
	CooldownSeconds int                 `json:"cooldownSeconds" binding:"omitempty,min=0"`
}

type updateTriggerRequest struct {
	Enabled         *bool   `json:"enabled"`
	Name            *string `json:"name"`
	Pattern         *string `json:"pattern"`
	CooldownSeconds *int    `json:"cooldownSeconds" binding:"omitempty,min=0"`
}

// CreateTrigger stores a message-pattern trigger. The pattern is compiled
// here so a bad expression fails the creation, not every message scan.
func CreateTrigger(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild := c.Param("guild")
		var req createTriggerRequest
		if !bindJSON(c, &req) {
			return
		}
		ctx := c.Request.Context()

		if _, err := trigger.ValidatePattern(req.Pattern); err != nil {
			writeError(c, err)
			return
		}

		if _, err := deps.Store.GetPrincipal(ctx, guild, req.Target); err != nil {
			writeError(c, err)
			return
		}
		allowed, err := deps.Store.Authorized(ctx, guild, req.Owner, req.Target, req.OwnerRoles)
		if err != nil {
			writeError(c, err)
			return
		}
		if !allowed {
			writeError(c, domain.NewRejection(domain.RejectPermissionDenied,
				"target has not granted you control"))
			return
		}

		t := domain.Trigger{
			ID:              uuid.NewString(),
			Guild:           guild,
			Owner:           req.Owner,
			Target:          req.Target,
			Name:            req.Name,
			Pattern:         req.Pattern,
			Params:          req.Params.toParams(),
			CooldownSeconds: req.CooldownSeconds,
			Enabled:         true,
			CreatedAt:       time.Now().UTC(),
		}
		if err := deps.Store.CreateTrigger(ctx, t); err != nil {
			writeError(c, err)
			return
		}
		deps.Logger.Info("trigger created",
			"guild", guild, "trigger", t.ID, "owner", req.Owner, "target", req.Target)
		c.JSON(http.StatusCreated, t)
	}
}

// ListTriggers returns the guild's triggers in creation order.
func ListTriggers(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		triggers, err := deps.Store.ListTriggers(c.Request.Context(), c.Param("guild"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"triggers": triggers})
	}
}

// UpdateTrigger patches a trigger. A new pattern is validated before it is
// stored.
func UpdateTrigger(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateTriggerRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.Pattern != nil {
			if _, err := trigger.ValidatePattern(*req.Pattern); err != nil {
				writeError(c, err)
				return
			}
		}

		t, err := deps.Store.UpdateTrigger(c.Request.Context(),
			c.Param("guild"), c.Param("id"), func(t *domain.Trigger) error {
				if req.Name != nil {
					t.Name = *req.Name
				}
				if req.Pattern != nil {
					t.Pattern = *req.Pattern
				}
				if req.CooldownSeconds != nil {
					t.CooldownSeconds = *req.CooldownSeconds
				}
				if req.Enabled != nil {
					t.Enabled = *req.Enabled
				}
				return nil
			})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// DeleteTrigger removes one trigger.
func DeleteTrigger(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := deps.Store.DeleteTrigger(c.Request.Context(), c.Param("guild"), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}
