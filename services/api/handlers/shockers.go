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

type addShockerRequest struct {
	ID   string `json:"id" binding:"required,identifier"`
	Name string `json:"name"`
}

// ListShockers returns the principal's registered shockers.
func ListShockers(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		shockers, err := deps.Store.ListShockers(c.Request.Context(), c.Param("guild"), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"shockers": shockers})
	}
}

// AddShocker registers a shocker by its device API identifier.
func AddShocker(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild, owner := c.Param("guild"), c.Param("id")
		var req addShockerRequest
		if !bindJSON(c, &req) {
			return
		}

		sh := domain.Shocker{
			ID:        req.ID,
			Name:      req.Name,
			Owner:     owner,
			Guild:     guild,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.PutShocker(c.Request.Context(), sh); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sh)
	}
}

// SyncShockers pulls the principal's shocker list from the device API and
// registers every non-paused shocker not yet known locally. Existing entries
// keep their stored names; sync never deletes, so a shocker hidden upstream
// stays configured until the owner removes it themselves.
func SyncShockers(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild, owner := c.Param("guild"), c.Param("id")
		ctx := c.Request.Context()

		p, err := deps.Store.GetPrincipal(ctx, guild, owner)
		if err != nil {
			writeError(c, err)
			return
		}

		token, err := deps.Creds.Open(ctx, guild, owner)
		if err != nil {
			writeError(c, err)
			return
		}
		remote, err := deps.Client.ListOwnShockers(ctx, p.APIBaseURL, token)
		token.Destroy()
		if err != nil {
			writeError(c, err)
			return
		}

		existing, err := deps.Store.ListShockers(ctx, guild, owner)
		if err != nil {
			writeError(c, err)
			return
		}
		known := make(map[string]bool, len(existing))
		for _, sh := range existing {
			known[sh.ID] = true
		}

		added := 0
		for _, r := range remote {
			if r.IsPaused || known[r.ID] {
				continue
			}
			sh := domain.Shocker{
				ID:        r.ID,
				Name:      r.Name,
				Owner:     owner,
				Guild:     guild,
				CreatedAt: time.Now().UTC(),
			}
			if err := deps.Store.PutShocker(ctx, sh); err != nil {
				writeError(c, err)
				return
			}
			added++
		}

		deps.Logger.Info("shockers synced",
			"guild", guild, "principal", owner, "remote", len(remote), "added", added)
		c.JSON(http.StatusOK, gin.H{"added": added, "total": len(existing) + added})
	}
}

// DeleteShocker removes one shocker registration.
func DeleteShocker(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := deps.Store.DeleteShocker(c.Request.Context(),
			c.Param("guild"), c.Param("id"), c.Param("shockerId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}
