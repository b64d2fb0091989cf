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

type createGrantRequest struct {
	Kind    string `json:"kind" binding:"required,oneof=user role"`
	Grantee string `json:"grantee" binding:"required,identifier"`
}

// CreateGrant records consent: the principal in the path allows the grantee
// to act on them. Re-granting to the same grantee is idempotent.
func CreateGrant(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild, grantor := c.Param("guild"), c.Param("id")
		var req createGrantRequest
		if !bindJSON(c, &req) {
			return
		}

		grant := domain.ControllerGrant{
			Guild:     guild,
			Grantor:   grantor,
			Kind:      domain.GranteeKind(req.Kind),
			Grantee:   req.Grantee,
			GrantedAt: time.Now().UTC(),
		}
		if err := deps.Store.PutGrant(c.Request.Context(), grant); err != nil {
			writeError(c, err)
			return
		}
		deps.Logger.Info("grant created",
			"guild", guild, "grantor", grantor, "kind", req.Kind, "grantee", req.Grantee)
		c.JSON(http.StatusCreated, grant)
	}
}

// ListGrants returns the grants the principal has issued.
func ListGrants(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		grants, err := deps.Store.ListGrants(c.Request.Context(), c.Param("guild"), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"grants": grants})
	}
}

// DeleteGrant revokes consent. Revocation takes effect on the next
// authorization check; nothing in flight is recalled.
func DeleteGrant(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild, grantor := c.Param("guild"), c.Param("id")
		kind := domain.GranteeKind(c.Param("kind"))
		if kind != domain.GranteeUser && kind != domain.GranteeRole {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be user or role"})
			return
		}

		err := deps.Store.DeleteGrant(c.Request.Context(), guild, grantor, kind, c.Param("grantee"))
		if err != nil {
			writeError(c, err)
			return
		}
		deps.Logger.Info("grant revoked",
			"guild", guild, "grantor", grantor, "kind", string(kind), "grantee", c.Param("grantee"))
		c.JSON(http.StatusOK, gin.H{"status": "revoked"})
	}
}
