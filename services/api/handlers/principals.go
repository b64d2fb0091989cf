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

	"github.com/awnumar/memguard"
	"github.com/gin-gonic/gin"

	"github.com/voltcord/voltcord/services/core/domain"
)

type registerPrincipalRequest struct {
	ExternalID  string `json:"externalId" binding:"required,identifier"`
	DisplayName string `json:"displayName"`
	APIBaseURL  string `json:"apiBaseUrl" binding:"omitempty,url"`
	Token       string `json:"token" binding:"required"`
}

type updatePrincipalRequest struct {
	DisplayName *string `json:"displayName"`
	DeviceWorn  *bool   `json:"deviceWorn"`
	APIBaseURL  *string `json:"apiBaseUrl" binding:"omitempty,url"`
}

type rotateTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// RegisterPrincipal creates a principal after proving the presented device
// token works. The token is validated against the device API before anything
// is written; a registration with a dead token would only fail later, at the
// worst possible moment.
func RegisterPrincipal(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild := c.Param("guild")
		var req registerPrincipalRequest
		if !bindJSON(c, &req) {
			return
		}

		tokenBytes := []byte(req.Token)
		req.Token = ""

		probe := memguard.NewBufferFromBytes(append([]byte(nil), tokenBytes...))
		err := deps.Client.ValidateToken(c.Request.Context(), req.APIBaseURL, probe)
		probe.Destroy()
		if err != nil {
			wipe(tokenBytes)
			writeError(c, err)
			return
		}

		now := time.Now().UTC()
		principal := domain.Principal{
			ExternalID:  req.ExternalID,
			Guild:       guild,
			DisplayName: req.DisplayName,
			DeviceWorn:  true,
			APIBaseURL:  req.APIBaseURL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := deps.Store.CreatePrincipal(c.Request.Context(), principal); err != nil {
			wipe(tokenBytes)
			writeError(c, err)
			return
		}

		if err := deps.Creds.Put(c.Request.Context(), guild, req.ExternalID, tokenBytes); err != nil {
			// Roll back so a retry does not hit "already exists" with no
			// stored token.
			if delErr := deps.Store.DeletePrincipal(c.Request.Context(), guild, req.ExternalID); delErr != nil {
				deps.Logger.Error("rollback after credential failure failed",
					"guild", guild, "principal", req.ExternalID, "error", delErr)
			}
			writeError(c, err)
			return
		}

		deps.Logger.Info("principal registered", "guild", guild, "principal", req.ExternalID)
		c.JSON(http.StatusCreated, principal)
	}
}

// GetPrincipal returns one principal by external ID.
func GetPrincipal(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := deps.Store.GetPrincipal(c.Request.Context(), c.Param("guild"), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// ListPrincipals returns all principals registered in the guild.
func ListPrincipals(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		principals, err := deps.Store.ListPrincipals(c.Request.Context(), c.Param("guild"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"principals": principals})
	}
}

// UpdatePrincipal patches mutable principal fields. Clearing DeviceWorn is
// the wearer's kill switch: it takes effect on the next validation pass, no
// matter which source the request came from.
func UpdatePrincipal(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updatePrincipalRequest
		if !bindJSON(c, &req) {
			return
		}

		p, err := deps.Store.UpdatePrincipal(c.Request.Context(), c.Param("guild"), c.Param("id"),
			func(p *domain.Principal) error {
				if req.DisplayName != nil {
					p.DisplayName = *req.DisplayName
				}
				if req.DeviceWorn != nil {
					p.DeviceWorn = *req.DeviceWorn
				}
				if req.APIBaseURL != nil {
					p.APIBaseURL = *req.APIBaseURL
				}
				return nil
			})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// DeletePrincipal removes the principal and everything keyed to it: shockers,
// grants in both directions, preferences, reminders, triggers, and the stored
// credential. Audit entries survive; they are the record, not the state.
func DeletePrincipal(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild, id := c.Param("guild"), c.Param("id")
		if err := deps.Store.DeletePrincipal(c.Request.Context(), guild, id); err != nil {
			writeError(c, err)
			return
		}
		deps.Logger.Info("principal deleted", "guild", guild, "principal", id)
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

// RotateToken replaces the stored device token after validating the new one.
func RotateToken(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild, id := c.Param("guild"), c.Param("id")
		var req rotateTokenRequest
		if !bindJSON(c, &req) {
			return
		}

		p, err := deps.Store.GetPrincipal(c.Request.Context(), guild, id)
		if err != nil {
			writeError(c, err)
			return
		}

		tokenBytes := []byte(req.Token)
		req.Token = ""

		probe := memguard.NewBufferFromBytes(append([]byte(nil), tokenBytes...))
		err = deps.Client.ValidateToken(c.Request.Context(), p.APIBaseURL, probe)
		probe.Destroy()
		if err != nil {
			wipe(tokenBytes)
			writeError(c, err)
			return
		}

		if err := deps.Creds.Put(c.Request.Context(), guild, id, tokenBytes); err != nil {
			writeError(c, err)
			return
		}
		deps.Logger.Info("device token rotated", "guild", guild, "principal", id)
		c.JSON(http.StatusOK, gin.H{"status": "rotated"})
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
