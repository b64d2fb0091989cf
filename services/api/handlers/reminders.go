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
)

type actionParamsRequest struct {
	ShockerID  string `json:"shockerId"`
	Type       string `json:"type" binding:"required,actiontype"`
	Intensity  int    `json:"intensity" binding:"required,min=1,max=100"`
	DurationMs int    `json:"durationMs" binding:"required,min=300,max=65535"`
}

func (r actionParamsRequest) toParams() domain.ActionParams {
	return domain.ActionParams{
		ShockerID:  r.ShockerID,
		Type:       domain.ActionType(r.Type),
		Intensity:  r.Intensity,
		DurationMs: r.DurationMs,
	}
}

type createReminderRequest struct {
	Owner      string   `json:"owner" binding:"required,identifier"`
	OwnerRoles []string `json:"ownerRoles"`
	Target     string   `json:"target" binding:"required,identifier"`

	// Schedule is free text, e.g. "in 30 minutes", "every day at 9:00",
	// "every 2 hours", "weekdays at 07:30".
	Schedule string `json:"schedule" binding:"required"`

	Params actionParamsRequest `json:"params" binding:"required"`
	Reason string              `json:"reason"`
}

type updateReminderRequest struct {
	Enabled  *bool   `json:"enabled"`
	Schedule *string `json:"schedule"`
	Reason   *string `json:"reason"`
}

// CreateReminder stores a scheduled action. Parameters are captured complete
// here; the scheduler never fills defaults at fire time. Consent is checked
// now as a courtesy and re-checked at every fire, so a revoked grant stops
// future fires without the owner touching the reminder.
func CreateReminder(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		guild := c.Param("guild")
		var req createReminderRequest
		if !bindJSON(c, &req) {
			return
		}
		ctx := c.Request.Context()

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

		now := time.Now().UTC()
		rule, err := domain.ParseRule(req.Schedule, now)
		if err != nil {
			writeError(c, err)
			return
		}
		nextFire, err := domain.ComputeNextFire(rule, now)
		if err != nil {
			writeError(c, err)
			return
		}

		reminder := domain.Reminder{
			ID:        uuid.NewString(),
			Guild:     guild,
			Owner:     req.Owner,
			Target:    req.Target,
			Params:    req.Params.toParams(),
			Rule:      rule,
			NextFire:  nextFire,
			Enabled:   true,
			Reason:    req.Reason,
			CreatedAt: now,
		}
		if err := deps.Store.CreateReminder(ctx, reminder); err != nil {
			writeError(c, err)
			return
		}
		deps.Logger.Info("reminder created",
			"guild", guild, "reminder", reminder.ID, "owner", req.Owner,
			"target", req.Target, "nextFire", nextFire)
		c.JSON(http.StatusCreated, reminder)
	}
}

// ListReminders returns the guild's reminders ordered by next fire time.
func ListReminders(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		reminders, err := deps.Store.ListReminders(c.Request.Context(), c.Param("guild"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reminders": reminders})
	}
}

// UpdateReminder patches a reminder. A new schedule recomputes the next fire
// from now; re-enabling a disabled reminder does the same so it cannot fire
// immediately off a stale timestamp.
func UpdateReminder(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateReminderRequest
		if !bindJSON(c, &req) {
			return
		}
		now := time.Now().UTC()

		reminder, err := deps.Store.UpdateReminder(c.Request.Context(),
			c.Param("guild"), c.Param("id"), func(r *domain.Reminder) error {
				if req.Reason != nil {
					r.Reason = *req.Reason
				}
				if req.Schedule != nil {
					rule, err := domain.ParseRule(*req.Schedule, now)
					if err != nil {
						return err
					}
					next, err := domain.ComputeNextFire(rule, now)
					if err != nil {
						return err
					}
					r.Rule = rule
					r.NextFire = next
				}
				if req.Enabled != nil {
					if *req.Enabled && !r.Enabled && req.Schedule == nil {
						next, err := domain.ComputeNextFire(r.Rule, now)
						if err != nil {
							return err
						}
						r.NextFire = next
					}
					r.Enabled = *req.Enabled
				}
				return nil
			})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, reminder)
	}
}

// DeleteReminder removes one reminder.
func DeleteReminder(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := deps.Store.DeleteReminder(c.Request.Context(), c.Param("guild"), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}
