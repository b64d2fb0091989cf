// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api exposes the voltcord core over HTTP for the chat-platform
// collaborator. The collaborator owns platform identity: it authenticates
// users, resolves role membership, and passes both down as plain request
// fields. The core treats them as opaque facts.
//
// All functional routes live under /v1 behind bearer auth. /healthz and
// /metrics are unauthenticated.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltcord/voltcord/services/api/handlers"
	"github.com/voltcord/voltcord/services/api/middleware"
)

// NewRouter builds the full route table. An empty authToken disables auth
// (development only).
func NewRouter(deps handlers.Deps, authToken string, gatherer prometheus.Gatherer) (*gin.Engine, error) {
	if err := handlers.RegisterValidations(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))

	router.GET("/healthz", handlers.Health(deps))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	v1.Use(middleware.BearerAuth(authToken))
	{
		guilds := v1.Group("/guilds/:guild")
		guilds.Use(middleware.PathIDs())

		principals := guilds.Group("/principals")
		{
			principals.POST("", handlers.RegisterPrincipal(deps))
			principals.GET("", handlers.ListPrincipals(deps))
			principals.GET("/:id", handlers.GetPrincipal(deps))
			principals.PATCH("/:id", handlers.UpdatePrincipal(deps))
			principals.DELETE("/:id", handlers.DeletePrincipal(deps))
			principals.PUT("/:id/token", handlers.RotateToken(deps))

			principals.GET("/:id/shockers", handlers.ListShockers(deps))
			principals.POST("/:id/shockers", handlers.AddShocker(deps))
			principals.POST("/:id/shockers/sync", handlers.SyncShockers(deps))
			principals.DELETE("/:id/shockers/:shockerId", handlers.DeleteShocker(deps))

			principals.GET("/:id/grants", handlers.ListGrants(deps))
			principals.POST("/:id/grants", handlers.CreateGrant(deps))
			principals.DELETE("/:id/grants/:kind/:grantee", handlers.DeleteGrant(deps))

			principals.GET("/:id/preferences", handlers.ListPreferences(deps))
			principals.PUT("/:id/preferences", handlers.PutPreference(deps))
			principals.DELETE("/:id/preferences", handlers.DeletePreference(deps))
		}

		reminders := guilds.Group("/reminders")
		{
			reminders.POST("", handlers.CreateReminder(deps))
			reminders.GET("", handlers.ListReminders(deps))
			reminders.PATCH("/:id", handlers.UpdateReminder(deps))
			reminders.DELETE("/:id", handlers.DeleteReminder(deps))
		}

		triggers := guilds.Group("/triggers")
		{
			triggers.POST("", handlers.CreateTrigger(deps))
			triggers.GET("", handlers.ListTriggers(deps))
			triggers.PATCH("/:id", handlers.UpdateTrigger(deps))
			triggers.DELETE("/:id", handlers.DeleteTrigger(deps))
		}

		guilds.POST("/actions", handlers.DispatchAction(deps))
		guilds.POST("/messages", handlers.IngestMessage(deps))
		guilds.GET("/audit", handlers.ListAudit(deps))
	}

	return router, nil
}
