// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP handler layer of the voltcord API.
//
// Handlers are thin: they bind the request, call into the core packages, and
// translate errors to HTTP statuses. All authorization and parameter
// validation lives in the pipeline; handlers never duplicate those checks.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voltcord/voltcord/pkg/logging"
	"github.com/voltcord/voltcord/services/core/audit"
	"github.com/voltcord/voltcord/services/core/credential"
	"github.com/voltcord/voltcord/services/core/device"
	"github.com/voltcord/voltcord/services/core/dispatch"
	"github.com/voltcord/voltcord/services/core/domain"
	"github.com/voltcord/voltcord/services/core/store"
	"github.com/voltcord/voltcord/services/core/trigger"
)

// Deps carries everything the handlers need. Every field must be non-nil.
type Deps struct {
	Store      *store.Store
	Creds      *credential.Store
	Client     *device.Client
	Dispatcher *dispatch.Dispatcher
	Matcher    *trigger.Matcher
	Sink       *audit.Sink
	Logger     *logging.Logger
}

// Health reports liveness. It touches the store with a no-op read so a
// wedged database shows up here instead of on the first real request.
func Health(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := deps.Store.GetPrincipal(c.Request.Context(), "_health", "_probe"); err != nil &&
			!errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// writeError translates core errors into HTTP responses. Rejections carry
// their stable kind so the collaborator can render per-kind user messages
// without parsing reason text.
func writeError(c *gin.Context, err error) {
	if rej, ok := domain.AsRejection(err); ok {
		body := gin.H{"error": rej.Reason, "kind": string(rej.Kind)}
		if rej.Field != "" {
			body["field"] = rej.Field
		}
		c.JSON(rejectionStatus(rej.Kind), body)
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func rejectionStatus(kind domain.RejectionKind) int {
	switch kind {
	case domain.RejectNotRegistered:
		return http.StatusNotFound
	case domain.RejectPermissionDenied, domain.RejectDeviceNotWorn:
		return http.StatusForbidden
	case domain.RejectRateLimited:
		return http.StatusTooManyRequests
	case domain.RejectDownstreamTimeout:
		return http.StatusGatewayTimeout
	case domain.RejectDownstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

// bindJSON binds the request body and reports binding failures as 400s.
// Returns false when the handler should stop.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
