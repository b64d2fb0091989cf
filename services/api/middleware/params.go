// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voltcord/voltcord/pkg/validation"
)

// PathIDs rejects requests whose path parameters are not storage-safe
// identifiers. Every path parameter under the guild tree ends up embedded in
// a storage key, so they are all held to the same rule.
func PathIDs() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range c.Params {
			if err := validation.ValidateID(p.Value); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error": fmt.Sprintf("invalid path parameter %s: %s", p.Key, err.Error()),
				})
				return
			}
		}
		c.Next()
	}
}
