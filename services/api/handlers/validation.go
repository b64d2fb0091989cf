// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/voltcord/voltcord/pkg/validation"
	"github.com/voltcord/voltcord/services/core/domain"
)

// RegisterValidations installs the custom binding rules on gin's validator
// engine. Must be called once before the router serves requests.
//
// Rules:
//
//   - actiontype: the string is one of the supported action kinds
//     (Shock, Vibrate, Sound).
//   - identifier: the string is a storage-safe identifier.
func RegisterValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("actiontype", func(fl validator.FieldLevel) bool {
		return domain.ValidActionType(domain.ActionType(fl.Field().String()))
	}); err != nil {
		return err
	}
	return v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return validation.Valid(fl.Field().String())
	})
}
