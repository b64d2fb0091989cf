// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for identifiers that reach the
// storage layer.
//
// Guild IDs, principal IDs, shocker IDs, and grantee IDs are all embedded in
// colon-separated storage keys. Validating them at the API boundary keeps a
// hostile or malformed ID from aliasing another record's key or smuggling a
// separator into a prefix scan.
package validation

import (
	"fmt"
	"regexp"
)

// idPattern matches storage-safe identifiers.
// Allows: letters, digits, dots, underscores, hyphens.
// Covers chat-platform snowflakes (digits) and device UUIDs (hex + hyphens).
// Max length: 64 characters.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// ValidateID validates one identifier before it is used in a storage key.
//
// Valid identifiers:
//   - 1-64 characters
//   - letters, digits, dots, underscores, hyphens
//   - must start with a letter or digit
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateID(guild); err != nil {
//	    return fmt.Errorf("invalid guild: %w", err)
//	}
//	// Safe to embed in a storage key
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier: %q (must be 1-64 letters, digits, dots, underscores, or hyphens)", id)
	}

	return nil
}

// ValidateIDs validates multiple identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// Valid reports whether the identifier passes ValidateID. Convenience form
// for binding rules that only need a boolean.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}
