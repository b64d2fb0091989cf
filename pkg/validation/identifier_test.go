// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid identifiers
		{"snowflake", "123456789012345678", false},
		{"single char", "a", false},
		{"uuid", "1b6dee2f-27b8-46e2-a351-5d33bb8bfa0f", false},
		{"mixed", "user_42.alt", false},
		{"max length", strings.Repeat("a", 64), false},

		// Invalid identifiers - key layout attacks
		{"empty", "", true},
		{"colon separator", "g1:other", true},
		{"prefix escape", "alice:", true},
		{"slash", "g1/other", true},
		{"newline", "g1\nother", true},
		{"space", "g 1", true},
		{"too long", strings.Repeat("a", 65), true},
		{"starts with dot", ".hidden", true},
		{"starts with hyphen", "-flag", true},
		{"unicode", "g™", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateIDs(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{"all valid", []string{"alice", "bob", "carol"}, false},
		{"one invalid", []string{"alice", "b:b", "carol"}, true},
		{"all invalid", []string{":", ""}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIDs(tt.ids)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIDs(%v) error = %v, wantErr %v", tt.ids, err, tt.wantErr)
			}
		})
	}
}

func TestValid(t *testing.T) {
	if !Valid("alice") {
		t.Error("Valid(alice) = false, want true")
	}
	if Valid("a:b") {
		t.Error("Valid(a:b) = true, want false")
	}
}
