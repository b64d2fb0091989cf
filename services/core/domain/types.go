// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package domain defines the entity types shared by the voltcord core:
// principals, shockers, controller grants, preferences, reminders, triggers,
// and audit entries, together with the action parameter model and the
// rejection taxonomy every component reports through.
//
// All types are plain data. Behavior lives in the store, pipeline, scheduler,
// and matcher packages; keeping the domain passive means every component can
// exchange these values without import cycles.
package domain

import (
	"time"
)

// =============================================================================
// Sources
// =============================================================================

// Source identifies which path initiated an action attempt.
type Source string

const (
	// SourceManual is a direct command from the chat-platform collaborator.
	SourceManual Source = "manual"

	// SourceReminder is an unattended fire from the reminder scheduler.
	SourceReminder Source = "reminder"

	// SourceTrigger is an automatic fire from the trigger matcher.
	SourceTrigger Source = "trigger"
)

// =============================================================================
// Action Types
// =============================================================================

// ActionType is the kind of control command sent to the device API.
type ActionType string

const (
	ActionShock   ActionType = "Shock"
	ActionVibrate ActionType = "Vibrate"
	ActionSound   ActionType = "Sound"
)

// ValidActionType reports whether t is one of the supported action kinds.
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionShock, ActionVibrate, ActionSound:
		return true
	}
	return false
}

// =============================================================================
// Principals and Shockers
// =============================================================================

// Principal is a registered device-wearing identity scoped to one guild.
//
// The encrypted API token is NOT stored here. It lives in the credential
// store under a separate keyspace so that entity queries can never leak
// token material, even accidentally through logging of a whole struct.
type Principal struct {
	// ExternalID is the chat-platform identity (already authenticated by
	// the collaborator, opaque to the core).
	ExternalID string `json:"externalId"`

	// Guild scopes the registration. The same external identity may be
	// registered independently in several guilds.
	Guild string `json:"guild"`

	// DisplayName is informational only.
	DisplayName string `json:"displayName,omitempty"`

	// DeviceWorn gates every action targeting this principal. Defaults to
	// true at registration.
	DeviceWorn bool `json:"deviceWorn"`

	// APIBaseURL optionally overrides the device API server for this
	// principal (self-hosted instances). Empty means the configured default.
	APIBaseURL string `json:"apiBaseUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Shocker is a controllable device reference owned by exactly one principal.
type Shocker struct {
	// ID is the device API's shocker identifier.
	ID string `json:"id"`

	Name string `json:"name,omitempty"`

	// Owner is the ExternalID of the owning principal.
	Owner string `json:"owner"`

	Guild string `json:"guild"`

	CreatedAt time.Time `json:"createdAt"`
}

// =============================================================================
// Controller Grants
// =============================================================================

// GranteeKind distinguishes user grants from role grants.
type GranteeKind string

const (
	GranteeUser GranteeKind = "user"
	GranteeRole GranteeKind = "role"
)

// ControllerGrant records explicit consent: the grantor principal allows the
// grantee (a user or a role) to act on them inside one guild.
//
// Grants are directional and non-transitive. A grant authorizes only the
// (grantor, grantee, guild) triple it encodes. Duplicate grants collapse to
// one because the grant's identity is exactly that triple.
type ControllerGrant struct {
	Guild string `json:"guild"`

	// Grantor is the ExternalID of the principal granting control over
	// themselves.
	Grantor string `json:"grantor"`

	Kind GranteeKind `json:"kind"`

	// Grantee is a user ExternalID when Kind is GranteeUser, or a
	// platform role ID when Kind is GranteeRole.
	Grantee string `json:"grantee"`

	GrantedAt time.Time `json:"grantedAt"`
}

// =============================================================================
// Preferences
// =============================================================================

// Preference stores a controller's configured defaults and separately tracked
// last-used values. Target is empty for the controller's global default; a
// populated Target overrides the global default for that specific pair.
//
// Last-used values are only ever updated after a successful downstream call,
// never during validation.
type Preference struct {
	Guild string `json:"guild"`

	// Principal is the controller these preferences belong to.
	Principal string `json:"principal"`

	// Target is the specific target principal, or empty for the global
	// default.
	Target string `json:"target,omitempty"`

	DefaultIntensity int        `json:"defaultIntensity,omitempty"`
	DefaultDuration  int        `json:"defaultDuration,omitempty"`
	DefaultType      ActionType `json:"defaultType,omitempty"`

	// Last-used values. Zero values mean "never used".
	LastIntensity int        `json:"lastIntensity,omitempty"`
	LastDuration  int        `json:"lastDuration,omitempty"`
	LastType      ActionType `json:"lastType,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// =============================================================================
// Reminders
// =============================================================================

// Reminder is a scheduled one-shot or recurring action. Params are captured
// fully specified at creation time; the pipeline never fills defaults for
// reminder-sourced requests.
type Reminder struct {
	ID    string `json:"id"`
	Guild string `json:"guild"`

	// Owner created the reminder and is the requester at fire time.
	Owner string `json:"owner"`

	// Target is the principal the action fires against.
	Target string `json:"target"`

	Params ActionParams   `json:"params"`
	Rule   RecurrenceRule `json:"rule"`

	// NextFire is the next nominal fire instant. Recomputed after every
	// fire; for an enabled reminder it is always at or after the
	// scheduler's last tick.
	NextFire time.Time `json:"nextFire"`

	Enabled bool `json:"enabled"`

	// InFlight is the dispatch claim marker. Set under a conditional
	// update before execution so overlapping ticks cannot double-fire.
	InFlight bool `json:"inFlight"`

	// Reason is free text shown to the target when the reminder fires.
	Reason string `json:"reason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// =============================================================================
// Triggers
// =============================================================================

// Trigger fires a stored action when a message from its owner matches the
// pattern. Cooldowns suppress re-fires; a suppressed match is silent, not an
// error.
type Trigger struct {
	ID    string `json:"id"`
	Guild string `json:"guild"`

	// Owner is the message author whose text is matched, and the requester
	// at fire time.
	Owner string `json:"owner"`

	// Target is the principal the action fires against.
	Target string `json:"target"`

	Name string `json:"name,omitempty"`

	// Pattern is the regular expression source. Validated and compiled at
	// creation; matching is case-insensitive.
	Pattern string `json:"pattern"`

	Params ActionParams `json:"params"`

	// CooldownSeconds is the minimum gap between fires. The trigger cannot
	// fire again until now minus LastFiredAt reaches this value.
	CooldownSeconds int `json:"cooldownSeconds"`

	// LastFiredAt is zero when the trigger has never fired. Updated on
	// every fire attempt regardless of downstream success.
	LastFiredAt time.Time `json:"lastFiredAt,omitempty"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt"`
}

// Ready reports whether the trigger's cooldown has elapsed at the given
// instant. A trigger that has never fired is always ready.
func (t *Trigger) Ready(now time.Time) bool {
	if t.LastFiredAt.IsZero() {
		return true
	}
	return !now.Before(t.LastFiredAt.Add(time.Duration(t.CooldownSeconds) * time.Second))
}

// =============================================================================
// Audit Entries
// =============================================================================

// Audit outcome values. Failed outcomes carry the rejection kind as a suffix,
// for example "failed:downstream_error".
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// AuditEntry is the immutable record of one approved action attempt and its
// downstream outcome. Entries are written after the pipeline approves a
// request; validation rejections are surfaced to the caller, not audited.
type AuditEntry struct {
	ID        string    `json:"id"`
	Guild     string    `json:"guild"`
	Timestamp time.Time `json:"timestamp"`

	Actor  string `json:"actor"`
	Target string `json:"target"`

	Params ActionParams `json:"params"`
	Source Source       `json:"source"`

	// Outcome is OutcomeSuccess or "failed:<rejection kind>".
	Outcome string `json:"outcome"`

	// Detail carries a short operator-facing description for failures.
	// Never contains token material.
	Detail string `json:"detail,omitempty"`
}
