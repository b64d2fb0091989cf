// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package domain

// =============================================================================
// Parameter Bounds
// =============================================================================

// Parameter bounds enforced by the validation pipeline. Durations are in
// milliseconds and mirror the device API's accepted range.
const (
	MinIntensity = 1
	MaxIntensity = 100

	MinDurationMs = 300
	MaxDurationMs = 65535
)

// Minimal safe defaults applied as the last fallback when a manual request
// omits a parameter and no preference or last-used value exists.
const (
	SafeDefaultIntensity  = MinIntensity
	SafeDefaultDurationMs = MinDurationMs
)

// SafeDefaultType is the gentlest action kind.
const SafeDefaultType = ActionVibrate

// =============================================================================
// Action Parameters
// =============================================================================

// ActionParams is a fully-resolved set of action parameters, as stored on
// reminders and triggers and as carried by approved actions and audit
// entries. Every field is concrete; optionality exists only on RequestParams.
type ActionParams struct {
	// ShockerID identifies the target's device. Resolved by the pipeline
	// when the request leaves it blank.
	ShockerID string `json:"shockerId"`

	Type       ActionType `json:"type"`
	Intensity  int        `json:"intensity"`
	DurationMs int        `json:"durationMs"`
}

// Validate checks the resolved parameters against the pipeline bounds.
// It returns a Rejection with kind RejectInvalidParameter naming the
// offending field, or nil.
func (p ActionParams) Validate() error {
	if !ValidActionType(p.Type) {
		return NewFieldRejection(RejectInvalidParameter, "type",
			"type must be one of Shock, Vibrate, Sound")
	}
	if p.Intensity < MinIntensity || p.Intensity > MaxIntensity {
		return NewFieldRejection(RejectInvalidParameter, "intensity",
			"intensity must be between 1 and 100")
	}
	if p.DurationMs < MinDurationMs || p.DurationMs > MaxDurationMs {
		return NewFieldRejection(RejectInvalidParameter, "duration",
			"duration must be between 300 and 65535 milliseconds")
	}
	return nil
}

// RequestParams is the raw, possibly partial parameter set carried by a
// manual request. Nil pointers mean "not specified"; the pipeline fills them
// from preferences before approval. Reminder and trigger sources never use
// this partial form: their params are captured complete at creation time.
type RequestParams struct {
	// ShockerID is optional. Empty requests auto-selection, which succeeds
	// only when the target owns exactly one shocker.
	ShockerID string `json:"shockerId,omitempty"`

	Type       *ActionType `json:"type,omitempty"`
	Intensity  *int        `json:"intensity,omitempty"`
	DurationMs *int        `json:"durationMs,omitempty"`
}

// Explicit wraps complete params as a RequestParams. Used by the scheduler
// and matcher so all three sources funnel through one pipeline entry point.
func Explicit(p ActionParams) RequestParams {
	typ := p.Type
	intensity := p.Intensity
	duration := p.DurationMs
	return RequestParams{
		ShockerID:  p.ShockerID,
		Type:       &typ,
		Intensity:  &intensity,
		DurationMs: &duration,
	}
}

// ApprovedAction is the pipeline's successful output: a fully-resolved,
// authorized action ready for the device client. Producing it has no side
// effects, so validation is safely retryable.
type ApprovedAction struct {
	Requester string `json:"requester"`
	Target    string `json:"target"`
	Guild     string `json:"guild"`

	// Shocker is the resolved device reference, owned by Target.
	Shocker Shocker `json:"shocker"`

	Params ActionParams `json:"params"`
	Source Source       `json:"source"`
}
