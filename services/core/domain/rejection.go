// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Rejection Taxonomy
// =============================================================================

// RejectionKind is a stable, machine-readable error kind surfaced to callers.
// The chat-platform collaborator renders these; the core never bubbles raw
// faults out of the validation pipeline.
type RejectionKind string

const (
	// RejectNotRegistered means the target is not a registered principal
	// in the requested guild.
	RejectNotRegistered RejectionKind = "not_registered"

	// RejectDeviceNotWorn means the target's device-worn flag is off.
	// Blocks every action regardless of grants or source.
	RejectDeviceNotWorn RejectionKind = "device_not_worn"

	// RejectPermissionDenied means no controller grant covers the
	// (target, requester, guild) triple.
	RejectPermissionDenied RejectionKind = "permission_denied"

	// RejectShockerNotFound means an explicitly named shocker does not
	// belong to the target.
	RejectShockerNotFound RejectionKind = "shocker_not_found"

	// RejectAmbiguousSelection means auto-selection failed because the
	// target owns more than one shocker.
	RejectAmbiguousSelection RejectionKind = "ambiguous_selection"

	// RejectNoShocker means the target owns no shockers at all.
	RejectNoShocker RejectionKind = "no_shocker"

	// RejectInvalidParameter means a parameter is out of range or of the
	// wrong kind. Field names the offender.
	RejectInvalidParameter RejectionKind = "invalid_parameter"

	// RejectRateLimited means the local device-client caps refused the
	// call before it reached the network.
	RejectRateLimited RejectionKind = "rate_limited"

	// RejectDownstreamTimeout means the device API did not answer within
	// the configured deadline, after retries.
	RejectDownstreamTimeout RejectionKind = "downstream_timeout"

	// RejectDownstreamError means the device API answered with a definitive
	// failure, or retries were exhausted on transient ones.
	RejectDownstreamError RejectionKind = "downstream_error"

	// RejectInvalidPattern means a trigger pattern failed to compile or
	// exceeded the size bound. Creation-time only.
	RejectInvalidPattern RejectionKind = "invalid_pattern"

	// RejectSchedulingFailure means a reminder could not be scheduled or
	// rescheduled.
	RejectSchedulingFailure RejectionKind = "scheduling_failure"
)

// Rejection is the typed error every core component reports. It wraps a
// stable kind, optionally the offending field, and an operator-facing reason
// that never includes token material.
type Rejection struct {
	Kind   RejectionKind
	Field  string
	Reason string

	// Err is the underlying cause, if any. Preserved for errors.Is/As.
	Err error
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	switch {
	case r.Field != "" && r.Reason != "":
		return fmt.Sprintf("%s (%s): %s", r.Kind, r.Field, r.Reason)
	case r.Reason != "":
		return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
	default:
		return string(r.Kind)
	}
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (r *Rejection) Unwrap() error {
	return r.Err
}

// NewRejection builds a rejection of the given kind.
func NewRejection(kind RejectionKind, reason string) *Rejection {
	return &Rejection{Kind: kind, Reason: reason}
}

// NewFieldRejection builds a rejection naming the offending field.
func NewFieldRejection(kind RejectionKind, field, reason string) *Rejection {
	return &Rejection{Kind: kind, Field: field, Reason: reason}
}

// WrapRejection builds a rejection around an underlying cause.
func WrapRejection(kind RejectionKind, reason string, err error) *Rejection {
	return &Rejection{Kind: kind, Reason: reason, Err: err}
}

// AsRejection extracts a *Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// RejectionIs reports whether err carries the given rejection kind.
func RejectionIs(err error, kind RejectionKind) bool {
	r, ok := AsRejection(err)
	return ok && r.Kind == kind
}
