// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline implements the authorization and validation pipeline every
// action attempt passes through, whatever its source.
//
// The checks run in a fixed order and stop at the first failure:
//
//  1. Target registration
//  2. Device-worn gate
//  3. Consent (direct user grant, role grant, or self-action)
//  4. Shocker resolution (explicit ID or unambiguous auto-selection)
//  5. Default filling (manual requests only)
//  6. Parameter bounds
//
// Authorize has no side effects. It writes nothing, so a rejected request
// leaves no record and a crashed caller can safely retry. Audit entries are
// the dispatcher's job, and only for approved actions.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/voltcord/voltcord/pkg/logging"
	"github.com/voltcord/voltcord/services/core/domain"
	"github.com/voltcord/voltcord/services/core/observability"
	"github.com/voltcord/voltcord/services/core/store"
)

// Request is one action attempt entering the pipeline.
type Request struct {
	Guild string

	// Requester is the acting identity. Not required to be a registered
	// principal; controllers do not wear devices.
	Requester string

	// RequesterRoles is the requester's current role membership, resolved
	// by the caller at request time. Role grants are checked against this
	// list only; the core stores no membership state. Background sources
	// pass nil: a stored reminder or trigger already encodes its owner's
	// consent chain and is re-checked as that owner.
	RequesterRoles []string

	// Target is the principal the action is aimed at.
	Target string

	Source domain.Source

	// Params may be partial for manual requests. Reminder and trigger
	// sources always arrive fully specified via domain.Explicit.
	Params domain.RequestParams
}

// Pipeline validates and authorizes action requests.
//
// Thread Safety: Safe for concurrent use.
type Pipeline struct {
	store   *store.Store
	metrics *observability.Metrics
	logger  *logging.Logger
}

// New creates a pipeline. Metrics and logger may be nil.
func New(st *store.Store, metrics *observability.Metrics, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Default()
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	return &Pipeline{store: st, metrics: metrics, logger: logger}
}

// Authorize runs the full check sequence and returns the approved action or
// the first rejection. The error is always a *domain.Rejection when the
// request is refused on its merits; other errors indicate storage failures.
func (p *Pipeline) Authorize(ctx context.Context, req Request) (domain.ApprovedAction, error) {
	action, err := p.authorize(ctx, req)
	if err != nil {
		if rej, ok := domain.AsRejection(err); ok {
			p.metrics.ActionsTotal.WithLabelValues(string(req.Source), "rejected").Inc()
			p.metrics.RejectionsTotal.WithLabelValues(string(req.Source), string(rej.Kind)).Inc()
			p.logger.Debug("action rejected",
				"guild", req.Guild,
				"requester", req.Requester,
				"target", req.Target,
				"source", string(req.Source),
				"kind", string(rej.Kind))
		}
		return domain.ApprovedAction{}, err
	}

	p.metrics.ActionsTotal.WithLabelValues(string(req.Source), "approved").Inc()
	return action, nil
}

func (p *Pipeline) authorize(ctx context.Context, req Request) (domain.ApprovedAction, error) {
	if req.Guild == "" || req.Requester == "" || req.Target == "" {
		return domain.ApprovedAction{}, errors.New("guild, requester, and target are required")
	}

	// 1. Target registration.
	target, err := p.store.GetPrincipal(ctx, req.Guild, req.Target)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ApprovedAction{}, domain.NewRejection(domain.RejectNotRegistered,
				"target is not registered in this guild")
		}
		return domain.ApprovedAction{}, fmt.Errorf("load target: %w", err)
	}

	// 2. Device-worn gate. Checked before consent so a disabled device
	// reveals nothing about grant state.
	if !target.DeviceWorn {
		return domain.ApprovedAction{}, domain.NewRejection(domain.RejectDeviceNotWorn,
			"target's device is not marked as worn")
	}

	// 3. Consent.
	allowed, err := p.store.Authorized(ctx, req.Guild, req.Requester, req.Target, req.RequesterRoles)
	if err != nil {
		return domain.ApprovedAction{}, fmt.Errorf("check authorization: %w", err)
	}
	if !allowed {
		return domain.ApprovedAction{}, domain.NewRejection(domain.RejectPermissionDenied,
			"target has not granted you control")
	}

	// 4. Shocker resolution.
	shocker, err := p.resolveShocker(ctx, req)
	if err != nil {
		return domain.ApprovedAction{}, err
	}

	// 5. Defaults. Only manual requests may arrive partial; filling from
	// a background source's stored params would mask a data bug, so those
	// must already be complete.
	var params domain.ActionParams
	if req.Source == domain.SourceManual {
		params, err = p.store.ResolveDefaults(ctx, req.Guild, req.Requester, req.Target, req.Params)
		if err != nil {
			return domain.ApprovedAction{}, fmt.Errorf("resolve defaults: %w", err)
		}
	} else {
		params, err = requireComplete(req.Params)
		if err != nil {
			return domain.ApprovedAction{}, err
		}
	}
	params.ShockerID = shocker.ID

	// 6. Bounds.
	if err := params.Validate(); err != nil {
		return domain.ApprovedAction{}, err
	}

	return domain.ApprovedAction{
		Requester: req.Requester,
		Target:    req.Target,
		Guild:     req.Guild,
		Shocker:   shocker,
		Params:    params,
		Source:    req.Source,
	}, nil
}

// resolveShocker picks the device for the request. An explicit ID must exist
// under the target. Auto-selection never guesses: it succeeds only when the
// target owns exactly one shocker.
func (p *Pipeline) resolveShocker(ctx context.Context, req Request) (domain.Shocker, error) {
	if req.Params.ShockerID != "" {
		shocker, err := p.store.GetShocker(ctx, req.Guild, req.Target, req.Params.ShockerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Shocker{}, domain.NewRejection(domain.RejectShockerNotFound,
					fmt.Sprintf("target has no shocker %q", req.Params.ShockerID))
			}
			return domain.Shocker{}, fmt.Errorf("load shocker: %w", err)
		}
		return shocker, nil
	}

	shockers, err := p.store.ListShockers(ctx, req.Guild, req.Target)
	if err != nil {
		return domain.Shocker{}, fmt.Errorf("list shockers: %w", err)
	}
	switch len(shockers) {
	case 0:
		return domain.Shocker{}, domain.NewRejection(domain.RejectNoShocker,
			"target has no registered shockers")
	case 1:
		return shockers[0], nil
	default:
		return domain.Shocker{}, domain.NewRejection(domain.RejectAmbiguousSelection,
			fmt.Sprintf("target has %d shockers; specify one", len(shockers)))
	}
}

// requireComplete unwraps params that must already be fully specified.
func requireComplete(req domain.RequestParams) (domain.ActionParams, error) {
	if req.Type == nil || req.Intensity == nil || req.DurationMs == nil {
		return domain.ActionParams{}, domain.NewRejection(domain.RejectInvalidParameter,
			"stored action parameters are incomplete")
	}
	return domain.ActionParams{
		ShockerID:  req.ShockerID,
		Type:       *req.Type,
		Intensity:  *req.Intensity,
		DurationMs: *req.DurationMs,
	}, nil
}
