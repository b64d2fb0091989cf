// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dispatch executes approved actions end to end: pipeline
// authorization, credential retrieval, the device API call, the audit write,
// and the last-used preference update.
//
// The audit boundary lives here. A request the pipeline rejects produces no
// audit entry; once approved, exactly one entry is written whatever the
// device call does.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voltcord/voltcord/pkg/logging"
	"github.com/voltcord/voltcord/services/core/audit"
	"github.com/voltcord/voltcord/services/core/credential"
	"github.com/voltcord/voltcord/services/core/device"
	"github.com/voltcord/voltcord/services/core/domain"
	"github.com/voltcord/voltcord/services/core/observability"
	"github.com/voltcord/voltcord/services/core/pipeline"
	"github.com/voltcord/voltcord/services/core/store"
)

// Dispatcher runs the full action path for all three sources.
//
// Thread Safety: Safe for concurrent use.
type Dispatcher struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
	creds    *credential.Store
	client   *device.Client
	sink     *audit.Sink
	metrics  *observability.Metrics
	logger   *logging.Logger
}

// New creates a dispatcher. Metrics and logger may be nil.
func New(st *store.Store, pl *pipeline.Pipeline, creds *credential.Store, client *device.Client, sink *audit.Sink, metrics *observability.Metrics, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	return &Dispatcher{
		store:    st,
		pipeline: pl,
		creds:    creds,
		client:   client,
		sink:     sink,
		metrics:  metrics,
		logger:   logger,
	}
}

// Dispatch authorizes and executes one action attempt. The display name is
// shown by the device app as the command origin.
//
// A pipeline rejection comes back unaudited; the caller reports the rejection
// reason to the requester. After approval the outcome is audited and any
// device failure comes back as the underlying rejection error.
func (d *Dispatcher) Dispatch(ctx context.Context, req pipeline.Request, displayName string) error {
	action, err := d.pipeline.Authorize(ctx, req)
	if err != nil {
		return err
	}
	return d.execute(ctx, action, displayName)
}

// bookkeepTimeout bounds the post-send audit and preference writes. Those
// writes run detached from the caller's context: once the device call has
// been attempted the outcome is decided, and a caller deadline that expired
// mid-call must not lose the record.
const bookkeepTimeout = 5 * time.Second

// execute runs the device call for an already-approved action and records
// the audit entry.
func (d *Dispatcher) execute(ctx context.Context, action domain.ApprovedAction, displayName string) error {
	sendErr := d.send(ctx, action, displayName)

	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepTimeout)
	defer cancel()

	entry := domain.AuditEntry{
		Guild:     action.Guild,
		Timestamp: time.Now().UTC(),
		Actor:     action.Requester,
		Target:    action.Target,
		Params:    action.Params,
		Source:    action.Source,
	}
	if sendErr == nil {
		entry.Outcome = domain.OutcomeSuccess
	} else {
		kind := domain.RejectDownstreamError
		detail := sendErr.Error()
		if rej, ok := domain.AsRejection(sendErr); ok {
			kind = rej.Kind
			detail = rej.Reason
		}
		entry.Outcome = fmt.Sprintf("%s:%s", domain.OutcomeFailed, kind)
		entry.Detail = detail
	}

	if err := d.sink.Record(bookCtx, entry); err != nil {
		// The action already happened; losing the audit write is worth a
		// loud log line, not a failure returned to the requester.
		d.logger.Error("audit write failed",
			"guild", action.Guild,
			"actor", action.Requester,
			"target", action.Target,
			"error", err.Error())
	}
	if sendErr == nil {
		d.metrics.AuditEntriesTotal.WithLabelValues("success").Inc()
	} else {
		d.metrics.AuditEntriesTotal.WithLabelValues("failed").Inc()
	}

	if sendErr == nil && action.Source == domain.SourceManual {
		if err := d.store.RecordLastUsed(bookCtx, action.Guild, action.Requester, action.Target, action.Params); err != nil {
			d.logger.Warn("last-used update failed",
				"guild", action.Guild,
				"principal", action.Requester,
				"error", err.Error())
		}
	}

	return sendErr
}

// send performs the device API call with the target's decrypted token.
func (d *Dispatcher) send(ctx context.Context, action domain.ApprovedAction, displayName string) error {
	target, err := d.store.GetPrincipal(ctx, action.Guild, action.Target)
	if err != nil {
		return fmt.Errorf("load target: %w", err)
	}

	token, err := d.creds.Open(ctx, action.Guild, action.Target)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NewRejection(domain.RejectDownstreamError,
				"target has no stored device token")
		}
		return fmt.Errorf("open credential: %w", err)
	}
	defer token.Destroy()

	return d.client.Send(ctx, device.Command{
		BaseURL: target.APIBaseURL,
		Token:   token,
		Params:  action.Params,
		Name:    displayName,
	})
}
