// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scheduler drives reminder execution and store housekeeping.
//
// A single goroutine ticks at a fixed interval, claims due reminders, and
// dispatches each one through the same pipeline as manual requests, with the
// reminder's owner as requester. The claim is a conditional store update, so
// overlapping ticks (or a second process on the same store) can never
// double-fire a reminder.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/voltcord/voltcord/pkg/logging"
	"github.com/voltcord/voltcord/services/core/audit"
	"github.com/voltcord/voltcord/services/core/dispatch"
	"github.com/voltcord/voltcord/services/core/domain"
	"github.com/voltcord/voltcord/services/core/observability"
	"github.com/voltcord/voltcord/services/core/pipeline"
	"github.com/voltcord/voltcord/services/core/store"
)

// staleClaimGrace is how long a claim may outlive its nominal fire before
// housekeeping assumes the claimant crashed and releases it.
const staleClaimGrace = 5 * time.Minute

// defaultDispatchTimeout bounds a single reminder dispatch when the config
// leaves DispatchTimeout unset.
const defaultDispatchTimeout = 30 * time.Second

// finishTimeout bounds the post-dispatch claim release and reschedule.
const finishTimeout = 5 * time.Second

// Config configures the Scheduler.
type Config struct {
	// TickInterval is how often due reminders are scanned.
	TickInterval time.Duration

	// MaxBatch caps reminders dispatched per tick; the rest wait for the
	// next tick.
	MaxBatch int

	// DispatchTimeout bounds a single reminder dispatch. It is independent
	// of TickInterval: a slow device call runs to its own deadline rather
	// than being cut off when the next tick is due. Zero means
	// defaultDispatchTimeout.
	DispatchTimeout time.Duration

	// AuditRetention is how long audit entries are kept. Zero disables
	// pruning.
	AuditRetention time.Duration

	// AuditPruneInterval is how often expired audit entries are removed.
	AuditPruneInterval time.Duration
}

// Scheduler fires due reminders and prunes expired audit entries.
//
// Thread Safety: Start and Stop are safe to call once each from any
// goroutine. RunNow is safe to call concurrently with the ticker.
type Scheduler struct {
	cfg        Config
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	sink       *audit.Sink
	metrics    *observability.Metrics
	logger     *logging.Logger

	// now is swappable for tests.
	now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a scheduler. Metrics and logger may be nil.
func New(cfg Config, st *store.Store, dispatcher *dispatch.Dispatcher, sink *audit.Sink, metrics *observability.Metrics, logger *logging.Logger) (*Scheduler, error) {
	if cfg.TickInterval <= 0 {
		return nil, errors.New("tick interval must be positive")
	}
	if cfg.MaxBatch <= 0 {
		return nil, errors.New("max batch must be positive")
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = defaultDispatchTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	return &Scheduler{
		cfg:        cfg,
		store:      st,
		dispatcher: dispatcher,
		sink:       sink,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start launches the tick loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop halts the tick loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var lastPrune time.Time

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			// The pass is not bounded by the tick period. Each dispatch
			// carries its own deadline, and a batch that overruns simply
			// delays the next scan.
			s.RunNow(context.Background())

			if s.cfg.AuditRetention > 0 && s.now().Sub(lastPrune) >= s.cfg.AuditPruneInterval {
				pruneCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				s.prune(pruneCtx)
				cancel()
				lastPrune = s.now()
			}
		}
	}
}

// RunNow executes one scheduling pass: release stale claims, then claim and
// dispatch due reminders up to the batch cap. Exported so tests and operators
// can step the scheduler without waiting for a tick.
func (s *Scheduler) RunNow(ctx context.Context) {
	now := s.now()

	released, err := s.store.ReleaseStaleClaims(ctx, now, staleClaimGrace)
	if err != nil {
		s.logger.Error("stale claim release failed", "error", err.Error())
	} else if released > 0 {
		s.logger.Warn("released stale reminder claims", "count", released)
	}

	due, err := s.store.DueReminders(ctx, now, s.cfg.MaxBatch)
	if err != nil {
		s.logger.Error("due reminder scan failed", "error", err.Error())
		return
	}

	for _, r := range due {
		s.fire(ctx, r, now)
	}
}

// fire claims and dispatches one reminder.
func (s *Scheduler) fire(ctx context.Context, r domain.Reminder, now time.Time) {
	claimed, err := s.store.ClaimReminder(ctx, r.Guild, r.ID, now)
	if err != nil {
		if errors.Is(err, store.ErrClaimed) {
			s.metrics.RemindersFiredTotal.WithLabelValues("claim_lost").Inc()
			return
		}
		s.logger.Error("reminder claim failed",
			"guild", r.Guild, "reminder", r.ID, "error", err.Error())
		return
	}

	req := pipeline.Request{
		Guild:     claimed.Guild,
		Requester: claimed.Owner,
		Target:    claimed.Target,
		Source:    domain.SourceReminder,
		Params:    domain.Explicit(claimed.Params),
	}

	name := "Reminder"
	if claimed.Reason != "" {
		name = "Reminder: " + claimed.Reason
	}

	dispatchCtx, cancelDispatch := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancelDispatch()

	if err := s.dispatcher.Dispatch(dispatchCtx, req, name); err != nil {
		// Rejections here mean consent or registration changed since the
		// reminder was created. The reminder still advances; it must not
		// retry the same instant forever.
		s.logger.Warn("reminder dispatch failed",
			"guild", claimed.Guild,
			"reminder", claimed.ID,
			"error", err.Error())
	}
	s.metrics.RemindersFiredTotal.WithLabelValues("dispatched").Inc()

	// The claim must be released even when the caller's context died during
	// the dispatch, or the reminder wedges until stale-claim recovery.
	finishCtx, cancelFinish := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancelFinish()

	if err := s.store.FinishReminder(finishCtx, claimed.Guild, claimed.ID, s.now()); err != nil {
		// Worst case the stale-claim release at a later tick unwedges it.
		rej := domain.WrapRejection(domain.RejectSchedulingFailure, "reminder reschedule failed", err)
		s.logger.Error("reminder finish failed",
			"guild", claimed.Guild, "reminder", claimed.ID, "error", rej.Error())
	}
}

func (s *Scheduler) prune(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.AuditRetention)
	if _, err := s.sink.PruneOlderThan(ctx, cutoff); err != nil {
		s.logger.Error("audit prune failed", "error", err.Error())
	}
}
