// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the voltcord core.
//
// # Description
//
// Metrics cover the action lifecycle end to end:
//   - Action counters (by source, outcome, rejection kind)
//   - Device API call counters and latency histograms
//   - Rate limiter queue drops
//   - Reminder and trigger fire counters
//   - Audit writes
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "voltcord"

// Metrics holds all Prometheus metrics for the core. Initialize once at
// startup via NewMetrics; pass a private registry in tests to avoid duplicate
// registration panics.
type Metrics struct {
	// ActionsTotal counts action attempts reaching the pipeline.
	// Labels: source (manual, reminder, trigger), outcome (approved, rejected)
	ActionsTotal *prometheus.CounterVec

	// RejectionsTotal counts pipeline rejections by kind.
	// Labels: source, kind (not_registered, device_not_worn, ...)
	RejectionsTotal *prometheus.CounterVec

	// DeviceCallsTotal counts outbound device API calls.
	// Labels: action (Shock, Vibrate, Sound), status (success, error, timeout, rate_limited)
	DeviceCallsTotal *prometheus.CounterVec

	// DeviceCallSeconds measures device API call latency.
	// Labels: action
	DeviceCallSeconds *prometheus.HistogramVec

	// DeviceQueueDrops counts requests dropped because the wait queue was full.
	DeviceQueueDrops prometheus.Counter

	// RemindersFiredTotal counts reminder dispatches.
	// Labels: result (dispatched, claim_lost)
	RemindersFiredTotal *prometheus.CounterVec

	// TriggersFiredTotal counts trigger match outcomes.
	// Labels: result (fired, cooldown, no_match)
	TriggersFiredTotal *prometheus.CounterVec

	// AuditEntriesTotal counts audit sink writes.
	// Labels: outcome (success, failed)
	AuditEntriesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all core metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "actions_total",
				Help:      "Total action attempts by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		RejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rejections_total",
				Help:      "Total pipeline rejections by source and kind",
			},
			[]string{"source", "kind"},
		),

		DeviceCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "device_calls_total",
				Help:      "Total outbound device API calls by action and status",
			},
			[]string{"action", "status"},
		),

		DeviceCallSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "device_call_seconds",
				Help:      "Device API call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"action"},
		),

		DeviceQueueDrops: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "device_queue_drops_total",
				Help:      "Requests dropped because the device client wait queue was full",
			},
		),

		RemindersFiredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "reminders_fired_total",
				Help:      "Reminder dispatch attempts by result",
			},
			[]string{"result"},
		),

		TriggersFiredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "triggers_fired_total",
				Help:      "Trigger evaluation outcomes by result",
			},
			[]string{"result"},
		),

		AuditEntriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "audit_entries_total",
				Help:      "Audit sink writes by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// NewTestMetrics creates metrics on a throwaway registry for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
