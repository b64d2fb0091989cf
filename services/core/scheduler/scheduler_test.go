// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltcord/voltcord/services/core/audit"
	"github.com/voltcord/voltcord/services/core/credential"
	"github.com/voltcord/voltcord/services/core/device"
	"github.com/voltcord/voltcord/services/core/dispatch"
	"github.com/voltcord/voltcord/services/core/domain"
	"github.com/voltcord/voltcord/services/core/pipeline"
	"github.com/voltcord/voltcord/services/core/store"
)

type testHarness struct {
	store     *store.Store
	sink      *audit.Sink
	scheduler *Scheduler
	calls     *atomic.Int64

	// delay stalls the fake device server, in nanoseconds.
	delay *atomic.Int64
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	db, err := store.OpenDB(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)

	var calls, delay atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if d := time.Duration(delay.Load()); d > 0 {
			time.Sleep(d)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	identity, err := credential.GenerateIdentity()
	require.NoError(t, err)
	creds, err := credential.New(st, identity)
	require.NoError(t, err)

	client, err := device.NewClient(device.Config{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
		RatePerSecond:  1000,
		Burst:          100,
		MaxInFlight:    4,
	}, nil, nil)
	require.NoError(t, err)

	sink := audit.NewSink(db, nil)
	pl := pipeline.New(st, nil, nil)
	dispatcher := dispatch.New(st, pl, creds, client, sink, nil, nil)

	sched, err := New(Config{TickInterval: time.Hour, MaxBatch: 10}, st, dispatcher, sink, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.CreatePrincipal(ctx, domain.Principal{
		ExternalID: "alice", Guild: "g1", DeviceWorn: true,
	}))
	require.NoError(t, st.PutShocker(ctx, domain.Shocker{
		ID: "sh-1", Owner: "alice", Guild: "g1",
	}))
	require.NoError(t, creds.Put(ctx, "g1", "alice", []byte("test-token")))

	return &testHarness{store: st, sink: sink, scheduler: sched, calls: &calls, delay: &delay}
}

func reminderParams() domain.ActionParams {
	return domain.ActionParams{Type: domain.ActionVibrate, Intensity: 10, DurationMs: 500}
}

// TestRunNowFiresDueReminder verifies a due reminder dispatches once and a
// reminder-sourced audit entry appears.
func TestRunNowFiresDueReminder(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, h.store.CreateReminder(ctx, domain.Reminder{
		ID: "r1", Guild: "g1", Owner: "alice", Target: "alice",
		Params:   reminderParams(),
		Rule:     domain.RecurrenceRule{Kind: domain.RuleFixedInterval, IntervalSeconds: 600},
		NextFire: now.Add(-time.Minute),
		Enabled:  true,
	}))

	h.scheduler.RunNow(ctx)
	assert.Equal(t, int64(1), h.calls.Load())

	entries, err := h.sink.List(ctx, "g1", audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SourceReminder, entries[0].Source)
	assert.Equal(t, domain.OutcomeSuccess, entries[0].Outcome)

	// A second pass finds nothing due; the reminder was rescheduled.
	h.scheduler.RunNow(ctx)
	assert.Equal(t, int64(1), h.calls.Load())
}

// TestRunNowReschedulesRecurring verifies the next fire lands one interval
// after the actual fire instant.
func TestRunNowReschedulesRecurring(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	fixed := time.Date(2025, 6, 11, 10, 0, 0, 0, time.UTC)
	h.scheduler.now = func() time.Time { return fixed }

	require.NoError(t, h.store.CreateReminder(ctx, domain.Reminder{
		ID: "r1", Guild: "g1", Owner: "alice", Target: "alice",
		Params:   reminderParams(),
		Rule:     domain.RecurrenceRule{Kind: domain.RuleFixedInterval, IntervalSeconds: 600},
		NextFire: fixed.Add(-time.Hour),
		Enabled:  true,
	}))

	h.scheduler.RunNow(ctx)

	r, err := h.store.GetReminder(ctx, "g1", "r1")
	require.NoError(t, err)
	assert.True(t, r.Enabled)
	assert.False(t, r.InFlight)
	assert.Equal(t, fixed.Add(10*time.Minute), r.NextFire)
}

// TestRunNowDisablesOneShot verifies a fired one-shot stays stored but
// disabled.
func TestRunNowDisablesOneShot(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, h.store.CreateReminder(ctx, domain.Reminder{
		ID: "r1", Guild: "g1", Owner: "alice", Target: "alice",
		Params:   reminderParams(),
		Rule:     domain.RecurrenceRule{Kind: domain.RuleOneShot, At: now.Add(-time.Minute)},
		NextFire: now.Add(-time.Minute),
		Enabled:  true,
	}))

	h.scheduler.RunNow(ctx)
	assert.Equal(t, int64(1), h.calls.Load())

	r, err := h.store.GetReminder(ctx, "g1", "r1")
	require.NoError(t, err)
	assert.False(t, r.Enabled)
}

// TestRunNowSkipsClaimed verifies a reminder already claimed by another
// worker is left alone.
func TestRunNowSkipsClaimed(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, h.store.CreateReminder(ctx, domain.Reminder{
		ID: "r1", Guild: "g1", Owner: "alice", Target: "alice",
		Params:   reminderParams(),
		Rule:     domain.RecurrenceRule{Kind: domain.RuleFixedInterval, IntervalSeconds: 600},
		NextFire: now.Add(-time.Minute),
		Enabled:  true,
	}))
	_, err := h.store.ClaimReminder(ctx, "g1", "r1", now)
	require.NoError(t, err)

	h.scheduler.RunNow(ctx)
	assert.Zero(t, h.calls.Load())
}

// TestRunNowAdvancesAfterRejection verifies a reminder whose consent lapsed
// still advances instead of retrying the same instant.
func TestRunNowAdvancesAfterRejection(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Owner bob never got a grant from alice.
	require.NoError(t, h.store.CreateReminder(ctx, domain.Reminder{
		ID: "r1", Guild: "g1", Owner: "bob", Target: "alice",
		Params:   reminderParams(),
		Rule:     domain.RecurrenceRule{Kind: domain.RuleFixedInterval, IntervalSeconds: 600},
		NextFire: now.Add(-time.Minute),
		Enabled:  true,
	}))

	h.scheduler.RunNow(ctx)
	assert.Zero(t, h.calls.Load(), "rejected dispatch must not reach the device")

	r, err := h.store.GetReminder(ctx, "g1", "r1")
	require.NoError(t, err)
	assert.True(t, r.NextFire.After(now), "reminder must advance past the failed fire")
}

// TestStartStop verifies the tick loop shuts down cleanly.
func TestStartStop(t *testing.T) {
	h := newTestHarness(t)
	h.scheduler.Start()
	h.scheduler.Stop()
}

// TestNewValidation verifies constructor argument checks.
func TestNewValidation(t *testing.T) {
	_, err := New(Config{TickInterval: 0, MaxBatch: 1}, nil, nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{TickInterval: time.Second, MaxBatch: 0}, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

// TestRunNowSlowDispatchStillFinishes verifies a pass whose context dies
// mid-dispatch still audits the attempt and releases the claim, so the
// reminder neither wedges nor refires.
func TestRunNowSlowDispatchStillFinishes(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, h.store.CreateReminder(ctx, domain.Reminder{
		ID: "r1", Guild: "g1", Owner: "alice", Target: "alice",
		Params:   reminderParams(),
		Rule:     domain.RecurrenceRule{Kind: domain.RuleFixedInterval, IntervalSeconds: 600},
		NextFire: now.Add(-time.Minute),
		Enabled:  true,
	}))

	h.delay.Store(int64(500 * time.Millisecond))
	passCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	h.scheduler.RunNow(passCtx)

	assert.Equal(t, int64(1), h.calls.Load())

	entries, err := h.sink.List(ctx, "g1", audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "failed:downstream_timeout", entries[0].Outcome)

	r, err := h.store.GetReminder(ctx, "g1", "r1")
	require.NoError(t, err)
	assert.False(t, r.InFlight)
	assert.True(t, r.NextFire.After(now), "reschedule must land after the fire")
}
