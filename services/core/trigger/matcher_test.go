// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package trigger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
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

type matcherHarness struct {
	store   *store.Store
	matcher *Matcher
	calls   *atomic.Int64
}

func newMatcherHarness(t *testing.T) *matcherHarness {
	t.Helper()

	db, err := store.OpenDB(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
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
	matcher := NewMatcher(st, dispatcher, nil, nil)

	ctx := context.Background()
	require.NoError(t, st.CreatePrincipal(ctx, domain.Principal{
		ExternalID: "alice", Guild: "g1", DeviceWorn: true,
	}))
	require.NoError(t, st.PutShocker(ctx, domain.Shocker{
		ID: "sh-1", Owner: "alice", Guild: "g1",
	}))
	require.NoError(t, creds.Put(ctx, "g1", "alice", []byte("test-token")))

	return &matcherHarness{store: st, matcher: matcher, calls: &calls}
}

func (h *matcherHarness) addTrigger(t *testing.T, tr domain.Trigger) {
	t.Helper()
	if tr.Guild == "" {
		tr.Guild = "g1"
	}
	if tr.Owner == "" {
		tr.Owner = "alice"
	}
	if tr.Target == "" {
		tr.Target = "alice"
	}
	if tr.Params == (domain.ActionParams{}) {
		tr.Params = domain.ActionParams{Type: domain.ActionVibrate, Intensity: 10, DurationMs: 500}
	}
	tr.Enabled = true
	require.NoError(t, h.store.CreateTrigger(context.Background(), tr))
}

// TestOnMessageFiresMatch verifies a matching message dispatches and stamps
// the fire time.
func TestOnMessageFiresMatch(t *testing.T) {
	h := newMatcherHarness(t)
	ctx := context.Background()
	h.addTrigger(t, domain.Trigger{ID: "t1", Pattern: `\bouch\b`, CreatedAt: time.Now().UTC()})

	fired, err := h.matcher.OnMessage(ctx, "g1", "alice", "well OUCH that hurt")
	require.NoError(t, err)
	require.NotNil(t, fired)
	assert.Equal(t, "t1", fired.ID)
	assert.Equal(t, int64(1), h.calls.Load())

	stored, err := h.store.GetTrigger(ctx, "g1", "t1")
	require.NoError(t, err)
	assert.False(t, stored.LastFiredAt.IsZero())
}

// TestOnMessageNoMatch verifies an unmatched message fires nothing.
func TestOnMessageNoMatch(t *testing.T) {
	h := newMatcherHarness(t)
	h.addTrigger(t, domain.Trigger{ID: "t1", Pattern: `\bouch\b`, CreatedAt: time.Now().UTC()})

	fired, err := h.matcher.OnMessage(context.Background(), "g1", "alice", "nothing to see")
	require.NoError(t, err)
	assert.Nil(t, fired)
	assert.Zero(t, h.calls.Load())
}

// TestOnMessageCooldownSuppresses verifies a match inside the cooldown window
// is silently dropped and does not cascade to later triggers.
func TestOnMessageCooldownSuppresses(t *testing.T) {
	h := newMatcherHarness(t)
	ctx := context.Background()
	base := time.Now().UTC()
	h.addTrigger(t, domain.Trigger{
		ID: "t1", Pattern: "ouch", CooldownSeconds: 300, CreatedAt: base,
	})
	h.addTrigger(t, domain.Trigger{
		ID: "t2", Pattern: "ouch", CreatedAt: base.Add(time.Second),
	})

	fired, err := h.matcher.OnMessage(ctx, "g1", "alice", "ouch")
	require.NoError(t, err)
	require.NotNil(t, fired)
	assert.Equal(t, "t1", fired.ID)

	// Second message lands inside t1's cooldown. The match is consumed
	// silently; t2 does not inherit it.
	fired, err = h.matcher.OnMessage(ctx, "g1", "alice", "ouch")
	require.NoError(t, err)
	assert.Nil(t, fired)
	assert.Equal(t, int64(1), h.calls.Load())
}

// TestOnMessageCooldownElapsed verifies the trigger fires again once the
// cooldown has passed.
func TestOnMessageCooldownElapsed(t *testing.T) {
	h := newMatcherHarness(t)
	ctx := context.Background()
	base := time.Now().UTC()
	h.addTrigger(t, domain.Trigger{
		ID: "t1", Pattern: "ouch", CooldownSeconds: 300, CreatedAt: base,
	})

	fired, err := h.matcher.OnMessage(ctx, "g1", "alice", "ouch")
	require.NoError(t, err)
	require.NotNil(t, fired)

	h.matcher.now = func() time.Time { return base.Add(301 * time.Second) }
	fired, err = h.matcher.OnMessage(ctx, "g1", "alice", "ouch")
	require.NoError(t, err)
	require.NotNil(t, fired)
	assert.Equal(t, int64(2), h.calls.Load())
}

// TestOnMessageFirstMatchWins verifies only the earliest-created matching
// trigger fires per message.
func TestOnMessageFirstMatchWins(t *testing.T) {
	h := newMatcherHarness(t)
	base := time.Now().UTC()
	h.addTrigger(t, domain.Trigger{ID: "t1", Pattern: "ouch", CreatedAt: base})
	h.addTrigger(t, domain.Trigger{ID: "t2", Pattern: "ouch", CreatedAt: base.Add(time.Second)})

	fired, err := h.matcher.OnMessage(context.Background(), "g1", "alice", "ouch")
	require.NoError(t, err)
	require.NotNil(t, fired)
	assert.Equal(t, "t1", fired.ID)
	assert.Equal(t, int64(1), h.calls.Load())
}

// TestOnMessageSkipsBadStoredPattern verifies a stored pattern that no longer
// compiles is skipped without silencing later triggers.
func TestOnMessageSkipsBadStoredPattern(t *testing.T) {
	h := newMatcherHarness(t)
	base := time.Now().UTC()
	h.addTrigger(t, domain.Trigger{ID: "t1", Pattern: "[unclosed", CreatedAt: base})
	h.addTrigger(t, domain.Trigger{ID: "t2", Pattern: "ouch", CreatedAt: base.Add(time.Second)})

	fired, err := h.matcher.OnMessage(context.Background(), "g1", "alice", "ouch")
	require.NoError(t, err)
	require.NotNil(t, fired)
	assert.Equal(t, "t2", fired.ID)
}

// TestOnMessageOtherAuthor verifies triggers only match their owner's
// messages.
func TestOnMessageOtherAuthor(t *testing.T) {
	h := newMatcherHarness(t)
	h.addTrigger(t, domain.Trigger{ID: "t1", Pattern: "ouch", CreatedAt: time.Now().UTC()})

	fired, err := h.matcher.OnMessage(context.Background(), "g1", "bob", "ouch")
	require.NoError(t, err)
	assert.Nil(t, fired)
}

// TestValidatePattern covers the creation-time pattern checks.
func TestValidatePattern(t *testing.T) {
	compiled, err := ValidatePattern(`\bouch\b`)
	require.NoError(t, err)
	assert.True(t, compiled.MatchString("OUCH"), "patterns compile case-insensitively")

	_, err = ValidatePattern("")
	rej, ok := domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.RejectInvalidPattern, rej.Kind)

	_, err = ValidatePattern(strings.Repeat("a", MaxPatternLength+1))
	rej, ok = domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.RejectInvalidPattern, rej.Kind)

	_, err = ValidatePattern("[unclosed")
	rej, ok = domain.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, domain.RejectInvalidPattern, rej.Kind)
}

// TestPatternCacheEviction verifies the LRU drops the oldest entry at
// capacity.
func TestPatternCacheEviction(t *testing.T) {
	cache := newPatternCache(2)
	a := regexp.MustCompile("a")
	b := regexp.MustCompile("b")
	c := regexp.MustCompile("c")

	cache.put("a", a)
	cache.put("b", b)
	require.NotNil(t, cache.get("a")) // refresh a
	cache.put("c", c)

	assert.Equal(t, 2, cache.len())
	assert.Nil(t, cache.get("b"), "least recently used entry is evicted")
	assert.NotNil(t, cache.get("a"))
	assert.NotNil(t, cache.get("c"))
}

// TestOnMessageConcurrentSingleFire verifies racing identical messages fire
// the trigger once; the losers are suppressed like any in-cooldown match
// instead of erroring.
func TestOnMessageConcurrentSingleFire(t *testing.T) {
	h := newMatcherHarness(t)
	ctx := context.Background()
	h.addTrigger(t, domain.Trigger{
		ID: "t1", Pattern: `\bouch\b`, CooldownSeconds: 300, CreatedAt: time.Now().UTC(),
	})

	const workers = 16
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.matcher.OnMessage(ctx, "g1", "alice", "ouch")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), h.calls.Load())
}
