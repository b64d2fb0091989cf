// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltcord/voltcord/services/core/domain"
	"github.com/voltcord/voltcord/services/core/store"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	db, err := store.OpenDB(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSink(db, nil)
}

func testEntry(guild, actor, target string, ts time.Time) domain.AuditEntry {
	return domain.AuditEntry{
		Guild:     guild,
		Timestamp: ts,
		Actor:     actor,
		Target:    target,
		Params:    domain.ActionParams{ShockerID: "sh-1", Type: domain.ActionVibrate, Intensity: 10, DurationMs: 500},
		Source:    domain.SourceManual,
		Outcome:   domain.OutcomeSuccess,
	}
}

// TestRecordFillsIdentity verifies Record assigns an ID and timestamp when
// absent.
func TestRecordFillsIdentity(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, sink.Record(ctx, testEntry("g1", "bob", "alice", time.Time{})))

	entries, err := sink.List(ctx, "g1", Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

// TestRecordRequiresGuild verifies entries without a guild are refused.
func TestRecordRequiresGuild(t *testing.T) {
	sink := newTestSink(t)
	err := sink.Record(context.Background(), testEntry("", "bob", "alice", time.Now()))
	assert.Error(t, err)
}

// TestListNewestFirst verifies ordering and the limit cap.
func TestListNewestFirst(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		e := testEntry("g1", "bob", "alice", base.Add(time.Duration(i)*time.Minute))
		e.Detail = fmt.Sprintf("entry-%d", i)
		require.NoError(t, sink.Record(ctx, e))
	}

	entries, err := sink.List(ctx, "g1", Filter{Limit: 3})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "entry-4", entries[0].Detail)
	assert.Equal(t, "entry-2", entries[2].Detail)
}

// TestListFilters verifies actor, target, source, and since filtering.
func TestListFilters(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, sink.Record(ctx, testEntry("g1", "bob", "alice", now.Add(-2*time.Hour))))
	require.NoError(t, sink.Record(ctx, testEntry("g1", "carol", "alice", now.Add(-time.Minute))))

	reminder := testEntry("g1", "bob", "dave", now)
	reminder.Source = domain.SourceReminder
	require.NoError(t, sink.Record(ctx, reminder))

	byActor, err := sink.List(ctx, "g1", Filter{Actor: "carol"})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "carol", byActor[0].Actor)

	byTarget, err := sink.List(ctx, "g1", Filter{Target: "dave"})
	require.NoError(t, err)
	require.Len(t, byTarget, 1)

	bySource, err := sink.List(ctx, "g1", Filter{Source: domain.SourceReminder})
	require.NoError(t, err)
	require.Len(t, bySource, 1)

	recent, err := sink.List(ctx, "g1", Filter{Since: now.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

// TestListGuildIsolation verifies entries never leak across guilds.
func TestListGuildIsolation(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, sink.Record(ctx, testEntry("g1", "bob", "alice", time.Now())))

	entries, err := sink.List(ctx, "g2", Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestPruneOlderThan verifies expired entries are removed and the rest kept.
func TestPruneOlderThan(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, sink.Record(ctx, testEntry("g1", "bob", "alice", now.Add(-48*time.Hour))))
	require.NoError(t, sink.Record(ctx, testEntry("g1", "bob", "alice", now.Add(-time.Hour))))
	require.NoError(t, sink.Record(ctx, testEntry("g2", "carol", "dave", now.Add(-48*time.Hour))))

	pruned, err := sink.PruneOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	remaining, err := sink.List(ctx, "g1", Filter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
