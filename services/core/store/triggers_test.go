// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltcord/voltcord/services/core/domain"
)

func testTrigger(guild, id, owner string, createdAt time.Time) domain.Trigger {
	return domain.Trigger{
		ID:        id,
		Guild:     guild,
		Owner:     owner,
		Target:    "alice",
		Pattern:   "ow+",
		Params:    domain.ActionParams{ShockerID: "sh-1", Type: domain.ActionVibrate, Intensity: 10, DurationMs: 500},
		Enabled:   true,
		CreatedAt: createdAt,
	}
}

// TestTriggerLifecycle covers create, duplicate, update, and delete.
func TestTriggerLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateTrigger(ctx, testTrigger("g1", "t1", "bob", now)))
	assert.ErrorIs(t, s.CreateTrigger(ctx, testTrigger("g1", "t1", "bob", now)), ErrAlreadyExists)

	updated, err := s.UpdateTrigger(ctx, "g1", "t1", func(tr *domain.Trigger) error {
		tr.Enabled = false
		return nil
	})
	require.NoError(t, err)
	assert.False(t, updated.Enabled)

	require.NoError(t, s.DeleteTrigger(ctx, "g1", "t1"))
	_, err = s.GetTrigger(ctx, "g1", "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestListTriggersByOwner verifies the owner filter, the enabled filter, and
// creation-order sorting.
func TestListTriggersByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, s.CreateTrigger(ctx, testTrigger("g1", "second", "bob", base.Add(time.Minute))))
	require.NoError(t, s.CreateTrigger(ctx, testTrigger("g1", "first", "bob", base)))
	require.NoError(t, s.CreateTrigger(ctx, testTrigger("g1", "other-owner", "carol", base)))

	disabled := testTrigger("g1", "disabled", "bob", base)
	disabled.Enabled = false
	require.NoError(t, s.CreateTrigger(ctx, disabled))

	triggers, err := s.ListTriggersByOwner(ctx, "g1", "bob")
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, "first", triggers[0].ID)
	assert.Equal(t, "second", triggers[1].ID)
}

// TestMarkTriggerFired verifies the cooldown stamp advances.
func TestMarkTriggerFired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateTrigger(ctx, testTrigger("g1", "t1", "bob", now)))
	require.NoError(t, s.MarkTriggerFired(ctx, "g1", "t1", now))

	tr, err := s.GetTrigger(ctx, "g1", "t1")
	require.NoError(t, err)
	assert.True(t, tr.LastFiredAt.Equal(now))
}

// TestTriggerReady verifies the cooldown gate on the domain type.
func TestTriggerReady(t *testing.T) {
	now := time.Now().UTC()
	tr := domain.Trigger{CooldownSeconds: 60}

	assert.True(t, tr.Ready(now), "never fired")

	tr.LastFiredAt = now.Add(-30 * time.Second)
	assert.False(t, tr.Ready(now), "inside cooldown")

	tr.LastFiredAt = now.Add(-61 * time.Second)
	assert.True(t, tr.Ready(now), "cooldown elapsed")
}
