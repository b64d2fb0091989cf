// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/voltcord/voltcord/services/core/domain"
)

// CreateTrigger stores a new trigger.
func (s *Store) CreateTrigger(ctx context.Context, t domain.Trigger) error {
	if t.Guild == "" || t.ID == "" {
		return errors.New("trigger guild and id are required")
	}
	key := triggerKey(t.Guild, t.ID)
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		ok, err := exists(txn, key)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("trigger %s/%s: %w", t.Guild, t.ID, ErrAlreadyExists)
		}
		return setJSON(txn, key, t)
	})
}

// GetTrigger loads one trigger.
func (s *Store) GetTrigger(ctx context.Context, guild, id string) (domain.Trigger, error) {
	var t domain.Trigger
	err := s.readOne(ctx, triggerKey(guild, id), &t)
	return t, err
}

// UpdateTrigger applies mutate to an existing trigger.
func (s *Store) UpdateTrigger(ctx context.Context, guild, id string, mutate func(*domain.Trigger) error) (domain.Trigger, error) {
	var t domain.Trigger
	key := triggerKey(guild, id)
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, key, &t); err != nil {
			return err
		}
		if err := mutate(&t); err != nil {
			return err
		}
		return setJSON(txn, key, t)
	})
	return t, err
}

// ListTriggers returns a guild's triggers sorted by creation time.
func (s *Store) ListTriggers(ctx context.Context, guild string) ([]domain.Trigger, error) {
	var out []domain.Trigger
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, triggerPrefix(guild), func(_ string, t domain.Trigger) error {
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListTriggersByOwner returns the enabled triggers owned by one principal in
// a guild, in creation order. This is the matcher's per-message read.
func (s *Store) ListTriggersByOwner(ctx context.Context, guild, owner string) ([]domain.Trigger, error) {
	all, err := s.ListTriggers(ctx, guild)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if t.Owner == owner && t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

// DeleteTrigger removes one trigger.
func (s *Store) DeleteTrigger(ctx context.Context, guild, id string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return deleteKey(txn, triggerKey(guild, id))
	})
}

// MarkTriggerFired stamps LastFiredAt. The stamp advances on every fire
// attempt, win or lose downstream, so the cooldown window always starts at
// the attempt. A commit conflict means a concurrent message already claimed
// the fire; that surfaces as ErrClaimed.
func (s *Store) MarkTriggerFired(ctx context.Context, guild, id string, firedAt time.Time) error {
	_, err := s.UpdateTrigger(ctx, guild, id, func(t *domain.Trigger) error {
		t.LastFiredAt = firedAt
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrClaimed
	}
	return err
}
