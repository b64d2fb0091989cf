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

// CreateReminder stores a new reminder.
func (s *Store) CreateReminder(ctx context.Context, r domain.Reminder) error {
	if r.Guild == "" || r.ID == "" {
		return errors.New("reminder guild and id are required")
	}
	key := reminderKey(r.Guild, r.ID)
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		ok, err := exists(txn, key)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("reminder %s/%s: %w", r.Guild, r.ID, ErrAlreadyExists)
		}
		return setJSON(txn, key, r)
	})
}

// GetReminder loads one reminder.
func (s *Store) GetReminder(ctx context.Context, guild, id string) (domain.Reminder, error) {
	var r domain.Reminder
	err := s.readOne(ctx, reminderKey(guild, id), &r)
	return r, err
}

// UpdateReminder applies mutate to an existing reminder.
func (s *Store) UpdateReminder(ctx context.Context, guild, id string, mutate func(*domain.Reminder) error) (domain.Reminder, error) {
	var r domain.Reminder
	key := reminderKey(guild, id)
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, key, &r); err != nil {
			return err
		}
		if err := mutate(&r); err != nil {
			return err
		}
		return setJSON(txn, key, r)
	})
	return r, err
}

// ListReminders returns a guild's reminders, soonest NextFire first.
func (s *Store) ListReminders(ctx context.Context, guild string) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, reminderPrefix(guild), func(_ string, r domain.Reminder) error {
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextFire.Before(out[j].NextFire) })
	return out, nil
}

// DeleteReminder removes one reminder.
func (s *Store) DeleteReminder(ctx context.Context, guild, id string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return deleteKey(txn, reminderKey(guild, id))
	})
}

// DueReminders returns enabled, unclaimed reminders across all guilds whose
// NextFire is at or before now, soonest first, capped at limit.
func (s *Store) DueReminders(ctx context.Context, now time.Time, limit int) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, allReminderPrefix(), func(_ string, r domain.Reminder) error {
			if r.Enabled && !r.InFlight && !r.NextFire.After(now) {
				out = append(out, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextFire.Before(out[j].NextFire) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimReminder marks a due reminder in-flight so exactly one dispatcher
// executes it. The claim is a conditional read-modify-write: losing the
// commit race, or finding the reminder already claimed or no longer due,
// returns ErrClaimed.
func (s *Store) ClaimReminder(ctx context.Context, guild, id string, now time.Time) (domain.Reminder, error) {
	var r domain.Reminder
	key := reminderKey(guild, id)
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, key, &r); err != nil {
			return err
		}
		if !r.Enabled || r.InFlight || r.NextFire.After(now) {
			return ErrClaimed
		}
		r.InFlight = true
		return setJSON(txn, key, r)
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.Reminder{}, ErrClaimed
	}
	return r, err
}

// FinishReminder releases a claim after execution. One-shot reminders are
// disabled; recurring reminders get a fresh NextFire computed from now so a
// missed window never causes a rapid catch-up burst.
func (s *Store) FinishReminder(ctx context.Context, guild, id string, now time.Time) error {
	key := reminderKey(guild, id)
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var r domain.Reminder
		if err := getJSON(txn, key, &r); err != nil {
			return err
		}
		r.InFlight = false
		if r.Rule.Recurring() {
			next, err := domain.ComputeNextFire(r.Rule, now)
			if err != nil {
				r.Enabled = false
			} else {
				r.NextFire = next
			}
		} else {
			r.Enabled = false
		}
		return setJSON(txn, key, r)
	})
}

// ReleaseStaleClaims clears in-flight markers older than the reminder's
// nominal fire by the given grace period. A crash between claim and finish
// would otherwise wedge the reminder forever.
func (s *Store) ReleaseStaleClaims(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	released := 0
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var stale []domain.Reminder
		err := scanJSON(txn, allReminderPrefix(), func(_ string, r domain.Reminder) error {
			if r.InFlight && now.Sub(r.NextFire) > grace {
				stale = append(stale, r)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, r := range stale {
			r.InFlight = false
			if err := setJSON(txn, reminderKey(r.Guild, r.ID), r); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}
