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
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/voltcord/voltcord/services/core/domain"
)

// globalPrefTarget is the key segment for a controller's guild-wide default.
const globalPrefTarget = "*"

func prefTargetSegment(target string) string {
	if target == "" {
		return globalPrefTarget
	}
	return target
}

// PutPreference stores a controller's defaults for one target (or globally
// when Target is empty). Last-used fields on the stored record are preserved.
func (s *Store) PutPreference(ctx context.Context, p domain.Preference) error {
	if p.Guild == "" || p.Principal == "" {
		return errors.New("preference guild and principal are required")
	}
	key := prefKey(p.Guild, p.Principal, prefTargetSegment(p.Target))
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var existing domain.Preference
		if err := getJSON(txn, key, &existing); err == nil {
			p.LastIntensity = existing.LastIntensity
			p.LastDuration = existing.LastDuration
			p.LastType = existing.LastType
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		p.UpdatedAt = time.Now().UTC()
		return setJSON(txn, key, p)
	})
}

// GetPreference loads the controller's preference for one target. Pass an
// empty target for the global default.
func (s *Store) GetPreference(ctx context.Context, guild, principal, target string) (domain.Preference, error) {
	var p domain.Preference
	err := s.readOne(ctx, prefKey(guild, principal, prefTargetSegment(target)), &p)
	return p, err
}

// ListPreferences returns all of a controller's preference records.
func (s *Store) ListPreferences(ctx context.Context, guild, principal string) ([]domain.Preference, error) {
	var out []domain.Preference
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, prefPrefix(guild, principal), func(_ string, p domain.Preference) error {
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeletePreference removes the controller's preference for one target.
func (s *Store) DeletePreference(ctx context.Context, guild, principal, target string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return deleteKey(txn, prefKey(guild, principal, prefTargetSegment(target)))
	})
}

// RecordLastUsed updates the controller's last-used values for a target after
// a successful downstream call. Creates the per-target record if it does not
// exist yet; configured defaults on an existing record are left alone.
func (s *Store) RecordLastUsed(ctx context.Context, guild, principal, target string, params domain.ActionParams) error {
	key := prefKey(guild, principal, prefTargetSegment(target))
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var p domain.Preference
		if err := getJSON(txn, key, &p); err != nil {
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			p = domain.Preference{
				Guild:     guild,
				Principal: principal,
				Target:    target,
			}
		}
		p.LastIntensity = params.Intensity
		p.LastDuration = params.DurationMs
		p.LastType = params.Type
		p.UpdatedAt = time.Now().UTC()
		return setJSON(txn, key, p)
	})
}

// ResolveDefaults fills the missing fields of a partially specified request
// using the fill order: the controller's target-specific defaults, then the
// global defaults, then last-used values, then the safe fallbacks. Each field
// resolves independently.
func (s *Store) ResolveDefaults(ctx context.Context, guild, principal, target string, req domain.RequestParams) (domain.ActionParams, error) {
	var perTarget, global domain.Preference
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, prefKey(guild, principal, prefTargetSegment(target)), &perTarget); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := getJSON(txn, prefKey(guild, principal, globalPrefTarget), &global); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.ActionParams{}, err
	}

	out := domain.ActionParams{}

	if req.Intensity != nil {
		out.Intensity = *req.Intensity
	} else if perTarget.DefaultIntensity != 0 {
		out.Intensity = perTarget.DefaultIntensity
	} else if global.DefaultIntensity != 0 {
		out.Intensity = global.DefaultIntensity
	} else if perTarget.LastIntensity != 0 {
		out.Intensity = perTarget.LastIntensity
	} else if global.LastIntensity != 0 {
		out.Intensity = global.LastIntensity
	} else {
		out.Intensity = domain.SafeDefaultIntensity
	}

	if req.DurationMs != nil {
		out.DurationMs = *req.DurationMs
	} else if perTarget.DefaultDuration != 0 {
		out.DurationMs = perTarget.DefaultDuration
	} else if global.DefaultDuration != 0 {
		out.DurationMs = global.DefaultDuration
	} else if perTarget.LastDuration != 0 {
		out.DurationMs = perTarget.LastDuration
	} else if global.LastDuration != 0 {
		out.DurationMs = global.LastDuration
	} else {
		out.DurationMs = domain.SafeDefaultDurationMs
	}

	if req.Type != nil {
		out.Type = *req.Type
	} else if perTarget.DefaultType != "" {
		out.Type = perTarget.DefaultType
	} else if global.DefaultType != "" {
		out.Type = global.DefaultType
	} else if perTarget.LastType != "" {
		out.Type = perTarget.LastType
	} else if global.LastType != "" {
		out.Type = global.LastType
	} else {
		out.Type = domain.SafeDefaultType
	}

	out.ShockerID = req.ShockerID

	return out, nil
}
