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

	"github.com/dgraph-io/badger/v4"

	"github.com/voltcord/voltcord/services/core/domain"
)

// PutShocker registers or updates a shocker under its owner. The owning
// principal must already exist.
func (s *Store) PutShocker(ctx context.Context, sh domain.Shocker) error {
	if sh.Guild == "" || sh.Owner == "" || sh.ID == "" {
		return errors.New("shocker guild, owner, and id are required")
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		ok, err := exists(txn, principalKey(sh.Guild, sh.Owner))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("owner %s/%s: %w", sh.Guild, sh.Owner, ErrNotFound)
		}
		return setJSON(txn, shockerKey(sh.Guild, sh.Owner, sh.ID), sh)
	})
}

// GetShocker loads one shocker by owner and ID.
func (s *Store) GetShocker(ctx context.Context, guild, owner, id string) (domain.Shocker, error) {
	var sh domain.Shocker
	err := s.readOne(ctx, shockerKey(guild, owner, id), &sh)
	return sh, err
}

// ListShockers returns a principal's shockers sorted by creation time, oldest
// first. Selection rules elsewhere depend on this ordering.
func (s *Store) ListShockers(ctx context.Context, guild, owner string) ([]domain.Shocker, error) {
	var out []domain.Shocker
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, shockerOwnerPrefix(guild, owner), func(_ string, sh domain.Shocker) error {
			out = append(out, sh)
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

// DeleteShocker removes one shocker.
func (s *Store) DeleteShocker(ctx context.Context, guild, owner, id string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return deleteKey(txn, shockerKey(guild, owner, id))
	})
}
