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

// CreatePrincipal registers a principal. Fails with ErrAlreadyExists when the
// (guild, external ID) pair is already registered.
func (s *Store) CreatePrincipal(ctx context.Context, p domain.Principal) error {
	if p.Guild == "" || p.ExternalID == "" {
		return errors.New("principal guild and external id are required")
	}
	key := principalKey(p.Guild, p.ExternalID)
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		ok, err := exists(txn, key)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("principal %s/%s: %w", p.Guild, p.ExternalID, ErrAlreadyExists)
		}
		return setJSON(txn, key, p)
	})
}

// GetPrincipal loads one principal by guild and external ID.
func (s *Store) GetPrincipal(ctx context.Context, guild, externalID string) (domain.Principal, error) {
	var p domain.Principal
	err := s.readOne(ctx, principalKey(guild, externalID), &p)
	return p, err
}

// UpdatePrincipal applies mutate to an existing principal under a read-write
// transaction and bumps UpdatedAt.
func (s *Store) UpdatePrincipal(ctx context.Context, guild, externalID string, mutate func(*domain.Principal) error) (domain.Principal, error) {
	var p domain.Principal
	key := principalKey(guild, externalID)
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, key, &p); err != nil {
			return err
		}
		if err := mutate(&p); err != nil {
			return err
		}
		p.UpdatedAt = time.Now().UTC()
		return setJSON(txn, key, p)
	})
	return p, err
}

// ListPrincipals returns all principals in a guild sorted by external ID.
func (s *Store) ListPrincipals(ctx context.Context, guild string) ([]domain.Principal, error) {
	var out []domain.Principal
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, principalPrefix(guild), func(_ string, p domain.Principal) error {
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

// DeletePrincipal removes a principal and everything scoped to it in the same
// transaction: its shockers, the grants it issued, its preferences, its
// reminders and triggers (as owner or target), and its stored credential.
// The audit trail is retention-pruned, never cascaded.
func (s *Store) DeletePrincipal(ctx context.Context, guild, externalID string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := deleteKey(txn, principalKey(guild, externalID)); err != nil {
			return err
		}
		if err := deletePrefix(txn, shockerOwnerPrefix(guild, externalID)); err != nil {
			return err
		}
		if err := deletePrefix(txn, grantTargetPrefix(guild, externalID)); err != nil {
			return err
		}
		if err := deletePrefix(txn, prefPrefix(guild, externalID)); err != nil {
			return err
		}

		// Grants issued by others never reference this principal as
		// grantor, but it may appear as a user grantee; sweep those.
		var granteeKeys []string
		err := scanJSON(txn, keyJoin("grant", guild, ""), func(key string, g domain.ControllerGrant) error {
			if g.Kind == domain.GranteeUser && g.Grantee == externalID {
				granteeKeys = append(granteeKeys, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range granteeKeys {
			if err := txn.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}

		// Reminders and triggers that reference the principal on either
		// side are dropped; orphaned automation must not outlive consent.
		var reminderKeys []string
		err = scanJSON(txn, reminderPrefix(guild), func(key string, r domain.Reminder) error {
			if r.Owner == externalID || r.Target == externalID {
				reminderKeys = append(reminderKeys, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range reminderKeys {
			if err := txn.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}

		var triggerKeys []string
		err = scanJSON(txn, triggerPrefix(guild), func(key string, t domain.Trigger) error {
			if t.Owner == externalID || t.Target == externalID {
				triggerKeys = append(triggerKeys, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range triggerKeys {
			if err := txn.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}

		// Stored credential, if any.
		credKey := credentialKey(guild, externalID)
		if ok, err := exists(txn, credKey); err != nil {
			return err
		} else if ok {
			if err := txn.Delete(credKey); err != nil {
				return fmt.Errorf("delete %s: %w", credKey, err)
			}
		}

		return nil
	})
}
