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

// PutGrant records consent from the grantor to the grantee. Writing an
// already-present grant is an idempotent overwrite; the grant's identity is
// the (guild, grantor, kind, grantee) tuple.
func (s *Store) PutGrant(ctx context.Context, g domain.ControllerGrant) error {
	if g.Guild == "" || g.Grantor == "" || g.Grantee == "" {
		return errors.New("grant guild, grantor, and grantee are required")
	}
	if g.Kind != domain.GranteeUser && g.Kind != domain.GranteeRole {
		return fmt.Errorf("unknown grantee kind %q", g.Kind)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		ok, err := exists(txn, principalKey(g.Guild, g.Grantor))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("grantor %s/%s: %w", g.Guild, g.Grantor, ErrNotFound)
		}
		return setJSON(txn, grantKey(g.Guild, g.Grantor, string(g.Kind), g.Grantee), g)
	})
}

// DeleteGrant revokes one grant. Revocation takes effect on the next
// authorization check; nothing in-flight is recalled.
func (s *Store) DeleteGrant(ctx context.Context, guild, grantor string, kind domain.GranteeKind, grantee string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return deleteKey(txn, grantKey(guild, grantor, string(kind), grantee))
	})
}

// ListGrants returns every grant issued by the grantor, user grants first,
// then role grants, each sorted by grantee.
func (s *Store) ListGrants(ctx context.Context, guild, grantor string) ([]domain.ControllerGrant, error) {
	var out []domain.ControllerGrant
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return scanJSON(txn, grantTargetPrefix(guild, grantor), func(_ string, g domain.ControllerGrant) error {
			out = append(out, g)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == domain.GranteeUser
		}
		return out[i].Grantee < out[j].Grantee
	})
	return out, nil
}

// Authorized reports whether the requester may act on the target. Self-action
// is always allowed. Otherwise the requester must hold a direct user grant
// from the target, or carry a role the target has granted.
//
// requesterRoles is the requester's current role membership as resolved by
// the caller; role grants are checked against it, never against stored state.
func (s *Store) Authorized(ctx context.Context, guild, requester, target string, requesterRoles []string) (bool, error) {
	if requester == target {
		return true, nil
	}

	roleSet := make(map[string]struct{}, len(requesterRoles))
	for _, r := range requesterRoles {
		roleSet[r] = struct{}{}
	}

	allowed := false
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		userKey := grantKey(guild, target, string(domain.GranteeUser), requester)
		ok, err := exists(txn, userKey)
		if err != nil {
			return err
		}
		if ok {
			allowed = true
			return nil
		}

		rolePrefix := keyJoin("grant", guild, target, string(domain.GranteeRole), "")
		return scanJSON(txn, rolePrefix, func(_ string, g domain.ControllerGrant) error {
			if _, ok := roleSet[g.Grantee]; ok {
				allowed = true
			}
			return nil
		})
	})
	return allowed, err
}
