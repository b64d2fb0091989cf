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

	"github.com/dgraph-io/badger/v4"
)

// Credential records are opaque ciphertext blobs. Encryption and decryption
// live in the credential package; the store never sees plaintext tokens.

// PutCredential stores a principal's encrypted device API token, replacing
// any previous one.
func (s *Store) PutCredential(ctx context.Context, guild, principal string, ciphertext []byte) error {
	if guild == "" || principal == "" {
		return errors.New("credential guild and principal are required")
	}
	if len(ciphertext) == 0 {
		return errors.New("credential ciphertext must not be empty")
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		ok, err := exists(txn, principalKey(guild, principal))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("principal %s/%s: %w", guild, principal, ErrNotFound)
		}
		if err := txn.Set(credentialKey(guild, principal), ciphertext); err != nil {
			return fmt.Errorf("set credential: %w", err)
		}
		return nil
	})
}

// GetCredential returns a principal's encrypted token.
func (s *Store) GetCredential(ctx context.Context, guild, principal string) ([]byte, error) {
	var out []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(credentialKey(guild, principal))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("credential %s/%s: %w", guild, principal, ErrNotFound)
			}
			return fmt.Errorf("get credential: %w", err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// DeleteCredential removes a principal's stored token.
func (s *Store) DeleteCredential(ctx context.Context, guild, principal string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return deleteKey(txn, credentialKey(guild, principal))
	})
}
