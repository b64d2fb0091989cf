// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Sentinel errors for store operations. Callers match with errors.Is.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists indicates a create collided with an existing record.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrClaimed indicates a fire claim lost to a concurrent claimant,
	// either a reminder claim or a trigger cooldown stamp.
	ErrClaimed = errors.New("already claimed")
)

// Store provides typed access to all voltcord records on a shared DB.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *DB
}

// New creates a Store over an open database.
func New(db *DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying database for components that share it.
func (s *Store) DB() *DB {
	return s.db
}

// =============================================================================
// Key Layout
// =============================================================================

// keyJoin builds a colon-separated key from parts.
func keyJoin(parts ...string) []byte {
	return []byte(strings.Join(parts, ":"))
}

func principalKey(guild, externalID string) []byte {
	return keyJoin("principal", guild, externalID)
}

func principalPrefix(guild string) []byte {
	return keyJoin("principal", guild, "")
}

func shockerKey(guild, owner, shockerID string) []byte {
	return keyJoin("shocker", guild, owner, shockerID)
}

func shockerOwnerPrefix(guild, owner string) []byte {
	return keyJoin("shocker", guild, owner, "")
}

func grantKey(guild, target, kind, grantee string) []byte {
	return keyJoin("grant", guild, target, kind, grantee)
}

func grantTargetPrefix(guild, target string) []byte {
	return keyJoin("grant", guild, target, "")
}

func prefKey(guild, principal, target string) []byte {
	return keyJoin("pref", guild, principal, target)
}

func prefPrefix(guild, principal string) []byte {
	return keyJoin("pref", guild, principal, "")
}

func reminderKey(guild, id string) []byte {
	return keyJoin("reminder", guild, id)
}

func reminderPrefix(guild string) []byte {
	return keyJoin("reminder", guild, "")
}

func allReminderPrefix() []byte {
	return keyJoin("reminder", "")
}

func triggerKey(guild, id string) []byte {
	return keyJoin("trigger", guild, id)
}

func triggerPrefix(guild string) []byte {
	return keyJoin("trigger", guild, "")
}

func credentialKey(guild, principal string) []byte {
	return keyJoin("credential", guild, principal)
}

// =============================================================================
// Transaction Helpers
// =============================================================================

// getJSON reads and unmarshals a record within a transaction. Maps
// badger.ErrKeyNotFound to ErrNotFound.
func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, out); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return nil
	})
}

// setJSON marshals and writes a record within a transaction.
func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := txn.Set(key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// exists reports whether a key is present, without reading its value.
func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return true, nil
}

// scanJSON iterates all records under prefix, unmarshalling each into a fresh
// T and passing it to fn. Iteration stops on the first error.
func scanJSON[T any](txn *badger.Txn, prefix []byte, fn func(key string, v T) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var v T
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
		if err != nil {
			return fmt.Errorf("decode %s: %w", item.Key(), err)
		}
		if err := fn(string(item.Key()), v); err != nil {
			return err
		}
	}
	return nil
}

// deletePrefix removes every key under prefix within a transaction.
func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// delete removes a single key, mapping a missing key to ErrNotFound.
func deleteKey(txn *badger.Txn, key []byte) error {
	ok, err := exists(txn, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err := txn.Delete(key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// readOne runs a single-record read transaction.
func (s *Store) readOne(ctx context.Context, key []byte, out any) error {
	return s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, key, out)
	})
}
