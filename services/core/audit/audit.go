// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit persists the append-only record of approved action attempts.
//
// Entries are written after the authorization pipeline approves a request;
// the outcome field then records what the downstream call did. Validation
// rejections never reach this sink. Audit history is immutable: there is no
// update or single-delete path, only age-based pruning.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/voltcord/voltcord/pkg/logging"
	"github.com/voltcord/voltcord/services/core/domain"
	"github.com/voltcord/voltcord/services/core/store"
)

// keyPrefix is the audit keyspace. Keys embed the zero-padded unix-nano
// timestamp so an ascending prefix scan is already in time order:
//
//	audit:<guild>:<unix_nano:020d>:<uuid>
const keyPrefix = "audit"

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	// Actor matches entries by requester.
	Actor string

	// Target matches entries by target principal.
	Target string

	// Source matches entries by originating path.
	Source domain.Source

	// Since excludes entries before the instant.
	Since time.Time

	// Limit caps results, newest first. Zero means no cap.
	Limit int
}

// Sink writes and reads audit entries on the shared database.
//
// Thread Safety: Safe for concurrent use.
type Sink struct {
	db     *store.DB
	logger *logging.Logger
}

// NewSink creates an audit sink. The logger may be nil.
func NewSink(db *store.DB, logger *logging.Logger) *Sink {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sink{db: db, logger: logger}
}

func entryKey(guild string, ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%020d:%s", keyPrefix, guild, ts.UnixNano(), id))
}

func guildPrefix(guild string) []byte {
	return []byte(keyPrefix + ":" + guild + ":")
}

// Record writes one entry. A missing ID or timestamp is filled in. The entry
// must never carry token material; callers construct Detail from rejection
// reasons and upstream status text only.
func (s *Sink) Record(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Guild == "" {
		return fmt.Errorf("audit entry guild is required")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.Guild, entry.Timestamp, entry.ID), data)
	})
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}

	s.logger.Debug("audit entry recorded",
		"guild", entry.Guild,
		"actor", entry.Actor,
		"target", entry.Target,
		"source", string(entry.Source),
		"outcome", entry.Outcome)
	return nil
}

// List returns a guild's entries matching the filter, newest first.
func (s *Sink) List(ctx context.Context, guild string, filter Filter) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = guildPrefix(guild)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry domain.AuditEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return fmt.Errorf("decode audit entry %s: %w", it.Item().Key(), err)
			}
			if filter.Actor != "" && entry.Actor != filter.Actor {
				continue
			}
			if filter.Target != "" && entry.Target != filter.Target {
				continue
			}
			if filter.Source != "" && entry.Source != filter.Source {
				continue
			}
			if !filter.Since.IsZero() && entry.Timestamp.Before(filter.Since) {
				continue
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Keys scan oldest first; flip to newest first before applying Limit.
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// PruneOlderThan deletes entries across all guilds with timestamps before
// cutoff and returns how many were removed. The timestamp is parsed from the
// key, so pruning never reads entry values.
func (s *Sink) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffNano := cutoff.UnixNano()
	pruned := 0

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix + ":")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			ts, ok := keyTimestamp(key)
			if ok && ts < cutoffNano {
				stale = append(stale, key)
			}
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete audit entry %s: %w", key, err)
			}
			pruned++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if pruned > 0 {
		s.logger.Info("audit entries pruned", "count", pruned, "cutoff", cutoff)
	}
	return pruned, nil
}

// keyTimestamp extracts the unix-nano timestamp segment from an audit key.
func keyTimestamp(key []byte) (int64, bool) {
	// audit:<guild>:<nano>:<uuid>; the guild itself contains no colons.
	parts := 0
	start := 0
	for i, b := range key {
		if b == ':' {
			parts++
			if parts == 2 {
				start = i + 1
			}
			if parts == 3 {
				ts, err := strconv.ParseInt(string(key[start:i]), 10, 64)
				if err != nil {
					return 0, false
				}
				return ts, true
			}
		}
	}
	return 0, false
}
