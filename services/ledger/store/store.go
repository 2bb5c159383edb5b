// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the device-local punch ledger.
//
// # Description
//
// Four named collections live under their own keys: the device
// configuration singleton, the punch list, the note list and the badge
// list. Each is stored as one JSON value and is read and written whole;
// callers do read-modify-write.
//
// # Failure Model
//
// Reads never fail. A missing, corrupt or unreadable collection reads as
// its empty value and is logged, so the rest of the device behaves like a
// first run. Corruption of one collection does not affect the others.
// Writes report failures wrapped in ErrPersist; nothing is durable until
// the underlying transaction commits.
//
// # Thread Safety
//
// Store is safe for concurrent use, but the ledger expects a single
// writer at a time (the punch recorder, the reconciler or the badge
// engine). Use Update for a multi-collection read-modify-write.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/bfa-sv/punchledger/services/ledger"
	badgerdb "github.com/bfa-sv/punchledger/services/ledger/storage/badger"
)

// Key names a persisted collection.
type Key string

const (
	KeyDeviceConfig Key = "bfa_device_config"
	KeyPunches      Key = "bfa_punches"
	KeyNotes        Key = "bfa_notes"
	KeyBadges       Key = "bfa_badges"
)

// AllKeys lists every collection key.
var AllKeys = []Key{KeyDeviceConfig, KeyPunches, KeyNotes, KeyBadges}

var (
	// ErrPersist wraps every local write failure.
	ErrPersist = errors.New("local ledger write failed")

	// ErrDuplicateID is returned when appending a punch whose id already exists.
	ErrDuplicateID = errors.New("punch id already present")

	errUnavailable = errors.New("local ledger unavailable")
)

// Store is the local ledger.
type Store struct {
	db     *badgerdb.DB
	logger *slog.Logger
}

// New returns a Store over db. A nil db yields a store whose reads are
// empty and whose writes fail with ErrPersist.
func New(db *badgerdb.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With("component", "local_ledger")}
}

// get decodes key from txn into a T, returning the zero T when the value is
// missing or cannot be decoded.
func get[T any](txn *badger.Txn, key Key, logger *slog.Logger) (T, bool) {
	var zero T
	item, err := txn.Get([]byte(key))
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logger.Warn("read collection failed", "key", string(key), "error", err)
		}
		return zero, false
	}

	var out T
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &out)
	})
	if err != nil {
		logger.Warn("collection unreadable, using empty value", "key", string(key), "error", err)
		return zero, false
	}
	return out, true
}

// put encodes value and stores it under key in txn.
func put[T any](txn *badger.Txn, key Key, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func (s *Store) read(ctx context.Context, fn func(txn *badger.Txn)) {
	if s.db == nil {
		return
	}
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		fn(txn)
		return nil
	})
	if err != nil {
		s.logger.Warn("local ledger read failed", "error", err)
	}
}

func (s *Store) write(ctx context.Context, key Key, fn func(txn *badger.Txn) error) error {
	if s.db == nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, key, errUnavailable)
	}
	if err := s.db.WithTxn(ctx, fn); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrPersist, key, err)
	}
	return nil
}

// DeviceConfig returns the device configuration and whether one exists.
func (s *Store) DeviceConfig(ctx context.Context) (ledger.DeviceConfig, bool) {
	var (
		cfg ledger.DeviceConfig
		ok  bool
	)
	s.read(ctx, func(txn *badger.Txn) {
		cfg, ok = get[ledger.DeviceConfig](txn, KeyDeviceConfig, s.logger)
	})
	if ok && cfg.EmployeeCode == "" {
		return ledger.DeviceConfig{}, false
	}
	return cfg, ok
}

// Punches returns every local punch in stored order.
func (s *Store) Punches(ctx context.Context) []ledger.Punch {
	var punches []ledger.Punch
	s.read(ctx, func(txn *badger.Txn) {
		punches, _ = get[[]ledger.Punch](txn, KeyPunches, s.logger)
	})
	if punches == nil {
		return []ledger.Punch{}
	}
	return punches
}

// Notes returns every local note.
func (s *Store) Notes(ctx context.Context) []ledger.Note {
	var notes []ledger.Note
	s.read(ctx, func(txn *badger.Txn) {
		notes, _ = get[[]ledger.Note](txn, KeyNotes, s.logger)
	})
	if notes == nil {
		return []ledger.Note{}
	}
	return notes
}

// Badges returns every local badge.
func (s *Store) Badges(ctx context.Context) []ledger.Badge {
	var badges []ledger.Badge
	s.read(ctx, func(txn *badger.Txn) {
		badges, _ = get[[]ledger.Badge](txn, KeyBadges, s.logger)
	})
	if badges == nil {
		return []ledger.Badge{}
	}
	return badges
}

// SaveDeviceConfig overwrites the device configuration.
func (s *Store) SaveDeviceConfig(ctx context.Context, cfg ledger.DeviceConfig) error {
	return s.write(ctx, KeyDeviceConfig, func(txn *badger.Txn) error {
		return put(txn, KeyDeviceConfig, cfg)
	})
}

// SavePunches overwrites the punch collection.
func (s *Store) SavePunches(ctx context.Context, punches []ledger.Punch) error {
	return s.write(ctx, KeyPunches, func(txn *badger.Txn) error {
		return put(txn, KeyPunches, punches)
	})
}

// SaveNotes overwrites the note collection.
func (s *Store) SaveNotes(ctx context.Context, notes []ledger.Note) error {
	return s.write(ctx, KeyNotes, func(txn *badger.Txn) error {
		return put(txn, KeyNotes, notes)
	})
}

// SaveBadges overwrites the badge collection.
func (s *Store) SaveBadges(ctx context.Context, badges []ledger.Badge) error {
	return s.write(ctx, KeyBadges, func(txn *badger.Txn) error {
		return put(txn, KeyBadges, badges)
	})
}

// AppendPunch adds p to the punch collection.
//
// Returns ErrDuplicateID if a punch with the same id is already stored;
// stored punches are never overwritten.
func (s *Store) AppendPunch(ctx context.Context, p ledger.Punch) error {
	return s.write(ctx, KeyPunches, func(txn *badger.Txn) error {
		punches, _ := get[[]ledger.Punch](txn, KeyPunches, s.logger)
		for _, existing := range punches {
			if existing.ID == p.ID {
				return fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
			}
		}
		return put(txn, KeyPunches, append(punches, p))
	})
}

// AppendNote adds n to the note collection.
func (s *Store) AppendNote(ctx context.Context, n ledger.Note) error {
	return s.write(ctx, KeyNotes, func(txn *badger.Txn) error {
		notes, _ := get[[]ledger.Note](txn, KeyNotes, s.logger)
		return put(txn, KeyNotes, append(notes, n))
	})
}

// MarkSynced flips synced to true on the punches with the given ids.
//
// No other field is touched. Returns how many punches changed.
func (s *Store) MarkSynced(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var changed int
	err := s.Update(ctx, func(tx *Tx) error {
		changed = tx.MarkSynced(ids...)
		return nil
	})
	return changed, err
}

// Update runs fn as one atomic read-modify-write across collections.
//
// Collections changed through tx are committed together; if fn returns an
// error nothing is written.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	return s.write(ctx, "update", func(txn *badger.Txn) error {
		tx := &Tx{txn: txn, logger: s.logger}
		if err := fn(tx); err != nil {
			return err
		}
		return tx.flush()
	})
}

// Reset clears every collection. This is the device reset.
func (s *Store) Reset(ctx context.Context) error {
	return s.write(ctx, "reset", func(txn *badger.Txn) error {
		for _, key := range AllKeys {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}
