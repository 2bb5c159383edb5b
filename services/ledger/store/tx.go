// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/bfa-sv/punchledger/services/ledger"
)

// Tx is a read-modify-write view of the collections inside one Update.
//
// Collections are loaded on first access and written back only if they
// were replaced through a Set method. Slices returned by the getters are
// owned by the caller; pass the modified slice to the matching Set method.
type Tx struct {
	txn    *badger.Txn
	logger *slog.Logger

	punches      []ledger.Punch
	punchesDirty bool
	loadedP      bool

	badges      []ledger.Badge
	badgesDirty bool
	loadedB     bool

	notes      []ledger.Note
	notesDirty bool
	loadedN    bool

	config      *ledger.DeviceConfig
	configDirty bool
}

// Punches returns the punch collection as of this transaction.
func (t *Tx) Punches() []ledger.Punch {
	if !t.loadedP {
		t.punches, _ = get[[]ledger.Punch](t.txn, KeyPunches, t.logger)
		t.loadedP = true
	}
	out := make([]ledger.Punch, len(t.punches))
	copy(out, t.punches)
	return out
}

// SetPunches replaces the punch collection.
func (t *Tx) SetPunches(punches []ledger.Punch) {
	t.punches = punches
	t.loadedP = true
	t.punchesDirty = true
}

// Badges returns the badge collection as of this transaction.
func (t *Tx) Badges() []ledger.Badge {
	if !t.loadedB {
		t.badges, _ = get[[]ledger.Badge](t.txn, KeyBadges, t.logger)
		t.loadedB = true
	}
	out := make([]ledger.Badge, len(t.badges))
	copy(out, t.badges)
	return out
}

// SetBadges replaces the badge collection.
func (t *Tx) SetBadges(badges []ledger.Badge) {
	t.badges = badges
	t.loadedB = true
	t.badgesDirty = true
}

// Notes returns the note collection as of this transaction.
func (t *Tx) Notes() []ledger.Note {
	if !t.loadedN {
		t.notes, _ = get[[]ledger.Note](t.txn, KeyNotes, t.logger)
		t.loadedN = true
	}
	out := make([]ledger.Note, len(t.notes))
	copy(out, t.notes)
	return out
}

// SetNotes replaces the note collection.
func (t *Tx) SetNotes(notes []ledger.Note) {
	t.notes = notes
	t.loadedN = true
	t.notesDirty = true
}

// DeviceConfig returns the device configuration and whether one exists.
func (t *Tx) DeviceConfig() (ledger.DeviceConfig, bool) {
	if t.config != nil {
		return *t.config, t.config.EmployeeCode != ""
	}
	cfg, ok := get[ledger.DeviceConfig](t.txn, KeyDeviceConfig, t.logger)
	t.config = &cfg
	return cfg, ok && cfg.EmployeeCode != ""
}

// SetDeviceConfig replaces the device configuration.
func (t *Tx) SetDeviceConfig(cfg ledger.DeviceConfig) {
	t.config = &cfg
	t.configDirty = true
}

// MarkSynced flips synced to true on unsynced punches whose id is in ids and
// returns how many changed. Nothing else on the punch is modified.
func (t *Tx) MarkSynced(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	punches := t.Punches()
	changed := 0
	for i := range punches {
		if _, ok := want[punches[i].ID]; ok && !punches[i].Synced {
			punches[i].Synced = true
			changed++
		}
	}
	if changed > 0 {
		t.SetPunches(punches)
	}
	return changed
}

func (t *Tx) flush() error {
	if t.punchesDirty {
		if err := put(t.txn, KeyPunches, nonNil(t.punches)); err != nil {
			return err
		}
	}
	if t.badgesDirty {
		if err := put(t.txn, KeyBadges, nonNil(t.badges)); err != nil {
			return err
		}
	}
	if t.notesDirty {
		if err := put(t.txn, KeyNotes, nonNil(t.notes)); err != nil {
			return err
		}
	}
	if t.configDirty && t.config != nil {
		if err := put(t.txn, KeyDeviceConfig, *t.config); err != nil {
			return err
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
