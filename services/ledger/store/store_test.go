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
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfa-sv/punchledger/services/ledger"
	badgerdb "github.com/bfa-sv/punchledger/services/ledger/storage/badger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil)
}

func samplePunch(id string, at time.Time) ledger.Punch {
	return ledger.Punch{ID: id, EmployeeCode: "1001", Type: ledger.PunchEntry, Timestamp: at}
}

func TestStore_EmptyOnFirstRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok := s.DeviceConfig(ctx)
	assert.False(t, ok)
	assert.Empty(t, s.Punches(ctx))
	assert.NotNil(t, s.Punches(ctx))
	assert.Empty(t, s.Notes(ctx))
	assert.Empty(t, s.Badges(ctx))
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC)

	cfg := ledger.DeviceConfig{DeviceID: "dev-1", EmployeeCode: "1001", OfficeLat: 13.6929, OfficeLng: -89.2182}
	require.NoError(t, s.SaveDeviceConfig(ctx, cfg))
	require.NoError(t, s.AppendPunch(ctx, samplePunch("p1", now)))
	require.NoError(t, s.AppendNote(ctx, ledger.Note{ID: "n1", EmployeeCode: "1001", Category: ledger.NoteGeneral, Content: "hola"}))
	require.NoError(t, s.SaveBadges(ctx, []ledger.Badge{{ID: "b1", BadgeID: "night_owl"}}))

	got, ok := s.DeviceConfig(ctx)
	require.True(t, ok)
	assert.Equal(t, cfg, got)

	punches := s.Punches(ctx)
	require.Len(t, punches, 1)
	assert.Equal(t, "p1", punches[0].ID)
	assert.True(t, punches[0].Timestamp.Equal(now))
	assert.Len(t, s.Notes(ctx), 1)
	assert.Len(t, s.Badges(ctx), 1)
}

func TestStore_AppendPunchRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.AppendPunch(ctx, samplePunch("p1", now)))
	err := s.AppendPunch(ctx, samplePunch("p1", now.Add(time.Hour)))
	require.ErrorIs(t, err, ErrDuplicateID)
	assert.NotErrorIs(t, err, ErrPersist)
	assert.Len(t, s.Punches(ctx), 1)
}

// TestStore_CorruptCollectionIsolated verifies a corrupt collection reads as
// empty while the others keep working.
func TestStore_CorruptCollectionIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBadges(ctx, []ledger.Badge{{ID: "b1", BadgeID: "early_bird"}}))
	require.NoError(t, s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(KeyPunches), []byte("{not json"))
	}))

	assert.Empty(t, s.Punches(ctx))
	assert.Len(t, s.Badges(ctx), 1)

	// A write replaces the corrupt value.
	require.NoError(t, s.AppendPunch(ctx, samplePunch("p1", time.Now())))
	assert.Len(t, s.Punches(ctx), 1)
}

func TestStore_UnavailableDegrades(t *testing.T) {
	s := New(nil, nil)
	ctx := context.Background()

	assert.Empty(t, s.Punches(ctx))
	_, ok := s.DeviceConfig(ctx)
	assert.False(t, ok)

	err := s.AppendPunch(ctx, samplePunch("p1", time.Now()))
	require.ErrorIs(t, err, ErrPersist)
}

func TestStore_MarkSyncedOnlyFlipsFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	p := samplePunch("p1", now)
	p.IsLate = true
	p.Comments = "tráfico"
	require.NoError(t, s.AppendPunch(ctx, p))
	require.NoError(t, s.AppendPunch(ctx, samplePunch("p2", now.Add(time.Minute))))

	n, err := s.MarkSynced(ctx, "p1", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	punches := s.Punches(ctx)
	assert.True(t, punches[0].Synced)
	assert.True(t, punches[0].IsLate)
	assert.Equal(t, "tráfico", punches[0].Comments)
	assert.False(t, punches[1].Synced)

	// Already synced punches are not counted again.
	n, err = s.MarkSynced(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// TestStore_UpdateAtomic verifies an Update that fails writes nothing.
func TestStore_UpdateAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		tx.SetBadges(append(tx.Badges(), ledger.Badge{ID: "b1", BadgeID: "night_owl"}))
		tx.SetPunches(append(tx.Punches(), samplePunch("p1", time.Now())))
		return assert.AnError
	})
	require.ErrorIs(t, err, ErrPersist)
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, s.Badges(ctx))
	assert.Empty(t, s.Punches(ctx))

	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		tx.SetBadges(append(tx.Badges(), ledger.Badge{ID: "b1", BadgeID: "night_owl"}))
		tx.SetPunches(append(tx.Punches(), samplePunch("p1", time.Now())))
		return nil
	}))
	assert.Len(t, s.Badges(ctx), 1)
	assert.Len(t, s.Punches(ctx), 1)
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDeviceConfig(ctx, ledger.DeviceConfig{EmployeeCode: "1001"}))
	require.NoError(t, s.AppendPunch(ctx, samplePunch("p1", time.Now())))
	require.NoError(t, s.Reset(ctx))

	_, ok := s.DeviceConfig(ctx)
	assert.False(t, ok)
	assert.Empty(t, s.Punches(ctx))
}
