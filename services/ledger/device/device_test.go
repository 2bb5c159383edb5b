// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
	"github.com/bfa-sv/punchledger/services/ledger/remote/remotetest"
	"github.com/bfa-sv/punchledger/services/ledger/store"
	badgerdb "github.com/bfa-sv/punchledger/services/ledger/storage/badger"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(db, nil)
}

func validInput() Input {
	return Input{
		EmployeeCode:  " 1001 ",
		EmployeeName:  "Ana López",
		AssignedPhone: "7012 3456",
		OfficeLat:     DefaultOfficeLat,
		OfficeLng:     DefaultOfficeLng,
	}
}

func TestConfigure_StoresNormalizedConfig(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	svc := NewService(st, nil, ledger.FixedClock(now), nil)

	cfg, err := svc.Configure(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, "1001", cfg.EmployeeCode)
	assert.Equal(t, "+50370123456", cfg.AssignedPhone)
	assert.NotEmpty(t, cfg.DeviceID)
	assert.True(t, cfg.ConfiguredAt.Equal(now))

	stored, ok := svc.Current(ctx)
	require.True(t, ok)
	assert.Equal(t, cfg.DeviceID, stored.DeviceID)
}

func TestConfigure_KeepsDeviceID(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newStore(t), nil, nil, nil)

	first, err := svc.Configure(ctx, validInput())
	require.NoError(t, err)

	in := validInput()
	in.EmployeeCode = "2002"
	second, err := svc.Configure(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.DeviceID, second.DeviceID)
	assert.Equal(t, "2002", second.EmployeeCode)
}

func TestConfigure_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"missing code", func(in *Input) { in.EmployeeCode = "  " }},
		{"missing name", func(in *Input) { in.EmployeeName = "" }},
		{"latitude out of range", func(in *Input) { in.OfficeLat = 91 }},
		{"longitude out of range", func(in *Input) { in.OfficeLng = -181 }},
		{"bad phone", func(in *Input) { in.AssignedPhone = "12" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := newStore(t)
			in := validInput()
			tt.mutate(&in)

			_, err := NewService(st, nil, nil, nil).Configure(ctx, in)
			assert.ErrorIs(t, err, ErrInvalid)
			_, ok := st.DeviceConfig(ctx)
			assert.False(t, ok)
		})
	}
}

func TestPrefill(t *testing.T) {
	ctx := context.Background()
	gw := remotetest.New()
	gw.AddEmployee(remote.EmployeeRecord{
		Code: "1001", Name: "Ana López", Position: "Cajera", ImmediateManager: "Luis",
		OfficeLat: 13.7, OfficeLng: -89.2, Active: true,
	})
	gw.AddEmployee(remote.EmployeeRecord{Code: "3003", Name: "Sin Oficina", Active: true})
	svc := NewService(newStore(t), gw, nil, nil)

	in, err := svc.Prefill(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "Cajera", in.Position)
	assert.Equal(t, 13.7, in.OfficeLat)

	in, err = svc.Prefill(ctx, "3003")
	require.NoError(t, err)
	assert.Equal(t, DefaultOfficeLat, in.OfficeLat)

	_, err = svc.Prefill(ctx, "9999")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Prefill(ctx, "")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	svc := NewService(st, nil, nil, nil)
	_, err := svc.Configure(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, st.AppendPunch(ctx, ledger.Punch{ID: "p1", EmployeeCode: "1001"}))

	require.NoError(t, svc.Reset(ctx))
	_, ok := st.DeviceConfig(ctx)
	assert.False(t, ok)
	assert.Empty(t, st.Punches(ctx))
}

func TestNotes_AddWritesThrough(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	_, err := NewService(st, nil, nil, nil).Configure(ctx, validInput())
	require.NoError(t, err)

	gw := remotetest.New()
	notes := NewNotes(st, gw, ledger.FixedClock(now), nil)

	res, err := notes.Add(ctx, ledger.NoteSuggestion, "  más parqueo  ")
	require.NoError(t, err)
	assert.True(t, res.Uploaded)
	assert.Equal(t, "más parqueo", res.Note.Content)
	assert.Equal(t, "1001", res.Note.EmployeeCode)
	assert.Len(t, st.Notes(ctx), 1)
	assert.Len(t, gw.Notes(), 1)
}

func TestNotes_OfflineKeepsLocal(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	_, err := NewService(st, nil, nil, nil).Configure(ctx, validInput())
	require.NoError(t, err)

	gw := remotetest.New()
	gw.TransportDown()
	res, err := NewNotes(st, gw, nil, nil).Add(ctx, ledger.NoteGeneral, "hola")
	require.NoError(t, err)
	assert.False(t, res.Uploaded)
	assert.Len(t, st.Notes(ctx), 1)
}

func TestNotes_Rejects(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	notes := NewNotes(st, nil, nil, nil)

	_, err := notes.Add(ctx, ledger.NoteGeneral, "sin configurar")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = NewService(st, nil, nil, nil).Configure(ctx, validInput())
	require.NoError(t, err)

	_, err = notes.Add(ctx, "Chisme", "x")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = notes.Add(ctx, ledger.NoteGeneral, "   ")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Empty(t, st.Notes(ctx))
}

func TestNotes_Justify(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	_, err := NewService(st, nil, nil, nil).Configure(ctx, validInput())
	require.NoError(t, err)
	notes := NewNotes(st, nil, nil, nil)

	res, err := notes.Justify(ctx, "Tráfico en el bulevar", true, true)
	require.NoError(t, err)
	assert.Equal(t, ledger.NoteJustification, res.Note.Category)
	assert.Equal(t, "Tráfico en el bulevar [Adjunto: Foto] [Adjunto: Audio]", res.Note.Content)

	res, err = notes.Justify(ctx, "Cita", false, true)
	require.NoError(t, err)
	assert.Equal(t, "Cita [Adjunto: Audio]", res.Note.Content)
}
