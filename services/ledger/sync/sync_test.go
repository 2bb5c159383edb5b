// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/badges"
	"github.com/bfa-sv/punchledger/services/ledger/observability"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
	"github.com/bfa-sv/punchledger/services/ledger/remote/remotetest"
	"github.com/bfa-sv/punchledger/services/ledger/store"
	badgerdb "github.com/bfa-sv/punchledger/services/ledger/storage/badger"
)

var sv = time.FixedZone("CST", -6*3600)

func at(d, h, m int) time.Time {
	return time.Date(2026, 3, d, h, m, 0, 0, sv)
}

func punch(id string, typ ledger.PunchType, ts time.Time) ledger.Punch {
	return ledger.Punch{ID: id, EmployeeCode: "1001", Type: typ, Timestamp: ts, DeviceType: ledger.DeviceDesktop}
}

type fixture struct {
	store   *store.Store
	gateway *remotetest.Fake
	rec     *Reconciler
	metrics *observability.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	st := store.New(db, nil)
	require.NoError(t, st.SaveDeviceConfig(ctx, ledger.DeviceConfig{DeviceID: "dev-1", EmployeeCode: "1001"}))

	gw := remotetest.New()
	gw.AddEmployee(remote.EmployeeRecord{Code: "1001", Name: "Ana", Active: true})

	m := observability.NewMetrics(prometheus.NewRegistry())
	return fixture{
		store:   st,
		gateway: gw,
		rec:     NewReconciler(st, gw, WithMetrics(m)),
		metrics: m,
	}
}

func TestRun_InsertsUnknownRemotePunchesAsSynced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.AppendPunch(ctx, punch("local-exit", ledger.PunchExit, at(3, 17, 0))))
	_, err := f.store.MarkSynced(ctx, "local-exit")
	require.NoError(t, err)
	f.gateway.SeedPunch(punch("remote-entry", ledger.PunchEntry, at(3, 8, 0)))
	f.gateway.SeedPunch(punch("local-exit", ledger.PunchExit, at(3, 17, 0)))

	res, err := f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewPunches)
	assert.Equal(t, 0, res.Confirmed)

	punches := f.store.Punches(ctx)
	require.Len(t, punches, 2)
	assert.Equal(t, "remote-entry", punches[0].ID, "collection re-sorted ascending")
	assert.True(t, punches[0].Synced)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SyncNewPunches))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SyncPasses.WithLabelValues(observability.SyncStatusSuccess)))
}

func TestRun_FlipsSyncedWithoutTouchingOtherFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	local := punch("p1", ledger.PunchEntry, at(4, 8, 45))
	local.IsLate = true
	local.Comments = "tráfico"
	require.NoError(t, f.store.AppendPunch(ctx, local))

	mirror := local
	mirror.IsLate = false
	mirror.Comments = "edited remotely"
	f.gateway.SeedPunch(mirror)
	// The pending push would overwrite the mirror; make it fail so only
	// the pull path is exercised.
	f.gateway.Fail(remote.OpUpsertPunch, &remote.TransportError{Op: remote.OpUpsertPunch, Err: errors.New("down")})

	res, err := f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewPunches)
	assert.Equal(t, 1, res.Confirmed)

	got := f.store.Punches(ctx)
	require.Len(t, got, 1)
	assert.True(t, got[0].Synced)
	assert.True(t, got[0].IsLate)
	assert.Equal(t, "tráfico", got[0].Comments)
}

func TestRun_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	late := punch("r1", ledger.PunchEntry, at(2, 9, 0))
	late.IsLate = true
	f.gateway.SeedPunch(late)
	f.gateway.SeedPunch(punch("r2", ledger.PunchExit, at(2, 16, 0)))

	first, err := f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.NewPunches)
	before := f.store.Punches(ctx)

	second, err := f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewPunches)
	assert.False(t, second.Changed())
	assert.Equal(t, before, f.store.Punches(ctx))
}

func TestRun_PushesPendingPunches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.AppendPunch(ctx, punch("offline-1", ledger.PunchEntry, at(5, 8, 0))))

	res, err := f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PushedPunches)
	assert.Equal(t, 1, res.Confirmed)

	_, ok := f.gateway.Punch("offline-1")
	assert.True(t, ok)
	assert.True(t, f.store.Punches(ctx)[0].Synced)
}

func TestRun_MergesBadgesWithCatalogMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	earned := at(1, 20, 0)
	f.gateway.SeedBadge(remote.BadgeRecord{ID: "b-remote", EmployeeCode: "1001", BadgeID: badges.NightOwl, EarnedAt: earned})
	f.gateway.SeedBadge(remote.BadgeRecord{ID: "b-x", EmployeeCode: "1001", BadgeID: "retired_badge", EarnedAt: earned})

	res, err := f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewBadges)

	held := f.store.Badges(ctx)
	require.Len(t, held, 1)
	assert.Equal(t, "b-remote", held[0].ID)
	assert.Equal(t, "Noctámbulo", held[0].Name)
	assert.True(t, held[0].EarnedAt.Equal(earned))

	res, err = f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewBadges)
	assert.Len(t, f.store.Badges(ctx), 1)
}

func TestRun_PushesLocalBadgesMissingRemotely(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	def, _ := badges.Lookup(badges.EarlyBird)
	require.NoError(t, f.store.SaveBadges(ctx, []ledger.Badge{def.Badge("1001", at(4, 7, 30))}))

	res, err := f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PushedBadges)
	require.Len(t, f.gateway.Badges(), 1)
	assert.Equal(t, badges.EarlyBird, f.gateway.Badges()[0].BadgeID)
}

func TestRun_PullFailureLeavesLocalUntouched(t *testing.T) {
	for _, op := range []string{remote.OpQueryBadges, remote.OpQueryPunches} {
		t.Run(op, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.gateway.SeedPunch(punch("r1", ledger.PunchEntry, at(2, 8, 0)))
			f.gateway.SeedBadge(remote.BadgeRecord{EmployeeCode: "1001", BadgeID: badges.NightOwl})
			f.gateway.Fail(op, &remote.TransportError{Op: op, Transport: "fake", Err: errors.New("timeout")})

			res, err := f.rec.Run(ctx)
			require.Error(t, err)
			assert.True(t, remote.IsTransport(err))
			assert.Equal(t, Result{}, res)
			assert.Empty(t, f.store.Punches(ctx))
			assert.Empty(t, f.store.Badges(ctx))
			assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SyncPasses.WithLabelValues(observability.SyncStatusOffline)))
		})
	}
}

func TestRun_InactiveEmployeeDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.AddEmployee(remote.EmployeeRecord{Code: "1001", Active: false})
	f.gateway.SeedPunch(punch("r1", ledger.PunchEntry, at(2, 8, 0)))

	_, err := f.rec.Run(ctx)
	assert.ErrorIs(t, err, remote.ErrAccessDenied)
	assert.Empty(t, f.store.Punches(ctx))
	assert.Equal(t, 0, f.gateway.Calls(remote.OpQueryPunches))
}

func TestRun_MasterUnreachableContinues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.Fail(remote.OpLookupEmployee, &remote.TransportError{Op: remote.OpLookupEmployee, Err: errors.New("dns")})
	f.gateway.SeedPunch(punch("r1", ledger.PunchEntry, at(2, 8, 0)))

	res, err := f.rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewPunches)
}

func TestRun_RequiresDevice(t *testing.T) {
	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	rec := NewReconciler(store.New(db, nil), remotetest.New())
	_, err = rec.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestRun_OfflineOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := NewReconciler(f.store, nil)

	_, err := rec.Run(ctx)
	assert.ErrorIs(t, err, remote.ErrNotConfigured)
}

func TestRun_RespectsPunchLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.gateway.SeedPunch(punch(ledger.NewID(), ledger.PunchEntry, at(1+i, 8, 0)))
	}
	rec := NewReconciler(f.store, f.gateway, WithPunchLimit(3))

	res, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.NewPunches)
}

func TestScheduler_RunsImmediatelyAndStops(t *testing.T) {
	f := newFixture(t)
	f.gateway.SeedPunch(punch("r1", ledger.PunchEntry, at(2, 8, 0)))

	results := make(chan Result, 4)
	s := NewScheduler(f.rec, time.Hour, func(_ context.Context, res Result) { results <- res }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "second start rejected")

	select {
	case res := <-results:
		assert.Equal(t, 1, res.NewPunches)
	case <-time.After(5 * time.Second):
		t.Fatal("initial pass did not run")
	}

	s.Stop()
	s.Stop()
}

func TestScheduler_RunNow(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler(f.rec, 0, nil, nil)
	assert.Equal(t, DefaultInterval, s.interval)

	res, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Changed())
}

func TestScheduler_RestartsAfterContextCancel(t *testing.T) {
	f := newFixture(t)
	results := make(chan Result, 4)
	s := NewScheduler(f.rec, time.Hour, func(_ context.Context, res Result) { results <- res }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	select {
	case <-results:
	case <-time.After(5 * time.Second):
		t.Fatal("initial pass did not run")
	}
	cancel()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.running
	}, 5*time.Second, 10*time.Millisecond)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	require.NoError(t, s.Start(ctx2), "start after cancelled context")
	select {
	case <-results:
	case <-time.After(5 * time.Second):
		t.Fatal("restarted loop did not run a pass")
	}
	s.Stop()
}
