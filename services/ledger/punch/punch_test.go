// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package punch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfa-sv/punchledger/pkg/geo"
	"github.com/bfa-sv/punchledger/pkg/geo/geotest"
	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/badges"
	"github.com/bfa-sv/punchledger/services/ledger/observability"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
	"github.com/bfa-sv/punchledger/services/ledger/remote/remotetest"
	"github.com/bfa-sv/punchledger/services/ledger/store"
	badgerdb "github.com/bfa-sv/punchledger/services/ledger/storage/badger"
	"github.com/bfa-sv/punchledger/services/ledger/validator"
)

var (
	sv     = time.FixedZone("CST", -6*3600)
	office = geo.Coordinate{Lat: 13.6929, Lng: -89.2182}
)

func at(d, h, m int) time.Time {
	return time.Date(2026, 3, d, h, m, 0, 0, sv)
}

// stepClock is a settable clock.
type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

type fixture struct {
	store   *store.Store
	gateway *remotetest.Fake
	clock   *stepClock
	fix     *geo.Fix
	metrics *observability.Metrics
	rec     *Recorder
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	st := store.New(db, nil)
	require.NoError(t, st.SaveDeviceConfig(ctx, ledger.DeviceConfig{
		DeviceID:     "dev-1",
		EmployeeCode: "1001",
		OfficeLat:    office.Lat,
		OfficeLng:    office.Lng,
	}))

	gw := remotetest.New()
	gw.AddEmployee(remote.EmployeeRecord{Code: "1001", Active: true})

	f := &fixture{
		store:   st,
		gateway: gw,
		clock:   &stepClock{now: now},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}
	f.moveTo(100)
	locator := geo.LocatorFunc(func(ctx context.Context) (geo.Fix, error) {
		if f.fix == nil {
			return geo.Fix{}, &geo.LocationError{Kind: geo.KindTimeout}
		}
		return *f.fix, nil
	})
	engine := badges.NewEngine(st, gw, badges.WithClock(f.clock), badges.WithLocation(sv))
	f.rec = NewRecorder(st, gw, locator,
		WithClock(f.clock),
		WithLocation(sv),
		WithBadgeEngine(engine),
		WithMetrics(f.metrics),
	)
	return f
}

// moveTo places the device meters north of the office.
func (f *fixture) moveTo(meters float64) {
	f.fix = &geo.Fix{Coordinate: geotest.Offset(office, meters, 0), Accuracy: 12}
}

func (f *fixture) punch(t *testing.T, typ ledger.PunchType, details Details) (Outcome, error) {
	t.Helper()
	d, err := f.rec.Prepare(context.Background(), typ)
	require.NoError(t, err)
	return f.rec.Commit(context.Background(), d, details)
}

func TestCommit_FarEntryDeniedThenLateEntryRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 8, 0))
	f.gateway.TransportDown()
	f.moveTo(600)

	d, err := f.rec.Prepare(ctx, ledger.PunchEntry)
	require.NoError(t, err)
	assert.False(t, d.Ready())
	den, ok := validator.AsDenial(d.Denial)
	require.True(t, ok)
	assert.Equal(t, validator.CodeOutOfRange, den.Code)

	_, err = f.rec.Commit(ctx, d, Details{})
	assert.ErrorIs(t, err, validator.ErrDenied)
	assert.Empty(t, f.store.Punches(ctx))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PunchDenied.WithLabelValues("out_of_range")))

	f.clock.now = at(10, 8, 45)
	f.moveTo(100)
	out, err := f.punch(t, ledger.PunchEntry, Details{})
	require.NoError(t, err)
	assert.True(t, out.Punch.IsLate)
	assert.False(t, out.Uploaded)
	assert.True(t, out.MasterUnverified)

	stored := f.store.Punches(ctx)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Synced)
	assert.True(t, stored[0].IsLate)
	assert.Equal(t, ledger.DeviceMobile, stored[0].DeviceType)
}

func TestCommit_UploadsAndMarksSynced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 8, 10))

	out, err := f.punch(t, ledger.PunchEntry, Details{Comments: "puntual"})
	require.NoError(t, err)
	assert.True(t, out.Uploaded)
	assert.True(t, out.Punch.Synced)
	assert.False(t, out.Punch.IsLate)

	stored := f.store.Punches(ctx)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Synced)
	assert.Equal(t, "puntual", stored[0].Comments)

	remotePunch, ok := f.gateway.Punch(out.Punch.ID)
	require.True(t, ok)
	assert.Equal(t, out.Punch.GPSLat, remotePunch.GPSLat)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PunchRecorded.WithLabelValues("entry")))
}

func TestCommit_InactiveEmployeeDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 8, 0))
	f.gateway.AddEmployee(remote.EmployeeRecord{Code: "1001", Active: false})

	_, err := f.punch(t, ledger.PunchEntry, Details{})
	require.ErrorIs(t, err, remote.ErrAccessDenied)
	assert.Contains(t, err.Error(), "ACCESO DENEGADO")
	assert.Empty(t, f.store.Punches(ctx))
	assert.Equal(t, 0, f.gateway.Calls(remote.OpUpsertPunch))
}

func TestCommit_RevalidatesAgainstFreshLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 8, 0))

	d1, err := f.rec.Prepare(ctx, ledger.PunchEntry)
	require.NoError(t, err)
	d2, err := f.rec.Prepare(ctx, ledger.PunchEntry)
	require.NoError(t, err)
	require.True(t, d2.Ready())

	_, err = f.rec.Commit(ctx, d1, Details{})
	require.NoError(t, err)

	_, err = f.rec.Commit(ctx, d2, Details{})
	den, ok := validator.AsDenial(err)
	require.True(t, ok)
	assert.Equal(t, validator.CodeAlreadyEntered, den.Code)
	assert.Len(t, f.store.Punches(ctx), 1)
}

func TestCommit_LocationFailureThenRelocate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 8, 0))
	f.fix = nil

	d, err := f.rec.Prepare(ctx, ledger.PunchEntry)
	require.NoError(t, err)
	require.Error(t, d.LocationErr)
	le, ok := geo.AsLocationError(d.LocationErr)
	require.True(t, ok)
	assert.Equal(t, geo.KindTimeout, le.Kind)

	_, err = f.rec.Commit(ctx, d, Details{})
	assert.ErrorIs(t, err, ErrNoLocation)

	f.moveTo(50)
	require.NoError(t, d.Relocate(ctx))
	assert.True(t, d.Ready())
	require.NotNil(t, d.Distance)
	assert.InDelta(t, 50, *d.Distance, 1)

	_, err = f.rec.Commit(ctx, d, Details{})
	require.NoError(t, err)
}

func TestCommit_FieldsKeptOnlyForTheirType(t *testing.T) {
	f := newFixture(t, at(10, 8, 0))
	details := Details{
		Reason:       ledger.ReasonMedical,
		AuthorizedBy: "Jefe",
		Mood:         ledger.MoodTired,
	}

	entry, err := f.punch(t, ledger.PunchEntry, details)
	require.NoError(t, err)
	assert.Empty(t, entry.Punch.Reason)
	assert.Empty(t, entry.Punch.AuthorizedBy)
	assert.Empty(t, entry.Punch.Mood)

	f.clock.now = at(10, 11, 0)
	occ, err := f.punch(t, ledger.PunchOccasionalExit, details)
	require.NoError(t, err)
	assert.Equal(t, string(ledger.ReasonMedical), occ.Punch.Reason)
	assert.Equal(t, "Jefe", occ.Punch.AuthorizedBy)
	assert.Empty(t, occ.Punch.Mood)

	f.clock.now = at(10, 12, 0)
	ret, err := f.punch(t, ledger.PunchEntry, Details{})
	require.NoError(t, err)
	assert.False(t, ret.Punch.IsLate, "return from occasional exit is never late")

	f.clock.now = at(10, 16, 0)
	exit, err := f.punch(t, ledger.PunchExit, details)
	require.NoError(t, err)
	assert.True(t, exit.Punch.IsEarly)
	assert.Equal(t, ledger.MoodTired, exit.Punch.Mood)
	assert.Empty(t, exit.Punch.Reason)
}

func TestCommit_OccasionalReasonDefaults(t *testing.T) {
	f := newFixture(t, at(10, 8, 0))
	_, err := f.punch(t, ledger.PunchEntry, Details{})
	require.NoError(t, err)

	f.clock.now = at(10, 10, 0)
	occ, err := f.punch(t, ledger.PunchOccasionalExit, Details{})
	require.NoError(t, err)
	assert.Equal(t, string(ledger.ReasonPersonal), occ.Punch.Reason)
}

func TestCommit_RunsBadgeEngine(t *testing.T) {
	f := newFixture(t, at(10, 8, 0))
	_, err := f.punch(t, ledger.PunchEntry, Details{})
	require.NoError(t, err)

	f.clock.now = at(10, 19, 5)
	out, err := f.punch(t, ledger.PunchExit, Details{})
	require.NoError(t, err)
	require.Len(t, out.Badges, 1)
	assert.Equal(t, badges.NightOwl, out.Badges[0].BadgeID)
}

func TestCommit_PersistFailureReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 8, 0))
	d, err := f.rec.Prepare(ctx, ledger.PunchEntry)
	require.NoError(t, err)

	broken := NewRecorder(store.New(nil, nil), f.gateway, nil, WithClock(f.clock), WithLocation(sv))
	_, err = broken.Commit(ctx, d, Details{})
	assert.ErrorIs(t, err, store.ErrPersist)
	assert.Equal(t, 0, f.gateway.Calls(remote.OpUpsertPunch))
}

func TestCommit_RejectsUnknownMood(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 8, 0))
	d, err := f.rec.Prepare(ctx, ledger.PunchEntry)
	require.NoError(t, err)

	_, err = f.rec.Commit(ctx, d, Details{Mood: "angry"})
	assert.Error(t, err)
	assert.Empty(t, f.store.Punches(ctx))
}

func TestPrepare_RequiresDevice(t *testing.T) {
	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	rec := NewRecorder(store.New(db, nil), nil, geo.StaticLocator{})
	_, err = rec.Prepare(context.Background(), ledger.PunchEntry)
	assert.True(t, errors.Is(err, ErrNoDevice))
}

func TestSuggest(t *testing.T) {
	entry := ledger.Punch{Type: ledger.PunchEntry, Timestamp: at(10, 8, 0)}
	occasional := ledger.Punch{Type: ledger.PunchOccasionalExit, Timestamp: at(10, 11, 0)}
	exit := ledger.Punch{Type: ledger.PunchExit, Timestamp: at(10, 17, 0)}

	tests := []struct {
		name  string
		now   time.Time
		today []ledger.Punch
		want  ledger.PunchType
	}{
		{"nothing yet", at(10, 7, 0), nil, ledger.PunchEntry},
		{"mid-day after entry", at(10, 12, 0), []ledger.Punch{entry}, ledger.PunchOccasionalExit},
		{"end of day after entry", at(10, 15, 30), []ledger.Punch{entry}, ledger.PunchExit},
		{"out before four", at(10, 13, 0), []ledger.Punch{entry, occasional}, ledger.PunchEntry},
		{"out after four", at(10, 16, 5), []ledger.Punch{occasional, entry}, ledger.PunchExit},
		{"day finished", at(10, 18, 0), []ledger.Punch{entry, exit}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Suggest(tt.now, tt.today)
			assert.Equal(t, tt.want, got.Type)
			assert.NotEmpty(t, got.Title)
		})
	}
}
