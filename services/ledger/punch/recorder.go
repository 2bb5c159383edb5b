// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package punch implements the punch commit workflow.
//
// # Description
//
// A punch is recorded in two steps. Prepare loads the device
// configuration, reads a location fix and previews the validator decision
// so the caller can show the late/early flags and any denial before the
// user confirms. Commit repeats every check against a fresh read of the
// local ledger, re-verifies the employee against the remote master, writes
// the punch locally, uploads it best-effort and runs the badge engine.
//
// # Failure Model
//
//   - Validation denials and a missing location fix abort before any write.
//   - remote.ErrAccessDenied from the master aborts before any write.
//   - A master transport failure is tolerated; the punch is recorded and
//     the next sync pass re-checks the master.
//   - store.ErrPersist aborts the commit and is reported to the caller.
//   - Upload and badge failures after the local write are logged only.
package punch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bfa-sv/punchledger/pkg/geo"
	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/badges"
	"github.com/bfa-sv/punchledger/services/ledger/observability"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
	"github.com/bfa-sv/punchledger/services/ledger/store"
	"github.com/bfa-sv/punchledger/services/ledger/validator"
)

var (
	// ErrNoDevice is returned before the device has been configured.
	ErrNoDevice = errors.New("device not configured")

	// ErrNoLocation is returned by Commit when the draft has no fix.
	ErrNoLocation = errors.New("location fix required")
)

// AccessDeniedMessage is shown when the master reports the code inactive.
const AccessDeniedMessage = "ACCESO DENEGADO: Su código de empleado no se encuentra activo en el maestro de personal. Contacte a RRHH."

// Recorder runs the commit workflow for the configured employee.
type Recorder struct {
	store   *store.Store
	gateway remote.Gateway
	locator geo.Locator
	engine  *badges.Engine
	policy  validator.Policy
	clock   ledger.Clock
	loc     *time.Location
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithPolicy overrides validator.DefaultPolicy.
func WithPolicy(p validator.Policy) Option { return func(r *Recorder) { r.policy = p } }

// WithClock sets the clock.
func WithClock(c ledger.Clock) Option { return func(r *Recorder) { r.clock = c } }

// WithLocation sets the device time zone.
func WithLocation(loc *time.Location) Option {
	return func(r *Recorder) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithBadgeEngine sets the engine run after each commit.
func WithBadgeEngine(e *badges.Engine) Option { return func(r *Recorder) { r.engine = e } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option { return func(r *Recorder) { r.metrics = m } }

// NewRecorder builds a Recorder. A nil gateway means offline.
func NewRecorder(st *store.Store, gw remote.Gateway, locator geo.Locator, opts ...Option) *Recorder {
	if gw == nil {
		gw = remote.Offline{}
	}
	r := &Recorder{
		store:   st,
		gateway: gw,
		locator: locator,
		policy:  validator.DefaultPolicy,
		clock:   ledger.SystemClock{},
		loc:     time.Local,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "punch_recorder")
	return r
}

// Draft is a prepared punch awaiting confirmation.
type Draft struct {
	Type   ledger.PunchType
	Config ledger.DeviceConfig

	// Fix is nil until a location has been read successfully.
	Fix *geo.Fix
	// LocationErr holds the last capability failure, if any.
	LocationErr error

	// Distance from the office, nil without an office or a fix.
	Distance *float64

	// Decision and Denial preview the validator outcome at PreparedAt.
	Decision   validator.Decision
	Denial     error
	PreparedAt time.Time

	rec *Recorder
}

// Ready reports whether the draft can be committed.
func (d *Draft) Ready() bool {
	return d.Fix != nil && d.Denial == nil
}

// Prepare starts a punch of type typ.
//
// Location failures do not fail Prepare; they are kept on the draft and
// Relocate retries them. Only a missing device configuration is an error.
func (r *Recorder) Prepare(ctx context.Context, typ ledger.PunchType) (*Draft, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown punch type %q", typ)
	}
	cfg, ok := r.store.DeviceConfig(ctx)
	if !ok {
		return nil, ErrNoDevice
	}
	d := &Draft{Type: typ, Config: cfg, rec: r}
	d.locate(ctx)
	d.preview(ctx)
	return d, nil
}

// Relocate reads the location again and refreshes the preview.
func (d *Draft) Relocate(ctx context.Context) error {
	d.locate(ctx)
	d.preview(ctx)
	return d.LocationErr
}

func (d *Draft) locate(ctx context.Context) {
	d.Fix, d.Distance, d.LocationErr = nil, nil, nil
	if d.rec.locator == nil {
		d.LocationErr = &geo.LocationError{Kind: geo.KindPositionUnavailable, Err: errors.New("no locator")}
		return
	}
	fix, err := d.rec.locator.CurrentLocation(ctx)
	if err != nil {
		if _, ok := geo.AsLocationError(err); !ok {
			err = &geo.LocationError{Kind: geo.KindOther, Err: err}
		}
		d.LocationErr = err
		d.rec.logger.Warn("location unavailable", "error", err)
		return
	}
	d.Fix = &fix
	d.Distance = distance(d.Config, fix)
}

func (d *Draft) preview(ctx context.Context) {
	now := d.rec.clock.Now()
	d.PreparedAt = now
	d.Decision, d.Denial = d.rec.validate(ctx, d.Config.EmployeeCode, d.Type, now, d.Distance)
}

func distance(cfg ledger.DeviceConfig, fix geo.Fix) *float64 {
	if !cfg.HasOffice() {
		return nil
	}
	m := geo.DistanceMeters(geo.Coordinate{Lat: cfg.OfficeLat, Lng: cfg.OfficeLng}, fix.Coordinate)
	return &m
}

func (r *Recorder) validate(ctx context.Context, code string, typ ledger.PunchType, now time.Time, dist *float64) (validator.Decision, error) {
	today := validator.TodaysPunches(r.store.Punches(ctx), code, now, r.loc)
	return r.policy.Validate(validator.Request{
		EmployeeCode:   code,
		Type:           typ,
		Now:            now,
		Location:       r.loc,
		Today:          today,
		DistanceMeters: dist,
	})
}

// Details are the user-entered fields of a punch.
type Details struct {
	Comments string
	// Reason and AuthorizedBy are kept only on occasional exits. An empty
	// reason defaults to ledger.ReasonPersonal.
	Reason       ledger.OccasionalReason
	AuthorizedBy string
	// Mood is kept only on exits.
	Mood       ledger.Mood
	DeviceType ledger.DeviceType
}

// Outcome describes a committed punch.
type Outcome struct {
	Punch ledger.Punch
	// Uploaded is true when the remote ledger confirmed the punch.
	Uploaded bool
	// MasterUnverified is true when the master could not be reached.
	MasterUnverified bool
	// Badges lists badges awarded by this punch.
	Badges []ledger.Badge
}

// Commit records the drafted punch.
//
// Description:
//
//	Re-reads today's punches and re-applies sequencing and the geofence
//	at the commit instant, so a punch recorded elsewhere in the meantime
//	is taken into account. Then verifies the master, appends the punch
//	with synced=false, uploads it, flips synced on success and evaluates
//	badges.
//
// Outputs:
//
//	Outcome - The stored punch and post-commit status.
//	error - *validator.Denial, ErrNoLocation, remote.ErrAccessDenied or
//	        store.ErrPersist. Nothing is written when error is non-nil.
func (r *Recorder) Commit(ctx context.Context, d *Draft, details Details) (Outcome, error) {
	if d == nil || d.Fix == nil {
		var locErr error
		if d != nil {
			locErr = d.LocationErr
		}
		return Outcome{}, errors.Join(ErrNoLocation, locErr)
	}
	if !details.Mood.Valid() {
		return Outcome{}, fmt.Errorf("unknown mood %q", details.Mood)
	}

	code := d.Config.EmployeeCode
	now := r.clock.Now()
	decision, err := r.validate(ctx, code, d.Type, now, d.Distance)
	if err != nil {
		r.deny(code, err)
		return Outcome{}, err
	}

	var out Outcome
	out.MasterUnverified, err = r.verifyMaster(ctx, code)
	if err != nil {
		r.metrics.RecordDenial("access_denied")
		return Outcome{}, fmt.Errorf("%s: %w", AccessDeniedMessage, err)
	}

	p := r.build(d, details, decision, now)
	if err := r.store.AppendPunch(ctx, p); err != nil {
		r.logger.Error("punch not saved", "punch_id", p.ID, "error", err)
		return Outcome{}, fmt.Errorf("save punch: %w", err)
	}
	r.metrics.RecordPunch(d.Type.Slug())
	r.logger.Info("punch recorded",
		"employee_code", code,
		"punch_id", p.ID,
		"type", d.Type.Slug(),
		"is_late", p.IsLate,
		"is_early", p.IsEarly,
	)

	out.Uploaded = r.upload(ctx, p, d.Config.DeviceID)
	if out.Uploaded {
		p.Synced = true
	}
	out.Punch = p

	if r.engine != nil {
		awarded, err := r.engine.Evaluate(ctx, code)
		if err != nil {
			r.logger.Warn("badge evaluation failed", "employee_code", code, "error", err)
		}
		out.Badges = awarded
	}
	return out, nil
}

// verifyMaster reports whether the master check was skipped because the
// remote ledger was unreachable. It errors only on a definitive denial.
func (r *Recorder) verifyMaster(ctx context.Context, code string) (bool, error) {
	if !r.gateway.Configured() {
		return false, nil
	}
	_, err := r.gateway.LookupEmployee(ctx, code)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, remote.ErrAccessDenied):
		r.logger.Warn("employee inactive in master, punch refused", "employee_code", code)
		return false, err
	default:
		r.logger.Warn("master unreachable, recording optimistically", "employee_code", code, "error", err)
		return true, nil
	}
}

func (r *Recorder) build(d *Draft, details Details, decision validator.Decision, now time.Time) ledger.Punch {
	deviceType := details.DeviceType
	if deviceType == "" {
		deviceType = ledger.DeviceMobile
	}
	p := ledger.Punch{
		ID:           ledger.NewID(),
		EmployeeCode: d.Config.EmployeeCode,
		Timestamp:    now,
		Type:         d.Type,
		GPSLat:       d.Fix.Lat,
		GPSLng:       d.Fix.Lng,
		GeoAccuracy:  d.Fix.Accuracy,
		Comments:     details.Comments,
		IsLate:       decision.IsLate,
		IsEarly:      decision.IsEarly,
		DeviceType:   deviceType,
	}
	switch d.Type {
	case ledger.PunchOccasionalExit:
		p.Reason = string(details.Reason)
		if p.Reason == "" {
			p.Reason = string(ledger.ReasonPersonal)
		}
		p.AuthorizedBy = details.AuthorizedBy
	case ledger.PunchExit:
		p.Mood = details.Mood
	}
	return p
}

// upload pushes p and flips its local synced flag on success.
func (r *Recorder) upload(ctx context.Context, p ledger.Punch, deviceID string) bool {
	if !r.gateway.Configured() {
		return false
	}
	if err := r.gateway.UpsertPunch(ctx, p, deviceID); err != nil {
		r.logger.Warn("punch kept locally for next sync", "punch_id", p.ID, "error", err)
		return false
	}
	if _, err := r.store.MarkSynced(ctx, p.ID); err != nil {
		r.logger.Warn("synced flag not saved", "punch_id", p.ID, "error", err)
		return false
	}
	return true
}

func (r *Recorder) deny(code string, err error) {
	if d, ok := validator.AsDenial(err); ok {
		r.metrics.RecordDenial(string(d.Code))
		r.logger.Info("punch denied", "employee_code", code, "code", string(d.Code))
	}
}
