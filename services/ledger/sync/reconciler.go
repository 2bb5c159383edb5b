// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sync merges the remote ledger's view into the local ledger.
//
// # Description
//
// A pass re-checks the employee master, pushes punches still marked
// unsynced and badges the remote ledger lacks, pulls remote badges and the
// most recent remote punches concurrently, and applies everything in one
// atomic local update: badges first, then punches. Remote data never
// overwrites a field of an existing local punch; remote presence only
// flips synced from false to true.
//
// A pass that cannot pull both collections leaves local state untouched
// and reports zero new punches.
//
// # Thread Safety
//
// Overlapping Run calls share one pass.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/badges"
	"github.com/bfa-sv/punchledger/services/ledger/observability"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
	"github.com/bfa-sv/punchledger/services/ledger/store"
)

var tracer = otel.Tracer("punchledger/sync")

// ErrNoDevice is returned when the device has not been configured yet.
var ErrNoDevice = errors.New("device not configured")

const (
	// DefaultPunchLimit bounds how many remote punches one pass pulls.
	DefaultPunchLimit = remote.DefaultPunchLimit

	pushConcurrency = 4
)

// Result summarizes one pass.
type Result struct {
	// NewPunches counts remote punches inserted locally.
	NewPunches int
	// NewBadges counts remote badges appended locally.
	NewBadges int
	// Confirmed counts local punches whose synced flag flipped.
	Confirmed int
	// PushedPunches and PushedBadges count successful uploads.
	PushedPunches int
	PushedBadges  int
}

// Changed reports whether the pass modified the local ledger.
func (r Result) Changed() bool {
	return r.NewPunches > 0 || r.NewBadges > 0 || r.Confirmed > 0
}

// Reconciler runs sync passes for the device's employee.
type Reconciler struct {
	store      *store.Store
	gateway    remote.Gateway
	punchLimit int
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      ledger.Clock
	flight     singleflight.Group
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPunchLimit overrides DefaultPunchLimit.
func WithPunchLimit(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.punchLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option { return func(r *Reconciler) { r.metrics = m } }

// WithClock sets the clock used for pass timing.
func WithClock(c ledger.Clock) Option { return func(r *Reconciler) { r.clock = c } }

// NewReconciler builds a Reconciler. A nil gateway means offline.
func NewReconciler(st *store.Store, gw remote.Gateway, opts ...Option) *Reconciler {
	if gw == nil {
		gw = remote.Offline{}
	}
	r := &Reconciler{
		store:      st,
		gateway:    gw,
		punchLimit: DefaultPunchLimit,
		logger:     slog.Default(),
		clock:      ledger.SystemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "sync_reconciler")
	return r
}

// Run executes one pass, or joins the pass already in flight.
//
// Description:
//
//	Returns ErrNoDevice before configuration, remote.ErrNotConfigured in
//	offline-only mode, and an error wrapping remote.ErrAccessDenied when
//	the master reports the employee inactive. In all three cases nothing
//	is applied locally. A failed pull returns a zero Result and the
//	transport error.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	v, err, shared := r.flight.Do("pass", func() (any, error) {
		return r.pass(ctx)
	})
	if shared {
		r.logger.Debug("joined in-flight sync pass")
	}
	res, _ := v.(Result)
	return res, err
}

func (r *Reconciler) pass(ctx context.Context) (res Result, err error) {
	start := r.clock.Now()
	status := observability.SyncStatusSuccess

	ctx, span := tracer.Start(ctx, "sync.pass")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		span.SetAttributes(
			attribute.Int("sync.new_punches", res.NewPunches),
			attribute.Int("sync.new_badges", res.NewBadges),
			attribute.Int("sync.confirmed", res.Confirmed),
		)
		span.End()
		r.metrics.RecordSync(status, res.NewPunches, r.clock.Now().Sub(start))
	}()

	cfg, ok := r.store.DeviceConfig(ctx)
	if !ok {
		status = observability.SyncStatusFailed
		return Result{}, ErrNoDevice
	}
	code := cfg.EmployeeCode
	span.SetAttributes(attribute.String("ledger.employee_code", code))

	if !r.gateway.Configured() {
		status = observability.SyncStatusOffline
		return Result{}, remote.ErrNotConfigured
	}

	if err := r.checkMaster(ctx, code); err != nil {
		status = observability.SyncStatusDenied
		return Result{}, err
	}

	remoteBadges, remotePunches, err := r.pull(ctx, code)
	if err != nil {
		status = observability.SyncStatusFailed
		if remote.IsTransport(err) {
			status = observability.SyncStatusOffline
		}
		r.logger.Warn("sync pull failed, local ledger untouched", "employee_code", code, "error", err)
		return Result{}, err
	}

	pushed := r.pushPunches(ctx, code, cfg.DeviceID)
	res.PushedPunches = len(pushed)
	res.PushedBadges = r.pushBadges(ctx, code, remoteBadges)

	err = r.store.Update(ctx, func(tx *store.Tx) error {
		res.NewBadges = mergeBadges(tx, code, remoteBadges, r.logger)
		res.NewPunches, res.Confirmed = mergePunches(tx, remotePunches, pushed)
		return nil
	})
	if err != nil {
		status = observability.SyncStatusFailed
		return Result{PushedPunches: res.PushedPunches, PushedBadges: res.PushedBadges}, fmt.Errorf("apply sync: %w", err)
	}

	r.logger.Info("sync pass complete",
		"employee_code", code,
		"new_punches", res.NewPunches,
		"new_badges", res.NewBadges,
		"confirmed", res.Confirmed,
		"pushed_punches", res.PushedPunches,
		"pushed_badges", res.PushedBadges,
	)
	return res, nil
}

// checkMaster returns an error only when the master definitively reports
// the employee inactive. Transport problems are logged and ignored.
func (r *Reconciler) checkMaster(ctx context.Context, code string) error {
	_, err := r.gateway.LookupEmployee(ctx, code)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, remote.ErrAccessDenied):
		r.logger.Warn("employee inactive in master, sync skipped", "employee_code", code)
		return err
	default:
		r.logger.Warn("master check unavailable, continuing", "employee_code", code, "error", err)
		return nil
	}
}

func (r *Reconciler) pull(ctx context.Context, code string) ([]remote.BadgeRecord, []ledger.Punch, error) {
	var (
		badgeRecs []remote.BadgeRecord
		punches   []ledger.Punch
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		badgeRecs, err = r.gateway.QueryBadges(gctx, code)
		return err
	})
	g.Go(func() error {
		var err error
		punches, err = r.gateway.QueryPunches(gctx, code, r.punchLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return badgeRecs, punches, nil
}

// pushPunches uploads the employee's unsynced punches and returns the ids
// the remote ledger accepted.
func (r *Reconciler) pushPunches(ctx context.Context, code, deviceID string) map[string]bool {
	var pending []ledger.Punch
	for _, p := range ledger.ForEmployee(r.store.Punches(ctx), code) {
		if !p.Synced {
			pending = append(pending, p)
		}
	}
	accepted := make(map[string]bool, len(pending))
	if len(pending) == 0 {
		return accepted
	}

	var mu gosync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pushConcurrency)
	for _, p := range pending {
		g.Go(func() error {
			if err := r.gateway.UpsertPunch(gctx, p, deviceID); err != nil {
				r.logger.Warn("pending punch upload failed", "punch_id", p.ID, "error", err)
				return nil
			}
			mu.Lock()
			accepted[p.ID] = true
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return accepted
}

// pushBadges inserts local badges missing from remoteBadges.
func (r *Reconciler) pushBadges(ctx context.Context, code string, remoteBadges []remote.BadgeRecord) int {
	held := make(map[string]bool, len(remoteBadges))
	for _, rb := range remoteBadges {
		held[rb.BadgeID] = true
	}
	pushed := 0
	for _, b := range r.store.Badges(ctx) {
		if held[b.BadgeID] || (b.EmployeeCode != "" && b.EmployeeCode != code) {
			continue
		}
		err := r.gateway.InsertBadge(ctx, code, b.BadgeID, b.EarnedAt)
		if !remote.Tolerated(err) {
			r.logger.Warn("badge upload failed", "badge_id", b.BadgeID, "error", err)
			continue
		}
		held[b.BadgeID] = true
		pushed++
	}
	return pushed
}

// mergeBadges appends remote badges whose id is not yet held locally.
// Metadata comes from the catalog; unknown badge ids are skipped.
func mergeBadges(tx *store.Tx, code string, recs []remote.BadgeRecord, logger *slog.Logger) int {
	local := tx.Badges()
	added := 0
	for _, rec := range recs {
		if ledger.HasBadge(local, code, rec.BadgeID) {
			continue
		}
		def, ok := badges.Lookup(rec.BadgeID)
		if !ok {
			logger.Debug("remote badge not in catalog", "badge_id", rec.BadgeID)
			continue
		}
		b := def.Badge(code, rec.EarnedAt)
		if rec.ID != "" {
			b.ID = rec.ID
		}
		local = append(local, b)
		added++
	}
	if added > 0 {
		tx.SetBadges(local)
	}
	return added
}

// mergePunches inserts unknown remote punches as synced, flips synced on
// known unsynced ones and on pushed ids. Returns inserted and confirmed
// counts.
func mergePunches(tx *store.Tx, remotePunches []ledger.Punch, pushed map[string]bool) (int, int) {
	local := tx.Punches()
	index := ledger.IndexByID(local)

	var confirm []string
	inserted := 0
	for _, rp := range remotePunches {
		if i, ok := index[rp.ID]; ok {
			if !local[i].Synced {
				confirm = append(confirm, rp.ID)
			}
			continue
		}
		rp.Synced = true
		if rp.DeviceType == "" {
			rp.DeviceType = ledger.DeviceMobile
		}
		index[rp.ID] = len(local)
		local = append(local, rp)
		inserted++
	}
	for id := range pushed {
		confirm = append(confirm, id)
	}

	if inserted > 0 {
		ledger.SortAscending(local)
		tx.SetPunches(local)
	}
	return inserted, tx.MarkSynced(confirm...)
}

