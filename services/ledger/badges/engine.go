// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badges derives achievements from the local punch history.
//
// # Description
//
// The Engine walks the catalog, skips badges the employee already holds,
// evaluates each predicate over the newest-first history, and persists new
// awards in one local update. Awards are then pushed to the remote ledger
// best-effort; the remote pair (employee_code, badge_id) is insert-only,
// so the first writer wins across devices.
//
// Evaluate is idempotent: with no new punches a second run awards nothing.
package badges

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/observability"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
	"github.com/bfa-sv/punchledger/services/ledger/store"
)

// Engine awards badges.
type Engine struct {
	store   *store.Store
	gateway remote.Gateway
	clock   ledger.Clock
	loc     *time.Location
	catalog []Definition
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for earnedAt.
func WithClock(c ledger.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLocation sets the device time zone.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithCatalog replaces the catalog.
func WithCatalog(defs []Definition) Option { return func(e *Engine) { e.catalog = defs } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine builds an Engine. A nil gateway means offline.
func NewEngine(st *store.Store, gw remote.Gateway, opts ...Option) *Engine {
	if gw == nil {
		gw = remote.Offline{}
	}
	e := &Engine{
		store:   st,
		gateway: gw,
		clock:   ledger.SystemClock{},
		loc:     time.Local,
		catalog: Catalog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "badge_engine")
	return e
}

// Evaluate awards every newly earned badge to employeeCode.
//
// Description:
//
//	Reads history and held badges and writes new awards inside one store
//	update, so the at-most-one check and the write cannot interleave with
//	another writer. Remote inserts happen after the local commit; a
//	duplicate or transport failure there is logged and ignored.
//
// Outputs:
//
//	[]ledger.Badge - Badges awarded by this call. Empty when nothing is new.
//	error - Wraps store.ErrPersist if the awards could not be written.
func (e *Engine) Evaluate(ctx context.Context, employeeCode string) ([]ledger.Badge, error) {
	if employeeCode == "" {
		return nil, errors.New("employee code is required")
	}

	var awarded []ledger.Badge
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		awarded = nil
		held := tx.Badges()
		history := ledger.ForEmployee(tx.Punches(), employeeCode)
		ledger.SortNewestFirst(history)
		now := e.clock.Now()

		for _, def := range e.catalog {
			if ledger.HasBadge(held, employeeCode, def.ID) {
				continue
			}
			if def.Earned == nil || !def.Earned(history, e.loc) {
				continue
			}
			badge := def.Badge(employeeCode, now)
			held = append(held, badge)
			awarded = append(awarded, badge)
		}
		if len(awarded) > 0 {
			tx.SetBadges(held)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("award badges: %w", err)
	}

	for _, b := range awarded {
		e.metrics.RecordBadge(b.BadgeID)
		e.logger.Info("badge awarded", "employee_code", employeeCode, "badge_id", b.BadgeID)
		e.push(ctx, b)
	}
	return awarded, nil
}

func (e *Engine) push(ctx context.Context, b ledger.Badge) {
	if !e.gateway.Configured() {
		return
	}
	err := e.gateway.InsertBadge(ctx, b.EmployeeCode, b.BadgeID, b.EarnedAt)
	switch {
	case remote.Tolerated(err):
	case remote.IsTransport(err):
		e.logger.Warn("badge kept locally, remote unreachable", "badge_id", b.BadgeID, "error", err)
	default:
		e.logger.Error("remote badge insert failed", "badge_id", b.BadgeID, "error", err)
	}
}
