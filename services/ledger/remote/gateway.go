// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package remote is the best-effort bridge to the authoritative remote
// ledger.
//
// # Description
//
// A Gateway is either a Client, which tries an ordered list of Transports
// (instrumented primary first, raw HTTP fallback second), or Offline, which
// answers ErrNotConfigured to everything. Transport failures are values,
// never panics: callers treat ErrTransport as "offline for this operation"
// and leave the work to the next reconciliation pass.
//
// # Thread Safety
//
// Client and both transports are safe for concurrent use.
package remote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/observability"
)

// DefaultTimeout bounds each transport attempt.
const DefaultTimeout = 10 * time.Second

var (
	meter           = otel.Meter("punchledger/remote")
	callDuration, _ = meter.Float64Histogram(
		"punchledger.remote.call.duration",
		metric.WithDescription("Duration of remote ledger transport attempts"),
		metric.WithUnit("s"),
	)
)

// Gateway is the remote ledger as the rest of the device sees it.
type Gateway interface {
	// Configured reports whether remote credentials are present.
	Configured() bool

	// UpsertPunch writes or overwrites the punch by id. Safe to repeat.
	UpsertPunch(ctx context.Context, p ledger.Punch, deviceID string) error

	// InsertNote inserts a note.
	InsertNote(ctx context.Context, n ledger.Note) error

	// InsertBadge inserts an earned badge; ErrDuplicate if already held.
	InsertBadge(ctx context.Context, employeeCode, badgeID string, earnedAt time.Time) error

	// QueryPunches returns up to limit punches, newest first.
	QueryPunches(ctx context.Context, employeeCode string, limit int) ([]ledger.Punch, error)

	// QueryBadges returns the employee's earned badges.
	QueryBadges(ctx context.Context, employeeCode string) ([]BadgeRecord, error)

	// LookupEmployee returns the active master record, or ErrAccessDenied.
	LookupEmployee(ctx context.Context, code string) (EmployeeRecord, error)
}

// Client tries its transports in order.
//
// It moves to the next transport only when the current one fails with
// ErrTransport; any definitive answer (success, duplicate, access denied,
// a 4xx) ends the chain. Each attempt runs under its own timeout so a
// hung connection becomes a typed transport failure.
type Client struct {
	transports []Transport
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a Client over transports, tried in the given order.
func NewClient(transports []Transport, opts ...ClientOption) *Client {
	c := &Client{
		transports: transports,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "remote_gateway")
	return c
}

// Configured reports whether any transport is available.
func (c *Client) Configured() bool { return len(c.transports) > 0 }

// Transports returns the transports in order.
func (c *Client) Transports() []Transport { return c.transports }

// CircuitState reports the primary transport's breaker state. ok is false
// when the client has no primary transport.
func (c *Client) CircuitState() (state CircuitState, ok bool) {
	for _, t := range c.transports {
		if p, isPrimary := t.(*PrimaryTransport); isPrimary {
			return p.Breaker().State(), true
		}
	}
	return CircuitClosed, false
}

func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context, Transport) (T, error)) (T, error) {
	var zero T
	if len(c.transports) == 0 {
		return zero, ErrNotConfigured
	}

	var lastErr error
	for i, t := range c.transports {
		if i > 0 {
			c.metrics.RecordFallback(op)
			c.logger.Warn("falling back to next transport",
				"op", op, "transport", t.Name(), "previous_error", lastErr)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		v, err := fn(attemptCtx, t)
		cancel()

		status := outcome(err)
		c.metrics.RecordRemoteCall(op, t.Name(), status)
		callDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("transport", t.Name()),
			attribute.String("status", status),
		))

		if err == nil || !IsTransport(err) {
			return v, err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return zero, lastErr
}

// UpsertPunch implements Gateway.
func (c *Client) UpsertPunch(ctx context.Context, p ledger.Punch, deviceID string) error {
	_, err := call(ctx, c, OpUpsertPunch, func(ctx context.Context, t Transport) (struct{}, error) {
		return struct{}{}, t.UpsertPunch(ctx, p, deviceID)
	})
	return err
}

// InsertNote implements Gateway.
func (c *Client) InsertNote(ctx context.Context, n ledger.Note) error {
	_, err := call(ctx, c, OpInsertNote, func(ctx context.Context, t Transport) (struct{}, error) {
		return struct{}{}, t.InsertNote(ctx, n)
	})
	return err
}

// InsertBadge implements Gateway.
func (c *Client) InsertBadge(ctx context.Context, employeeCode, badgeID string, earnedAt time.Time) error {
	_, err := call(ctx, c, OpInsertBadge, func(ctx context.Context, t Transport) (struct{}, error) {
		return struct{}{}, t.InsertBadge(ctx, employeeCode, badgeID, earnedAt)
	})
	return err
}

// QueryPunches implements Gateway.
func (c *Client) QueryPunches(ctx context.Context, employeeCode string, limit int) ([]ledger.Punch, error) {
	return call(ctx, c, OpQueryPunches, func(ctx context.Context, t Transport) ([]ledger.Punch, error) {
		return t.QueryPunches(ctx, employeeCode, limit)
	})
}

// QueryBadges implements Gateway.
func (c *Client) QueryBadges(ctx context.Context, employeeCode string) ([]BadgeRecord, error) {
	return call(ctx, c, OpQueryBadges, func(ctx context.Context, t Transport) ([]BadgeRecord, error) {
		return t.QueryBadges(ctx, employeeCode)
	})
}

// LookupEmployee implements Gateway.
func (c *Client) LookupEmployee(ctx context.Context, code string) (EmployeeRecord, error) {
	return call(ctx, c, OpLookupEmployee, func(ctx context.Context, t Transport) (EmployeeRecord, error) {
		return t.LookupEmployee(ctx, code)
	})
}

// Offline is the gateway of an unconfigured device.
type Offline struct{}

// Configured returns false.
func (Offline) Configured() bool { return false }

// UpsertPunch returns ErrNotConfigured.
func (Offline) UpsertPunch(context.Context, ledger.Punch, string) error { return ErrNotConfigured }

// InsertNote returns ErrNotConfigured.
func (Offline) InsertNote(context.Context, ledger.Note) error { return ErrNotConfigured }

// InsertBadge returns ErrNotConfigured.
func (Offline) InsertBadge(context.Context, string, string, time.Time) error {
	return ErrNotConfigured
}

// QueryPunches returns ErrNotConfigured.
func (Offline) QueryPunches(context.Context, string, int) ([]ledger.Punch, error) {
	return nil, ErrNotConfigured
}

// QueryBadges returns ErrNotConfigured.
func (Offline) QueryBadges(context.Context, string) ([]BadgeRecord, error) {
	return nil, ErrNotConfigured
}

// LookupEmployee returns ErrNotConfigured.
func (Offline) LookupEmployee(context.Context, string) (EmployeeRecord, error) {
	return EmployeeRecord{}, ErrNotConfigured
}

// Tolerated reports whether err from a write can be treated as done:
// nil or a duplicate insert.
func Tolerated(err error) bool {
	return err == nil || errors.Is(err, ErrDuplicate)
}
