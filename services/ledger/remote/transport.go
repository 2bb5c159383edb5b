// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/bfa-sv/punchledger/services/ledger"
)

var tracer = otel.Tracer("punchledger/remote")

// Transport is one way of reaching the remote ledger. Implementations
// must map reachability problems to ErrTransport so the Client can fall
// back to the next transport.
type Transport interface {
	Name() string
	UpsertPunch(ctx context.Context, p ledger.Punch, deviceID string) error
	InsertNote(ctx context.Context, n ledger.Note) error
	InsertBadge(ctx context.Context, employeeCode, badgeID string, earnedAt time.Time) error
	QueryPunches(ctx context.Context, employeeCode string, limit int) ([]ledger.Punch, error)
	QueryBadges(ctx context.Context, employeeCode string) ([]BadgeRecord, error)
	LookupEmployee(ctx context.Context, code string) (EmployeeRecord, error)
}

// PrimaryConfig configures the primary transport.
type PrimaryConfig struct {
	BaseURL string
	APIKey  string

	// RatePerMinute caps outgoing requests. Zero means unlimited.
	RatePerMinute int

	// Breaker configures the circuit breaker.
	Breaker CircuitBreakerConfig

	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
}

// PrimaryTransport is the instrumented client: every request is traced
// through otelhttp, rate limited, and guarded by a circuit breaker.
type PrimaryTransport struct {
	restDialect
	client  *http.Client
	limiter *rate.Limiter
	breaker *CircuitBreaker
}

// NewPrimaryTransport builds the primary transport.
func NewPrimaryTransport(cfg PrimaryConfig) *PrimaryTransport {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	p := &PrimaryTransport{
		client:  client,
		breaker: NewCircuitBreaker(cfg.Breaker),
	}
	if cfg.RatePerMinute > 0 {
		burst := cfg.RatePerMinute / 6
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), burst)
	}
	p.restDialect = restDialect{name: "primary", baseURL: cfg.BaseURL, apiKey: cfg.APIKey, send: p.send}
	return p
}

// Name returns "primary".
func (p *PrimaryTransport) Name() string { return p.name }

// Breaker exposes the circuit breaker state for status output.
func (p *PrimaryTransport) Breaker() *CircuitBreaker { return p.breaker }

func (p *PrimaryTransport) send(req *http.Request) (*http.Response, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	return p.client.Do(req)
}

// guard runs fn inside a span and the circuit breaker.
func (p *PrimaryTransport) guard(ctx context.Context, op, employeeCode string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "remote."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ledger.transport", p.name),
			attribute.String("ledger.employee_code", employeeCode),
		),
	)
	defer span.End()

	err := p.breaker.Execute(func() error { return fn(ctx) })
	if errors.Is(err, ErrCircuitOpen) {
		err = &TransportError{Op: op, Transport: p.name, Err: err}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
	}
	return err
}

// UpsertPunch implements Transport.
func (p *PrimaryTransport) UpsertPunch(ctx context.Context, punch ledger.Punch, deviceID string) error {
	return p.guard(ctx, OpUpsertPunch, punch.EmployeeCode, func(ctx context.Context) error {
		return p.restDialect.UpsertPunch(ctx, punch, deviceID)
	})
}

// InsertNote implements Transport.
func (p *PrimaryTransport) InsertNote(ctx context.Context, n ledger.Note) error {
	return p.guard(ctx, OpInsertNote, n.EmployeeCode, func(ctx context.Context) error {
		return p.restDialect.InsertNote(ctx, n)
	})
}

// InsertBadge implements Transport.
func (p *PrimaryTransport) InsertBadge(ctx context.Context, employeeCode, badgeID string, earnedAt time.Time) error {
	return p.guard(ctx, OpInsertBadge, employeeCode, func(ctx context.Context) error {
		return p.restDialect.InsertBadge(ctx, employeeCode, badgeID, earnedAt)
	})
}

// QueryPunches implements Transport.
func (p *PrimaryTransport) QueryPunches(ctx context.Context, employeeCode string, limit int) ([]ledger.Punch, error) {
	var out []ledger.Punch
	err := p.guard(ctx, OpQueryPunches, employeeCode, func(ctx context.Context) error {
		var err error
		out, err = p.restDialect.QueryPunches(ctx, employeeCode, limit)
		return err
	})
	return out, err
}

// QueryBadges implements Transport.
func (p *PrimaryTransport) QueryBadges(ctx context.Context, employeeCode string) ([]BadgeRecord, error) {
	var out []BadgeRecord
	err := p.guard(ctx, OpQueryBadges, employeeCode, func(ctx context.Context) error {
		var err error
		out, err = p.restDialect.QueryBadges(ctx, employeeCode)
		return err
	})
	return out, err
}

// LookupEmployee implements Transport.
func (p *PrimaryTransport) LookupEmployee(ctx context.Context, code string) (EmployeeRecord, error) {
	var out EmployeeRecord
	err := p.guard(ctx, OpLookupEmployee, code, func(ctx context.Context) error {
		var err error
		out, err = p.restDialect.LookupEmployee(ctx, code)
		return err
	})
	return out, err
}

// RawTransport is the fallback: bare net/http with the same credentials
// and semantics, for environments where the instrumented client cannot
// connect.
type RawTransport struct {
	restDialect
}

// NewRawTransport builds the fallback transport. A nil client uses a
// plain http.Client; per-call deadlines come from the context.
func NewRawTransport(baseURL, apiKey string, client *http.Client) *RawTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &RawTransport{restDialect: restDialect{
		name:    "raw",
		baseURL: baseURL,
		apiKey:  apiKey,
		send:    client.Do,
	}}
}

// Name returns "raw".
func (r *RawTransport) Name() string { return r.name }
