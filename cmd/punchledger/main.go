// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command punchledger is the device shell of the attendance ledger.
//
// Every command works offline against the local ledger. When remote
// credentials are configured, punches, notes and badges are written
// through to the remote ledger and `punchledger sync` (or the long-running
// `punchledger agent`) reconciles the two.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bfa-sv/punchledger/cmd/punchledger/config"
	"github.com/bfa-sv/punchledger/pkg/geo"
	"github.com/bfa-sv/punchledger/pkg/logging"
	"github.com/bfa-sv/punchledger/pkg/telemetry"
	"github.com/bfa-sv/punchledger/pkg/ux"
	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/badges"
	"github.com/bfa-sv/punchledger/services/ledger/device"
	"github.com/bfa-sv/punchledger/services/ledger/observability"
	"github.com/bfa-sv/punchledger/services/ledger/punch"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
	"github.com/bfa-sv/punchledger/services/ledger/store"
	badgerdb "github.com/bfa-sv/punchledger/services/ledger/storage/badger"
	ledgersync "github.com/bfa-sv/punchledger/services/ledger/sync"
	"github.com/bfa-sv/punchledger/services/ledger/validator"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		ux.NewPrinter(os.Stderr, ux.DetectLevel(os.Stderr, outputMode)).Error(userMessage(err))
		os.Exit(exitCode(err))
	}
}

// app wires the ledger services for one invocation.
type app struct {
	cfg     config.PunchLedgerConfig
	logger  *slog.Logger
	store   *store.Store
	gateway remote.Gateway
	metrics *observability.Metrics
	clock   ledger.Clock
	loc     *time.Location
	policy  validator.Policy
	ui      ux.Level

	device     *device.Service
	notes      *device.Notes
	engine     *badges.Engine
	reconciler *ledgersync.Reconciler

	closers []func(context.Context) error
}

// newApp builds the services over an open store.
func newApp(cfg config.PunchLedgerConfig, st *store.Store, gw remote.Gateway, metrics *observability.Metrics, clock ledger.Clock, logger *slog.Logger) (*app, error) {
	policy, err := cfg.ValidatorPolicy()
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location()

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		gateway: gw,
		metrics: metrics,
		clock:   clock,
		loc:     loc,
		policy:  policy,
	}
	a.device = device.NewService(st, gw, clock, logger)
	a.notes = device.NewNotes(st, gw, clock, logger)
	a.engine = badges.NewEngine(st, gw,
		badges.WithClock(clock),
		badges.WithLocation(loc),
		badges.WithLogger(logger),
		badges.WithMetrics(metrics),
	)
	a.reconciler = ledgersync.NewReconciler(st, gw,
		ledgersync.WithPunchLimit(cfg.Sync.PunchLimit),
		ledgersync.WithLogger(logger),
		ledgersync.WithMetrics(metrics),
		ledgersync.WithClock(clock),
	)
	return a, nil
}

// printer styles command output written to w.
func (a *app) printer(w io.Writer) *ux.Printer {
	return ux.NewPrinter(w, a.ui)
}

// recorder builds a punch recorder reading locations from locator. Timeouts
// and unavailable positions are retried per the location config.
func (a *app) recorder(locator geo.Locator) *punch.Recorder {
	if locator != nil {
		locator = geo.RetryLocator{
			Inner:    locator,
			Attempts: a.cfg.LocationRetry.Attempts,
			Delay:    a.cfg.LocationRetry.RetryDelay,
			Logger:   a.logger,
		}
	}
	return punch.NewRecorder(a.store, a.gateway, locator,
		punch.WithPolicy(a.policy),
		punch.WithClock(a.clock),
		punch.WithLocation(a.loc),
		punch.WithBadgeEngine(a.engine),
		punch.WithLogger(a.logger),
		punch.WithMetrics(a.metrics),
	)
}

// close runs the closers in reverse order.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}

// bootstrap loads the configuration and opens everything a command needs.
func bootstrap(ctx context.Context) (*app, error) {
	var cfg config.PunchLedgerConfig
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFrom(configPath); err != nil {
			return nil, err
		}
	} else {
		if err := config.Load(""); err != nil {
			return nil, err
		}
		cfg = config.Global
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "punchledger",
		JSON:    cfg.Logging.JSON,
		Quiet:   !verbose,
	})
	slog.SetDefault(logger.Slog())

	tcfg := telemetry.DefaultConfig()
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	shutdownTelemetry, err := telemetry.Setup(ctx, tcfg)
	if err != nil {
		logger.Close()
		return nil, err
	}

	db, err := badgerdb.Open(badgerdb.Config{
		Path:           cfg.DataPath(),
		SyncWrites:     true,
		Logger:         logger.Slog(),
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	})
	if err != nil {
		_ = shutdownTelemetry(ctx)
		logger.Close()
		return nil, fmt.Errorf("open local ledger: %w", err)
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	gw := remote.Init(remote.Settings{
		URL:           cfg.Remote.URL,
		APIKey:        cfg.Remote.APIKey,
		Timeout:       cfg.Remote.Timeout,
		RatePerMinute: cfg.Remote.RatePerMinute,
		Fallback:      cfg.Remote.Fallback,
		Breaker:       remote.DefaultCircuitBreakerConfig(),
		Logger:        logger.Slog(),
		Metrics:       metrics,
	})

	a, err := newApp(cfg, store.New(db, logger.Slog()), gw, metrics, nil, logger.Slog())
	if err != nil {
		_ = db.Close()
		_ = shutdownTelemetry(ctx)
		logger.Close()
		return nil, err
	}
	a.ui = ux.DetectLevel(os.Stdout, outputMode)
	a.closers = append(a.closers,
		func(context.Context) error { return logger.Close() },
		shutdownTelemetry,
		func(context.Context) error { return db.Close() },
	)
	return a, nil
}
