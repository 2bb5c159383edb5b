// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	ledgersync "github.com/bfa-sv/punchledger/services/ledger/sync"
)

func runSync(ctx context.Context, a *app, out io.Writer) error {
	res, err := a.reconciler.Run(ctx)
	if err != nil {
		return err
	}
	a.afterPass(ctx, res)
	a.printer(out).Success(fmt.Sprintf("Sincronización completa: %d marcas nuevas, %d confirmadas, %d enviadas, %d insignias nuevas",
		res.NewPunches, res.Confirmed, res.PushedPunches, res.NewBadges))
	return nil
}

// afterPass re-evaluates badges when a pass brought in remote punches.
func (a *app) afterPass(ctx context.Context, res ledgersync.Result) {
	if res.NewPunches == 0 {
		return
	}
	cfg, ok := a.store.DeviceConfig(ctx)
	if !ok {
		return
	}
	if _, err := a.engine.Evaluate(ctx, cfg.EmployeeCode); err != nil {
		a.logger.Warn("badge evaluation after sync failed", "employee_code", cfg.EmployeeCode, "error", err)
	}
}

// runAgent syncs on the configured interval and serves /metrics until
// interrupted.
func runAgent(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			a.logger.Info("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	sched := ledgersync.NewScheduler(a.reconciler, a.cfg.Sync.Interval, a.afterPass, a.logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("agent started", "interval", a.cfg.Sync.Interval.String(), "remote_configured", a.gateway.Configured())

	<-ctx.Done()
	sched.Stop()

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
	}
	a.logger.Info("agent stopped")
	return nil
}
