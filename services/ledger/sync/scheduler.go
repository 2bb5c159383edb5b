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
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/bfa-sv/punchledger/services/ledger/remote"
)

// DefaultInterval is the agent's pass interval.
const DefaultInterval = 5 * time.Minute

// AfterPass is called after every successful pass, for example to run the
// badge engine when the pass merged remote punches.
type AfterPass func(ctx context.Context, res Result)

// Scheduler runs passes periodically until stopped.
//
// # Description
//
// Uses the ticker plus done channel pattern. A pass runs immediately on
// Start, then once per interval. Failed passes are logged and retried on
// the next tick; an access denial is logged at error level but does not
// stop the loop, since an administrator may reactivate the employee.
//
// # Thread Safety
//
// Start and Stop are safe to call from any goroutine.
type Scheduler struct {
	rec      *Reconciler
	interval time.Duration
	after    AfterPass
	logger   *slog.Logger

	mu      gosync.Mutex
	running bool
	done    chan struct{}
	stopped chan struct{}
}

// NewScheduler builds a Scheduler over rec. A non-positive interval means
// DefaultInterval; after may be nil.
func NewScheduler(rec *Reconciler, interval time.Duration, after AfterPass, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		rec:      rec,
		interval: interval,
		after:    after,
		logger:   logger.With("component", "sync_scheduler"),
	}
}

// Start launches the loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sync scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	s.logger.Info("sync scheduler starting", "interval", s.interval.String())
	go s.loop(ctx, s.done, s.stopped)
	return nil
}

// Stop signals the loop and waits for the current pass to finish. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	stopped := s.stopped
	s.mu.Unlock()

	<-stopped
	s.logger.Info("sync scheduler stopped")
}

// RunNow performs one pass outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (Result, error) {
	return s.execute(ctx)
}

func (s *Scheduler) loop(ctx context.Context, done, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.execute(ctx)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.done == done {
				s.running = false
			}
			s.mu.Unlock()
			s.logger.Info("sync scheduler stopped", "reason", ctx.Err())
			return
		case <-done:
			return
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context) (Result, error) {
	res, err := s.rec.Run(ctx)
	switch {
	case err == nil:
		if s.after != nil {
			s.after(ctx, res)
		}
	case errors.Is(err, remote.ErrAccessDenied):
		s.logger.Error("sync denied by employee master", "error", err)
	case errors.Is(err, remote.ErrNotConfigured), errors.Is(err, ErrNoDevice):
		s.logger.Debug("sync skipped", "reason", err)
	default:
		s.logger.Warn("sync pass failed", "error", err)
	}
	return res, err
}
