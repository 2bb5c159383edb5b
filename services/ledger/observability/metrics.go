// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the punch ledger.
//
// # Description
//
// Metrics cover punch commits and denials, reconciliation passes, badge
// awards and remote gateway calls. The agent exposes them on /metrics.
//
// # Thread Safety
//
// All recording methods are thread-safe and nil-safe: a nil *Metrics
// records nothing, so components can run without metrics wired.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "punchledger"

// Sync pass outcomes.
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
	SyncStatusDenied  = "denied"
	SyncStatusOffline = "offline"
)

// Metrics holds the ledger's Prometheus collectors.
type Metrics struct {
	// PunchRecorded counts locally committed punches.
	// Labels: type (entry, exit, occasional)
	PunchRecorded *prometheus.CounterVec

	// PunchDenied counts rejected punch requests.
	// Labels: code (already_entered, out_of_range, access_denied, ...)
	PunchDenied *prometheus.CounterVec

	// SyncPasses counts reconciliation passes by outcome.
	// Labels: status (success, failed, denied, offline)
	SyncPasses *prometheus.CounterVec

	// SyncNewPunches counts remote punches inserted locally.
	SyncNewPunches prometheus.Counter

	// SyncDuration measures reconciliation pass latency.
	SyncDuration prometheus.Histogram

	// BadgesAwarded counts newly awarded badges.
	// Labels: badge (early_bird, night_owl, perfect_week)
	BadgesAwarded *prometheus.CounterVec

	// RemoteCalls counts gateway calls per transport attempt.
	// Labels: op, transport (primary, raw), status (ok, transport_error, ...)
	RemoteCalls *prometheus.CounterVec

	// RemoteFallbacks counts calls that moved past the first transport.
	// Labels: op
	RemoteFallbacks *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
//
// # Inputs
//
//   - reg: Registerer to use. Nil means prometheus.DefaultRegisterer.
//
// # Limitations
//
//   - Panics if called twice against the same registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PunchRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "punch_recorded_total",
			Help:      "Punches committed to the local ledger by type",
		}, []string{"type"}),

		PunchDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "punch_denied_total",
			Help:      "Punch requests rejected by denial code",
		}, []string{"code"}),

		SyncPasses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sync_passes_total",
			Help:      "Reconciliation passes by outcome",
		}, []string{"status"}),

		SyncNewPunches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sync_new_punches_total",
			Help:      "Remote punches newly inserted into the local ledger",
		}),

		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "sync_duration_seconds",
			Help:      "Reconciliation pass duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		BadgesAwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "badges_awarded_total",
			Help:      "Badges newly awarded by badge id",
		}, []string{"badge"}),

		RemoteCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "remote_calls_total",
			Help:      "Remote gateway transport attempts by operation, transport and status",
		}, []string{"op", "transport", "status"}),

		RemoteFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "remote_fallbacks_total",
			Help:      "Remote calls that fell back past the first transport",
		}, []string{"op"}),
	}
}

// RecordPunch counts a committed punch.
func (m *Metrics) RecordPunch(punchType string) {
	if m == nil {
		return
	}
	m.PunchRecorded.WithLabelValues(punchType).Inc()
}

// RecordDenial counts a rejected punch request.
func (m *Metrics) RecordDenial(code string) {
	if m == nil {
		return
	}
	m.PunchDenied.WithLabelValues(code).Inc()
}

// RecordSync counts a pass with its outcome, inserted punches and duration.
func (m *Metrics) RecordSync(status string, newPunches int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SyncPasses.WithLabelValues(status).Inc()
	if newPunches > 0 {
		m.SyncNewPunches.Add(float64(newPunches))
	}
	m.SyncDuration.Observe(elapsed.Seconds())
}

// RecordBadge counts an awarded badge.
func (m *Metrics) RecordBadge(badgeID string) {
	if m == nil {
		return
	}
	m.BadgesAwarded.WithLabelValues(badgeID).Inc()
}

// RecordRemoteCall counts one transport attempt.
func (m *Metrics) RecordRemoteCall(op, transport, status string) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(op, transport, status).Inc()
}

// RecordFallback counts a call that moved to a later transport.
func (m *Metrics) RecordFallback(op string) {
	if m == nil {
		return
	}
	m.RemoteFallbacks.WithLabelValues(op).Inc()
}
