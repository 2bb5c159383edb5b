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
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bfa-sv/punchledger/services/ledger/observability"
)

// Settings configures the process-wide gateway.
type Settings struct {
	// URL is the remote ledger base URL. Empty means offline-only.
	URL string

	// APIKey is the public anon key. Empty means offline-only.
	APIKey string

	// Timeout bounds each transport attempt.
	Timeout time.Duration

	// RatePerMinute caps primary transport requests.
	RatePerMinute int

	// Fallback adds the raw HTTP transport after the primary.
	Fallback bool

	// Breaker configures the primary transport's circuit breaker.
	Breaker CircuitBreakerConfig

	// HTTPClient overrides both transports' HTTP clients. Tests only.
	HTTPClient *http.Client

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Configured reports whether both URL and key are present.
func (s Settings) Configured() bool {
	return strings.TrimSpace(s.URL) != "" && strings.TrimSpace(s.APIKey) != ""
}

// New builds a gateway from s: Offline without credentials, otherwise a
// Client over the primary transport and, if enabled, the raw fallback.
func New(s Settings) Gateway {
	if !s.Configured() {
		return Offline{}
	}
	url := strings.TrimSpace(s.URL)
	key := strings.TrimSpace(s.APIKey)

	transports := []Transport{NewPrimaryTransport(PrimaryConfig{
		BaseURL:       url,
		APIKey:        key,
		RatePerMinute: s.RatePerMinute,
		Breaker:       s.Breaker,
		HTTPClient:    s.HTTPClient,
	})}
	if s.Fallback {
		transports = append(transports, NewRawTransport(url, key, s.HTTPClient))
	}
	return NewClient(transports, WithTimeout(s.Timeout), WithLogger(s.Logger), WithMetrics(s.Metrics))
}

var (
	initOnce  sync.Once
	defaultMu sync.RWMutex
	defaultGW Gateway = Offline{}
)

// Init constructs the process-wide gateway once. Later calls return the
// gateway built by the first call and ignore their settings.
func Init(s Settings) Gateway {
	initOnce.Do(func() {
		gw := New(s)
		defaultMu.Lock()
		defaultGW = gw
		defaultMu.Unlock()

		logger := s.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Info("remote gateway initialised",
			"configured", gw.Configured(),
			"api_key_present", strings.TrimSpace(s.APIKey) != "",
			"fallback", s.Fallback,
		)
	})
	return Default()
}

// Default returns the process-wide gateway; Offline before Init.
func Default() Gateway {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultGW
}

// IsConfigured reports whether the process-wide gateway has credentials.
func IsConfigured() bool {
	return Default().Configured()
}
