// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"
)

// CurrentConfigVersion is written into new config files.
const CurrentConfigVersion = "1"

type PunchLedgerConfig struct {
	Meta MetaConfig `yaml:"meta"`

	// DataDir holds the local ledger database. "~" is expanded.
	DataDir string `yaml:"data_dir" validate:"required"`

	// Timezone is the IANA zone that defines the local working day.
	Timezone string `yaml:"timezone" validate:"required"`

	// Remote: the authoritative ledger. Empty url or key means offline-only.
	Remote RemoteConfig `yaml:"remote"`

	Policy        PolicyConfig    `yaml:"policy"`
	LocationRetry LocationConfig  `yaml:"location"`
	Sync          SyncConfig      `yaml:"sync"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Metrics       MetricsConfig   `yaml:"metrics"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

type RemoteConfig struct {
	URL           string        `yaml:"url" validate:"omitempty,url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
	RatePerMinute int           `yaml:"rate_per_minute" validate:"gte=0"`
	Fallback      bool          `yaml:"fallback"`
}

type PolicyConfig struct {
	LateAfter      string  `yaml:"late_after" validate:"required"`   // e.g. "08:30"
	EarlyBefore    string  `yaml:"early_before" validate:"required"` // e.g. "16:30"
	GeofenceMeters float64 `yaml:"geofence_meters" validate:"gt=0"`
}

// LocationConfig bounds retries of timed out or unavailable location reads.
type LocationConfig struct {
	Attempts   int           `yaml:"attempts" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retry_delay" validate:"gte=0"`
}

type SyncConfig struct {
	Interval   time.Duration `yaml:"interval" validate:"gte=0"`
	PunchLimit int           `yaml:"punch_limit" validate:"gte=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

type MetricsConfig struct {
	// Addr is where the agent serves /metrics. Empty disables it.
	Addr string `yaml:"addr"`
}

// Configured reports whether remote credentials are present.
func (r RemoteConfig) Configured() bool {
	return r.URL != "" && r.APIKey != ""
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() PunchLedgerConfig {
	return PunchLedgerConfig{
		Meta:     MetaConfig{Version: CurrentConfigVersion},
		DataDir:  "~/.punchledger/data",
		Timezone: "America/El_Salvador",
		Remote: RemoteConfig{
			Timeout:       10 * time.Second,
			RatePerMinute: 120,
			Fallback:      true,
		},
		Policy: PolicyConfig{
			LateAfter:      "08:30",
			EarlyBefore:    "16:30",
			GeofenceMeters: 500,
		},
		LocationRetry: LocationConfig{
			Attempts:   2,
			RetryDelay: 250 * time.Millisecond,
		},
		Sync: SyncConfig{
			Interval:   5 * time.Minute,
			PunchLimit: 100,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.punchledger/logs",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9464"},
	}
}
