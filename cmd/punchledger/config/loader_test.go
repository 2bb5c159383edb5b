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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bfa-sv/punchledger/services/ledger/validator"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvRemoteURL, EnvRemoteKey, EnvDataDir, EnvTimezone} {
		t.Setenv(k, "")
	}
}

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".punchledger", "punchledger.yaml")
	require.NoError(t, createDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg PunchLedgerConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))

	assert.Equal(t, CurrentConfigVersion, cfg.Meta.Version)
	assert.Equal(t, "America/El_Salvador", cfg.Timezone)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.False(t, cfg.Remote.Configured())
}

func TestLoadFrom_FirstRunWritesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "punchledger.yaml")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "punchledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
remote:
  url: https://ledger.example.com
  api_key: anon
sync:
  interval: 90s
`), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.True(t, cfg.Remote.Configured())
	assert.Equal(t, 90*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 100, cfg.Sync.PunchLimit)
	assert.Equal(t, "08:30", cfg.Policy.LateAfter)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "punchledger.yaml")
	require.NoError(t, createDefault(path))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("PUNCHLEDGER_REMOTE_URL=https://from-dotenv.example.com\nPUNCHLEDGER_REMOTE_KEY=dotenv-key\n"), 0600))
	t.Setenv(EnvRemoteKey, "process-key")
	t.Setenv(EnvTimezone, "UTC")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "https://from-dotenv.example.com", cfg.Remote.URL)
	assert.Equal(t, "process-key", cfg.Remote.APIKey)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PunchLedgerConfig)
	}{
		{"unknown timezone", func(c *PunchLedgerConfig) { c.Timezone = "Mars/Olympus" }},
		{"empty data dir", func(c *PunchLedgerConfig) { c.DataDir = "" }},
		{"bad url", func(c *PunchLedgerConfig) { c.Remote.URL = "not a url" }},
		{"bad log level", func(c *PunchLedgerConfig) { c.Logging.Level = "loud" }},
		{"bad exporter", func(c *PunchLedgerConfig) { c.Telemetry.TraceExporter = "jaeger" }},
		{"bad late_after", func(c *PunchLedgerConfig) { c.Policy.LateAfter = "half past eight" }},
		{"zero geofence", func(c *PunchLedgerConfig) { c.Policy.GeofenceMeters = 0 }},
	}
	require.NoError(t, Validate(DefaultConfig()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidatorPolicy(t *testing.T) {
	cfg := DefaultConfig()
	p, err := cfg.ValidatorPolicy()
	require.NoError(t, err)
	assert.Equal(t, validator.DefaultPolicy, p)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".punchledger", "data"), ExpandHome("~/.punchledger/data"))
	assert.Equal(t, "/var/lib/punchledger", ExpandHome("/var/lib/punchledger"))
}
