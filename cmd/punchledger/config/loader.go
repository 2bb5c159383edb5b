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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	validate "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bfa-sv/punchledger/services/ledger/validator"
)

// Environment overrides. A process variable beats the .env file, which
// beats the YAML file.
const (
	EnvRemoteURL = "PUNCHLEDGER_REMOTE_URL"
	EnvRemoteKey = "PUNCHLEDGER_REMOTE_KEY"
	EnvDataDir   = "PUNCHLEDGER_DATA_DIR"
	EnvTimezone  = "PUNCHLEDGER_TIMEZONE"
)

var (
	// Global is a singleton instance
	Global PunchLedgerConfig
	once   sync.Once

	checker = validate.New(validate.WithRequiredStructEnabled())
)

// DefaultPath returns ~/.punchledger/punchledger.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".punchledger", "punchledger.yaml"), nil
}

// Load ensures the config at path, or the default path when empty, is
// loaded into Global. Only the first call has any effect.
func Load(path string) error {
	var err error
	once.Do(func() {
		if path == "" {
			if path, err = DefaultPath(); err != nil {
				return
			}
		}
		Global, err = LoadFrom(path)
	})
	return err
}

// LoadFrom reads, overrides and validates the config at path, creating
// it with defaults when missing. Keys absent from the file keep their
// defaults.
func LoadFrom(path string) (PunchLedgerConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, " First run detected, creating the config at %s\n", path)
		if err := createDefault(path); err != nil {
			return PunchLedgerConfig{}, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return PunchLedgerConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PunchLedgerConfig{}, fmt.Errorf("failed to parse the config file: %w", err)
	}

	dotenv, err := readDotEnv(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return PunchLedgerConfig{}, err
	}
	applyEnv(&cfg, os.LookupEnv, dotenv)

	if err := Validate(cfg); err != nil {
		return PunchLedgerConfig{}, err
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func readDotEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return vars, nil
}

func applyEnv(cfg *PunchLedgerConfig, lookup func(string) (string, bool), dotenv map[string]string) {
	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
		if v, ok := dotenv[key]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
		return "", false
	}
	if v, ok := get(EnvRemoteURL); ok {
		cfg.Remote.URL = v
	}
	if v, ok := get(EnvRemoteKey); ok {
		cfg.Remote.APIKey = v
	}
	if v, ok := get(EnvDataDir); ok {
		cfg.DataDir = v
	}
	if v, ok := get(EnvTimezone); ok {
		cfg.Timezone = v
	}
}

// Validate checks struct tags, the time zone and the policy times.
func Validate(cfg PunchLedgerConfig) error {
	if err := checker.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone: %w", err)
	}
	if _, err := cfg.ValidatorPolicy(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location returns the configured time zone, or time.Local if it cannot
// be loaded.
func (c PunchLedgerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DataPath returns DataDir with "~" expanded.
func (c PunchLedgerConfig) DataPath() string {
	return ExpandHome(c.DataDir)
}

// ValidatorPolicy converts the policy section.
func (c PunchLedgerConfig) ValidatorPolicy() (validator.Policy, error) {
	late, err := validator.ParseTimeOfDay(c.Policy.LateAfter)
	if err != nil {
		return validator.Policy{}, fmt.Errorf("policy.late_after: %w", err)
	}
	early, err := validator.ParseTimeOfDay(c.Policy.EarlyBefore)
	if err != nil {
		return validator.Policy{}, fmt.Errorf("policy.early_before: %w", err)
	}
	return validator.Policy{LateAfter: late, EarlyBefore: early, GeofenceRadiusMeters: c.Policy.GeofenceMeters}, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
