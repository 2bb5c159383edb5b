// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package device manages the device configuration and the employee's
// notes.
//
// # Description
//
// Configure overwrites the configuration wholesale; the device id is
// generated once and survives re-configuration. Prefill reads the remote
// employee master to fill the form. Notes are append-only locally and
// written through to the remote ledger best-effort.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validate "github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"

	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
	"github.com/bfa-sv/punchledger/services/ledger/store"
)

// DefaultRegion is the phone numbering region for numbers without a
// country prefix.
const DefaultRegion = "SV"

// Default office reference point, used when neither the form nor the
// master supplies one.
const (
	DefaultOfficeLat = 13.6929
	DefaultOfficeLng = -89.2182
)

var (
	// ErrInvalid wraps every input validation failure.
	ErrInvalid = errors.New("invalid device configuration")

	// ErrNotFound is returned by Prefill when the master has no active
	// employee with the code.
	ErrNotFound = errors.New("employee not found in master")
)

// NotFoundMessage is the user-facing text for ErrNotFound.
const NotFoundMessage = "Empleado no encontrado en el maestro. Verifique el código o ingrese los datos manualmente."

var checker = validate.New(validate.WithRequiredStructEnabled())

// Input is the configuration form.
type Input struct {
	EmployeeCode     string  `validate:"required,max=32"`
	EmployeeName     string  `validate:"required"`
	Position         string  `validate:"omitempty"`
	AssignedPhone    string  `validate:"omitempty"`
	ImmediateManager string  `validate:"omitempty"`
	OfficeLat        float64 `validate:"gte=-90,lte=90"`
	OfficeLng        float64 `validate:"gte=-180,lte=180"`
}

// Service configures the device.
type Service struct {
	store   *store.Store
	gateway remote.Gateway
	clock   ledger.Clock
	region  string
	logger  *slog.Logger
}

// NewService builds a Service. A nil gateway means offline; a nil clock
// means the system clock.
func NewService(st *store.Store, gw remote.Gateway, clock ledger.Clock, logger *slog.Logger) *Service {
	if gw == nil {
		gw = remote.Offline{}
	}
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		gateway: gw,
		clock:   clock,
		region:  DefaultRegion,
		logger:  logger.With("component", "device"),
	}
}

// Current returns the stored configuration.
func (s *Service) Current(ctx context.Context) (ledger.DeviceConfig, bool) {
	return s.store.DeviceConfig(ctx)
}

// Configure validates in and overwrites the device configuration.
//
// The existing device id is kept; a first configuration generates one.
// configuredAt is stamped with the current time.
func (s *Service) Configure(ctx context.Context, in Input) (ledger.DeviceConfig, error) {
	in.EmployeeCode = strings.TrimSpace(in.EmployeeCode)
	in.EmployeeName = strings.TrimSpace(in.EmployeeName)
	if err := checker.Struct(in); err != nil {
		return ledger.DeviceConfig{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	phone, err := NormalizePhone(in.AssignedPhone, s.region)
	if err != nil {
		return ledger.DeviceConfig{}, fmt.Errorf("%w: assigned phone: %w", ErrInvalid, err)
	}

	deviceID := ledger.NewID()
	if existing, ok := s.store.DeviceConfig(ctx); ok && existing.DeviceID != "" {
		deviceID = existing.DeviceID
	}

	cfg := ledger.DeviceConfig{
		DeviceID:         deviceID,
		EmployeeCode:     in.EmployeeCode,
		EmployeeName:     in.EmployeeName,
		Position:         in.Position,
		AssignedPhone:    phone,
		ImmediateManager: in.ImmediateManager,
		OfficeLat:        in.OfficeLat,
		OfficeLng:        in.OfficeLng,
		ConfiguredAt:     s.clock.Now(),
	}
	if err := s.store.SaveDeviceConfig(ctx, cfg); err != nil {
		return ledger.DeviceConfig{}, err
	}
	s.logger.Info("device configured", "employee_code", cfg.EmployeeCode, "device_id", cfg.DeviceID)
	return cfg, nil
}

// Prefill builds a form from the employee master. Office coordinates the
// master lacks fall back to the defaults.
func (s *Service) Prefill(ctx context.Context, code string) (Input, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Input{}, fmt.Errorf("%w: employee code is required", ErrInvalid)
	}
	rec, err := s.gateway.LookupEmployee(ctx, code)
	if err != nil {
		if errors.Is(err, remote.ErrAccessDenied) {
			return Input{}, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return Input{}, err
	}
	in := Input{
		EmployeeCode:     code,
		EmployeeName:     rec.Name,
		Position:         rec.Position,
		AssignedPhone:    rec.AssignedPhone,
		ImmediateManager: rec.ImmediateManager,
		OfficeLat:        DefaultOfficeLat,
		OfficeLng:        DefaultOfficeLng,
	}
	if rec.OfficeLat != 0 || rec.OfficeLng != 0 {
		in.OfficeLat, in.OfficeLng = rec.OfficeLat, rec.OfficeLng
	}
	return in, nil
}

// Reset clears every local collection, the configuration included.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	s.logger.Info("device reset")
	return nil
}

// NormalizePhone returns phone in E.164 form. An empty phone stays empty.
func NormalizePhone(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	num, err := libphonenumber.Parse(phone, region)
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("phone number %q is not valid", phone)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
