// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger defines the attendance ledger entities shared by the
// validator, the local store, the remote gateway, the reconciler and the
// badge engine.
//
// # Entities
//
//   - DeviceConfig: one per installed device, overwritten on re-configuration
//   - Punch: immutable once written, except for the synced flag
//   - Badge: derived achievement, at most one per (employee, badge id)
//   - Note: append-only free-form message
//
// Wire values of the enums match what the authoritative remote store holds.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PunchType is the kind of attendance event.
type PunchType string

const (
	PunchEntry          PunchType = "Entrada Principal"
	PunchExit           PunchType = "Salida Principal"
	PunchOccasionalExit PunchType = "Salida Ocasional"
)

// Valid reports whether t is one of the three known kinds.
func (t PunchType) Valid() bool {
	switch t {
	case PunchEntry, PunchExit, PunchOccasionalExit:
		return true
	}
	return false
}

// Slug returns the short command-line name of the type.
func (t PunchType) Slug() string {
	switch t {
	case PunchEntry:
		return "entry"
	case PunchExit:
		return "exit"
	case PunchOccasionalExit:
		return "occasional"
	}
	return "unknown"
}

// ParsePunchType accepts a slug (entry, exit, occasional) or a wire value.
func ParsePunchType(s string) (PunchType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "entry", "entrada", strings.ToLower(string(PunchEntry)):
		return PunchEntry, nil
	case "exit", "salida", strings.ToLower(string(PunchExit)):
		return PunchExit, nil
	case "occasional", "occasional_exit", strings.ToLower(string(PunchOccasionalExit)):
		return PunchOccasionalExit, nil
	}
	return "", fmt.Errorf("unknown punch type %q", s)
}

// OccasionalReason is the motive recorded on an occasional exit.
type OccasionalReason string

const (
	ReasonPersonal  OccasionalReason = "Trámite Personal"
	ReasonEmergency OccasionalReason = "Emergencia Familiar"
	ReasonMedical   OccasionalReason = "Cita Médica"
	ReasonOfficial  OccasionalReason = "Misión Oficial"
	ReasonTraining  OccasionalReason = "Capacitación"
	ReasonOther     OccasionalReason = "Otros"
)

// OccasionalReasons lists the reasons in display order.
var OccasionalReasons = []OccasionalReason{
	ReasonPersonal, ReasonEmergency, ReasonMedical, ReasonOfficial, ReasonTraining, ReasonOther,
}

// Mood is the optional self-reported mood attached to an exit.
type Mood string

const (
	MoodHappy    Mood = "happy"
	MoodNeutral  Mood = "neutral"
	MoodTired    Mood = "tired"
	MoodStressed Mood = "stressed"
	MoodExcited  Mood = "excited"
)

// Valid reports whether m is empty or a known mood.
func (m Mood) Valid() bool {
	switch m {
	case "", MoodHappy, MoodNeutral, MoodTired, MoodStressed, MoodExcited:
		return true
	}
	return false
}

// DeviceType classifies the capturing device.
type DeviceType string

const (
	DeviceMobile  DeviceType = "Mobile"
	DeviceDesktop DeviceType = "Desktop"
)

// NoteCategory is the fixed set of note categories.
type NoteCategory string

const (
	NoteGeneral       NoteCategory = "Nota"
	NoteComment       NoteCategory = "Comentario"
	NoteSuggestion    NoteCategory = "Sugerencia"
	NoteComplaint     NoteCategory = "Queja"
	NoteMisc          NoteCategory = "Varios"
	NoteJustification NoteCategory = "Justificación"
)

// Valid reports whether c is a known category.
func (c NoteCategory) Valid() bool {
	switch c {
	case NoteGeneral, NoteComment, NoteSuggestion, NoteComplaint, NoteMisc, NoteJustification:
		return true
	}
	return false
}

// DeviceConfig is the onboarding record of the installed device.
type DeviceConfig struct {
	DeviceID         string    `json:"deviceId"`
	EmployeeCode     string    `json:"employeeCode" validate:"required"`
	EmployeeName     string    `json:"employeeName"`
	Position         string    `json:"position"`
	AssignedPhone    string    `json:"assignedPhone"`
	ImmediateManager string    `json:"immediateManager"`
	OfficeLat        float64   `json:"officeLat" validate:"gte=-90,lte=90"`
	OfficeLng        float64   `json:"officeLng" validate:"gte=-180,lte=180"`
	ConfiguredAt     time.Time `json:"configuredAt"`
}

// HasOffice reports whether an office reference point is configured. Both
// coordinates must be non-zero; a zero axis counts as unset.
func (c DeviceConfig) HasOffice() bool {
	return c.OfficeLat != 0 && c.OfficeLng != 0
}

// Punch is a single recorded attendance event.
//
// IsLate and IsEarly are judged once, when the punch is created, and are
// never recomputed. Synced only ever moves from false to true.
type Punch struct {
	ID           string     `json:"id"`
	EmployeeCode string     `json:"employeeCode"`
	Timestamp    time.Time  `json:"timestamp"`
	Type         PunchType  `json:"type"`
	GPSLat       float64    `json:"gpsLat"`
	GPSLng       float64    `json:"gpsLng"`
	GeoAccuracy  float64    `json:"geoAccuracy"`
	Reason       string     `json:"reason,omitempty"`
	AuthorizedBy string     `json:"authorizedBy,omitempty"`
	Comments     string     `json:"comments,omitempty"`
	IsLate       bool       `json:"isLate"`
	IsEarly      bool       `json:"isEarly"`
	DeviceType   DeviceType `json:"deviceType,omitempty"`
	Mood         Mood       `json:"mood,omitempty"`
	Synced       bool       `json:"synced"`
}

// Badge is an awarded achievement.
type Badge struct {
	ID           string    `json:"id"`
	EmployeeCode string    `json:"employeeCode,omitempty"`
	BadgeID      string    `json:"badgeId"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Icon         string    `json:"icon"`
	Color        string    `json:"color"`
	EarnedAt     time.Time `json:"earnedAt"`
}

// Note is a free-form message from the employee.
type Note struct {
	ID           string       `json:"id"`
	EmployeeCode string       `json:"employeeCode" validate:"required"`
	Category     NoteCategory `json:"category" validate:"required"`
	Content      string       `json:"content" validate:"required"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NewID returns a fresh random identifier for any ledger entity.
func NewID() string {
	return uuid.NewString()
}
