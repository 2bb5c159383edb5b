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
	"time"

	"github.com/bfa-sv/punchledger/services/ledger"
)

// Table names of the remote ledger.
const (
	TablePunches        = "punches"
	TableNotes          = "notes"
	TableEarnedBadges   = "earned_badges"
	TableEmployeeMaster = "employee_master"
)

// PunchRow is the remote shape of a punch. The remote mirror carries the
// capturing device id and no synced flag.
type PunchRow struct {
	ID           string    `json:"id" gorm:"primaryKey;size:64"`
	EmployeeCode string    `json:"employee_code" gorm:"index;size:32"`
	Timestamp    time.Time `json:"timestamp" gorm:"index"`
	Type         string    `json:"type" gorm:"size:32"`
	GPSLat       float64   `json:"gps_lat"`
	GPSLng       float64   `json:"gps_lng"`
	GeoAccuracy  float64   `json:"geo_accuracy"`
	Reason       string    `json:"reason,omitempty" gorm:"size:64"`
	AuthorizedBy string    `json:"authorized_by,omitempty" gorm:"size:128"`
	Comments     string    `json:"comments,omitempty" gorm:"type:text"`
	DeviceID     string    `json:"device_id,omitempty" gorm:"size:64"`
	DeviceType   string    `json:"device_type,omitempty" gorm:"size:16"`
	IsLate       bool      `json:"is_late"`
	IsEarly      bool      `json:"is_early"`
	Mood         string    `json:"mood,omitempty" gorm:"size:16"`
}

// TableName maps the row to its table.
func (PunchRow) TableName() string { return TablePunches }

// NewPunchRow converts a local punch captured on deviceID.
func NewPunchRow(p ledger.Punch, deviceID string) PunchRow {
	return PunchRow{
		ID:           p.ID,
		EmployeeCode: p.EmployeeCode,
		Timestamp:    p.Timestamp.UTC(),
		Type:         string(p.Type),
		GPSLat:       p.GPSLat,
		GPSLng:       p.GPSLng,
		GeoAccuracy:  p.GeoAccuracy,
		Reason:       p.Reason,
		AuthorizedBy: p.AuthorizedBy,
		Comments:     p.Comments,
		DeviceID:     deviceID,
		DeviceType:   string(p.DeviceType),
		IsLate:       p.IsLate,
		IsEarly:      p.IsEarly,
		Mood:         string(p.Mood),
	}
}

// Punch converts the row to a local punch. Synced is left false; the
// reconciler decides it. A missing device type reads as Mobile.
func (r PunchRow) Punch() ledger.Punch {
	deviceType := ledger.DeviceType(r.DeviceType)
	if deviceType == "" {
		deviceType = ledger.DeviceMobile
	}
	return ledger.Punch{
		ID:           r.ID,
		EmployeeCode: r.EmployeeCode,
		Timestamp:    r.Timestamp,
		Type:         ledger.PunchType(r.Type),
		GPSLat:       r.GPSLat,
		GPSLng:       r.GPSLng,
		GeoAccuracy:  r.GeoAccuracy,
		Reason:       r.Reason,
		AuthorizedBy: r.AuthorizedBy,
		Comments:     r.Comments,
		IsLate:       r.IsLate,
		IsEarly:      r.IsEarly,
		DeviceType:   deviceType,
		Mood:         ledger.Mood(r.Mood),
	}
}

// NoteRow is the remote shape of a note.
type NoteRow struct {
	ID           string    `json:"id" gorm:"primaryKey;size:64"`
	EmployeeCode string    `json:"employee_code" gorm:"index;size:32"`
	Category     string    `json:"category" gorm:"size:32"`
	Content      string    `json:"content" gorm:"type:text"`
	Timestamp    time.Time `json:"timestamp"`
}

// TableName maps the row to its table.
func (NoteRow) TableName() string { return TableNotes }

// NewNoteRow converts a local note.
func NewNoteRow(n ledger.Note) NoteRow {
	return NoteRow{
		ID:           n.ID,
		EmployeeCode: n.EmployeeCode,
		Category:     string(n.Category),
		Content:      n.Content,
		Timestamp:    n.Timestamp.UTC(),
	}
}

// BadgeRecord is an earned badge as the remote ledger stores it. The pair
// (employee_code, badge_id) is unique there.
type BadgeRecord struct {
	ID           string    `json:"id,omitempty" gorm:"primaryKey;size:64"`
	EmployeeCode string    `json:"employee_code" gorm:"uniqueIndex:idx_employee_badge;size:32"`
	BadgeID      string    `json:"badge_id" gorm:"uniqueIndex:idx_employee_badge;size:32"`
	EarnedAt     time.Time `json:"earned_at"`
}

// TableName maps the row to its table.
func (BadgeRecord) TableName() string { return TableEarnedBadges }

// EmployeeRow is the remote employee master row. A null active column
// counts as active.
type EmployeeRow struct {
	EmployeeCode     string   `json:"employee_code" gorm:"primaryKey;size:32"`
	FullName         string   `json:"full_name" gorm:"size:128"`
	Position         string   `json:"position" gorm:"size:128"`
	AssignedPhone    string   `json:"assigned_phone" gorm:"size:32"`
	ImmediateManager string   `json:"immediate_manager" gorm:"size:128"`
	OfficeLat        *float64 `json:"office_lat"`
	OfficeLng        *float64 `json:"office_lng"`
	Active           *bool    `json:"active"`
}

// TableName maps the row to its table.
func (EmployeeRow) TableName() string { return TableEmployeeMaster }

// EmployeeRecord is an active employee master entry.
type EmployeeRecord struct {
	Code             string
	Name             string
	Position         string
	AssignedPhone    string
	ImmediateManager string
	OfficeLat        float64
	OfficeLng        float64
	Active           bool
}

// Record converts the row.
func (r EmployeeRow) Record() EmployeeRecord {
	rec := EmployeeRecord{
		Code:             r.EmployeeCode,
		Name:             r.FullName,
		Position:         r.Position,
		AssignedPhone:    r.AssignedPhone,
		ImmediateManager: r.ImmediateManager,
		Active:           r.Active == nil || *r.Active,
	}
	if r.OfficeLat != nil {
		rec.OfficeLat = *r.OfficeLat
	}
	if r.OfficeLng != nil {
		rec.OfficeLng = *r.OfficeLng
	}
	return rec
}
