// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledgerserver

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bfa-sv/punchledger/services/ledger/remote"
)

// ErrDuplicate is returned when an earned badge pair already exists.
var ErrDuplicate = errors.New("duplicate earned badge")

// Repository stores the authoritative ledger tables.
type Repository interface {
	// UpsertPunches writes each row, replacing any row with the same id.
	UpsertPunches(ctx context.Context, rows []remote.PunchRow) error

	// InsertNotes appends notes. Repeated ids replace the earlier note.
	InsertNotes(ctx context.Context, rows []remote.NoteRow) error

	// InsertBadge stores an earned badge, assigning an id when empty.
	// ErrDuplicate if the (employee_code, badge_id) pair exists.
	InsertBadge(ctx context.Context, row remote.BadgeRecord) (remote.BadgeRecord, error)

	// Punches returns up to limit punches of the employee, newest first.
	// A limit of zero or less means no limit.
	Punches(ctx context.Context, employeeCode string, limit int) ([]remote.PunchRow, error)

	// Badges returns the employee's earned badges, oldest first.
	Badges(ctx context.Context, employeeCode string) ([]remote.BadgeRecord, error)

	// Employee returns the master row for code.
	Employee(ctx context.Context, code string) (remote.EmployeeRow, bool, error)

	// PutEmployee creates or replaces a master row.
	PutEmployee(ctx context.Context, row remote.EmployeeRow) error
}

// MemoryRepository keeps every table in memory.
//
// Safe for concurrent use.
type MemoryRepository struct {
	mu        sync.RWMutex
	punches   map[string]remote.PunchRow
	notes     map[string]remote.NoteRow
	badges    []remote.BadgeRecord
	employees map[string]remote.EmployeeRow
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		punches:   make(map[string]remote.PunchRow),
		notes:     make(map[string]remote.NoteRow),
		employees: make(map[string]remote.EmployeeRow),
	}
}

// UpsertPunches implements Repository.
func (m *MemoryRepository) UpsertPunches(_ context.Context, rows []remote.PunchRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.punches[r.ID] = r
	}
	return nil
}

// InsertNotes implements Repository.
func (m *MemoryRepository) InsertNotes(_ context.Context, rows []remote.NoteRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.notes[r.ID] = r
	}
	return nil
}

// InsertBadge implements Repository.
func (m *MemoryRepository) InsertBadge(_ context.Context, row remote.BadgeRecord) (remote.BadgeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.badges {
		if b.EmployeeCode == row.EmployeeCode && b.BadgeID == row.BadgeID {
			return remote.BadgeRecord{}, ErrDuplicate
		}
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	m.badges = append(m.badges, row)
	return row, nil
}

// Punches implements Repository.
func (m *MemoryRepository) Punches(_ context.Context, employeeCode string, limit int) ([]remote.PunchRow, error) {
	m.mu.RLock()
	out := make([]remote.PunchRow, 0)
	for _, p := range m.punches {
		if p.EmployeeCode == employeeCode {
			out = append(out, p)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Badges implements Repository.
func (m *MemoryRepository) Badges(_ context.Context, employeeCode string) ([]remote.BadgeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]remote.BadgeRecord, 0)
	for _, b := range m.badges {
		if b.EmployeeCode == employeeCode {
			out = append(out, b)
		}
	}
	return out, nil
}

// Employee implements Repository.
func (m *MemoryRepository) Employee(_ context.Context, code string) (remote.EmployeeRow, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.employees[code]
	return row, ok, nil
}

// PutEmployee implements Repository.
func (m *MemoryRepository) PutEmployee(_ context.Context, row remote.EmployeeRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[row.EmployeeCode] = row
	return nil
}

// Notes returns every stored note. Tests only.
func (m *MemoryRepository) Notes() []remote.NoteRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]remote.NoteRow, 0, len(m.notes))
	for _, n := range m.notes {
		out = append(out, n)
	}
	return out
}
