// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package remotetest provides an in-memory remote.Gateway for tests.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
)

// Fake is an in-memory Gateway with the remote ledger's semantics: punch
// upsert by id, insert-only badges unique per (employee, badge), and an
// employee master. Any operation can be forced to fail with Fail.
type Fake struct {
	mu        sync.Mutex
	punches   map[string]ledger.Punch
	badges    []remote.BadgeRecord
	notes     []ledger.Note
	employees map[string]remote.EmployeeRecord
	failures  map[string]error
	calls     map[string]int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		punches:   make(map[string]ledger.Punch),
		employees: make(map[string]remote.EmployeeRecord),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

// Fail forces op (one of the remote.Op* names) to return err. A nil err
// clears the failure.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// TransportDown makes every operation fail with a transport error.
func (f *Fake) TransportDown() {
	for _, op := range []string{
		remote.OpUpsertPunch, remote.OpInsertNote, remote.OpInsertBadge,
		remote.OpQueryPunches, remote.OpQueryBadges, remote.OpLookupEmployee,
	} {
		f.Fail(op, &remote.TransportError{Op: op, Transport: "fake", Err: fmt.Errorf("connection refused")})
	}
}

// AddEmployee registers a master record.
func (f *Fake) AddEmployee(rec remote.EmployeeRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.employees[rec.Code] = rec
}

// SeedPunch stores p as if another device had uploaded it.
func (f *Fake) SeedPunch(p ledger.Punch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Synced = false
	f.punches[p.ID] = p
}

// SeedBadge stores a badge record as if another device had earned it.
func (f *Fake) SeedBadge(rec remote.BadgeRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.badges = append(f.badges, rec)
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Punch returns the stored punch with id.
func (f *Fake) Punch(id string) (ledger.Punch, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.punches[id]
	return p, ok
}

// PunchCount returns the number of stored punches.
func (f *Fake) PunchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.punches)
}

// Badges returns the stored badge records.
func (f *Fake) Badges() []remote.BadgeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.BadgeRecord(nil), f.badges...)
}

// Notes returns the stored notes.
func (f *Fake) Notes() []ledger.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.Note(nil), f.notes...)
}

func (f *Fake) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.failures[op]
}

// Configured returns true.
func (f *Fake) Configured() bool { return true }

// UpsertPunch implements remote.Gateway.
func (f *Fake) UpsertPunch(ctx context.Context, p ledger.Punch, deviceID string) error {
	if err := f.enter(remote.OpUpsertPunch); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Synced = false
	f.punches[p.ID] = p
	return nil
}

// InsertNote implements remote.Gateway.
func (f *Fake) InsertNote(ctx context.Context, n ledger.Note) error {
	if err := f.enter(remote.OpInsertNote); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.notes {
		if existing.ID == n.ID {
			return remote.ErrDuplicate
		}
	}
	f.notes = append(f.notes, n)
	return nil
}

// InsertBadge implements remote.Gateway.
func (f *Fake) InsertBadge(ctx context.Context, employeeCode, badgeID string, earnedAt time.Time) error {
	if err := f.enter(remote.OpInsertBadge); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.badges {
		if b.EmployeeCode == employeeCode && b.BadgeID == badgeID {
			return remote.ErrDuplicate
		}
	}
	f.badges = append(f.badges, remote.BadgeRecord{
		ID:           ledger.NewID(),
		EmployeeCode: employeeCode,
		BadgeID:      badgeID,
		EarnedAt:     earnedAt,
	})
	return nil
}

// QueryPunches implements remote.Gateway.
func (f *Fake) QueryPunches(ctx context.Context, employeeCode string, limit int) ([]ledger.Punch, error) {
	if err := f.enter(remote.OpQueryPunches); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Punch
	for _, p := range f.punches {
		if p.EmployeeCode == employeeCode {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit <= 0 {
		limit = remote.DefaultPunchLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// QueryBadges implements remote.Gateway.
func (f *Fake) QueryBadges(ctx context.Context, employeeCode string) ([]remote.BadgeRecord, error) {
	if err := f.enter(remote.OpQueryBadges); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []remote.BadgeRecord{}
	for _, b := range f.badges {
		if b.EmployeeCode == employeeCode {
			out = append(out, b)
		}
	}
	return out, nil
}

// LookupEmployee implements remote.Gateway.
func (f *Fake) LookupEmployee(ctx context.Context, code string) (remote.EmployeeRecord, error) {
	if err := f.enter(remote.OpLookupEmployee); err != nil {
		return remote.EmployeeRecord{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.employees[code]
	if !ok {
		return remote.EmployeeRecord{}, fmt.Errorf("%w: %s not found", remote.ErrAccessDenied, code)
	}
	if !rec.Active {
		return remote.EmployeeRecord{}, fmt.Errorf("%w: %s inactive", remote.ErrAccessDenied, code)
	}
	return rec, nil
}

var _ remote.Gateway = (*Fake)(nil)
