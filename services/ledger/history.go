// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"sort"
	"time"
)

// Clock supplies the current instant. Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// Day is a local calendar date.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// LocalDay returns the calendar date of t in loc.
func LocalDay(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// String formats the day as YYYY-MM-DD.
func (d Day) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
}

// Before reports whether d is strictly earlier than o.
func (d Day) Before(o Day) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// At returns the instant of the given wall-clock time on day d in loc.
func (d Day) At(hour, min, sec int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, hour, min, sec, 0, loc)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Day{}, err
	}
	return Day{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// SortAscending orders punches oldest first. Stable, so equal timestamps keep
// their relative order.
func SortAscending(punches []Punch) {
	sort.SliceStable(punches, func(i, j int) bool {
		return punches[i].Timestamp.Before(punches[j].Timestamp)
	})
}

// SortNewestFirst orders punches newest first.
func SortNewestFirst(punches []Punch) {
	sort.SliceStable(punches, func(i, j int) bool {
		return punches[i].Timestamp.After(punches[j].Timestamp)
	})
}

// ForEmployee returns the punches belonging to employeeCode, in input order.
func ForEmployee(punches []Punch, employeeCode string) []Punch {
	out := make([]Punch, 0, len(punches))
	for _, p := range punches {
		if p.EmployeeCode == employeeCode {
			out = append(out, p)
		}
	}
	return out
}

// OnDay returns the punches whose timestamp falls on day in loc.
func OnDay(punches []Punch, day Day, loc *time.Location) []Punch {
	out := make([]Punch, 0)
	for _, p := range punches {
		if LocalDay(p.Timestamp, loc) == day {
			out = append(out, p)
		}
	}
	return out
}

// IndexByID maps punch ids to their position in punches.
func IndexByID(punches []Punch) map[string]int {
	idx := make(map[string]int, len(punches))
	for i, p := range punches {
		idx[p.ID] = i
	}
	return idx
}

// HasBadge reports whether badges already hold badgeID for employeeCode.
// Badges recorded without an employee code belong to the device owner and
// match any code.
func HasBadge(badges []Badge, employeeCode, badgeID string) bool {
	for _, b := range badges {
		if b.BadgeID != badgeID {
			continue
		}
		if b.EmployeeCode == "" || b.EmployeeCode == employeeCode {
			return true
		}
	}
	return false
}
