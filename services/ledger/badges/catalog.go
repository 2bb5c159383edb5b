// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badges

import (
	"time"

	"github.com/bfa-sv/punchledger/services/ledger"
)

// Catalog badge ids.
const (
	EarlyBird   = "early_bird"
	NightOwl    = "night_owl"
	PerfectWeek = "perfect_week"
)

// Predicate reports whether a badge is earned. history holds one
// employee's punches, newest first; loc is the device time zone.
type Predicate func(history []ledger.Punch, loc *time.Location) bool

// Definition is a catalog entry: presentation metadata plus its predicate.
type Definition struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Color       string
	Earned      Predicate
}

// Badge builds an award of d for employeeCode with a fresh id.
func (d Definition) Badge(employeeCode string, earnedAt time.Time) ledger.Badge {
	return ledger.Badge{
		ID:           ledger.NewID(),
		EmployeeCode: employeeCode,
		BadgeID:      d.ID,
		Name:         d.Name,
		Description:  d.Description,
		Icon:         d.Icon,
		Color:        d.Color,
		EarnedAt:     earnedAt,
	}
}

// Catalog is the fixed set of badges, in evaluation order.
var Catalog = []Definition{
	{
		ID:          EarlyBird,
		Name:        "Madrugador",
		Description: "Llegar antes de las 8:00 AM en 3 ocasiones consecutivas.",
		Icon:        "🌅",
		Color:       "bg-yellow-100 text-yellow-700",
		Earned:      earlyBird,
	},
	{
		ID:          PerfectWeek,
		Name:        "Semana Perfecta",
		Description: "Asistencia completa sin tardanzas en los últimos 5 días.",
		Icon:        "🏆",
		Color:       "bg-bfa-gold text-white",
		Earned:      perfectWeek,
	},
	{
		ID:          NightOwl,
		Name:        "Noctámbulo",
		Description: "Registrar salida después de las 7:00 PM.",
		Icon:        "🦉",
		Color:       "bg-indigo-100 text-indigo-700",
		Earned:      nightOwl,
	},
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (Definition, bool) {
	for _, d := range Catalog {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

const (
	earlyBirdStreak = 3
	earlyBirdHour   = 8
	nightOwlHour    = 19
	perfectWeekDays = 5
)

// earlyBird: the three most recent entries were all before 08:00. Only
// entries are walked; the first entry at or after 08:00 breaks the streak.
func earlyBird(history []ledger.Punch, loc *time.Location) bool {
	streak := 0
	for _, p := range history {
		if p.Type != ledger.PunchEntry {
			continue
		}
		if p.Timestamp.In(loc).Hour() >= earlyBirdHour {
			return false
		}
		streak++
		if streak >= earlyBirdStreak {
			return true
		}
	}
	return false
}

// nightOwl: the most recent exit was at or after 19:00.
func nightOwl(history []ledger.Punch, loc *time.Location) bool {
	for _, p := range history {
		if p.Type == ledger.PunchExit {
			return p.Timestamp.In(loc).Hour() >= nightOwlHour
		}
	}
	return false
}

// perfectWeek: each of the five most recent days with punches has a
// non-late first entry and an exit.
func perfectWeek(history []ledger.Punch, loc *time.Location) bool {
	type dayRecord struct {
		entered, late, exited bool
	}
	var order []ledger.Day
	days := make(map[ledger.Day]*dayRecord)

	for _, p := range history {
		day := ledger.LocalDay(p.Timestamp, loc)
		rec, ok := days[day]
		if !ok {
			if len(order) == perfectWeekDays {
				break
			}
			rec = &dayRecord{}
			days[day] = rec
			order = append(order, day)
		}
		switch p.Type {
		case ledger.PunchEntry:
			rec.entered = true
			if p.IsLate {
				rec.late = true
			}
		case ledger.PunchExit:
			rec.exited = true
		}
	}

	if len(order) < perfectWeekDays {
		return false
	}
	for _, day := range order {
		rec := days[day]
		if !rec.entered || rec.late || !rec.exited {
			return false
		}
	}
	return true
}
