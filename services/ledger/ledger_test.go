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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePunchType(t *testing.T) {
	tests := []struct {
		in   string
		want PunchType
	}{
		{"entry", PunchEntry},
		{"EXIT", PunchExit},
		{"occasional", PunchOccasionalExit},
		{"Salida Ocasional", PunchOccasionalExit},
		{" Entrada Principal ", PunchEntry},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePunchType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParsePunchType("lunch")
	assert.Error(t, err)
}

func TestLocalDay_UsesLocation(t *testing.T) {
	sv := time.FixedZone("CST", -6*3600)
	// 03:00 UTC on the 2nd is still the evening of the 1st in UTC-6.
	ts := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)

	assert.Equal(t, Day{2026, time.March, 1}, LocalDay(ts, sv))
	assert.Equal(t, Day{2026, time.March, 2}, LocalDay(ts, time.UTC))
	assert.Equal(t, "2026-03-01", LocalDay(ts, sv).String())
}

func TestDay_Before(t *testing.T) {
	a := Day{2026, time.January, 31}
	b := Day{2026, time.February, 1}
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.False(t, a.Before(a))
}

func TestSorting(t *testing.T) {
	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	punches := []Punch{
		{ID: "b", Timestamp: base.Add(time.Hour)},
		{ID: "c", Timestamp: base.Add(2 * time.Hour)},
		{ID: "a", Timestamp: base},
	}

	SortAscending(punches)
	assert.Equal(t, []string{"a", "b", "c"}, ids(punches))

	SortNewestFirst(punches)
	assert.Equal(t, []string{"c", "b", "a"}, ids(punches))
}

func TestHasBadge(t *testing.T) {
	badges := []Badge{
		{BadgeID: "early_bird", EmployeeCode: "1001"},
		{BadgeID: "night_owl"},
	}
	assert.True(t, HasBadge(badges, "1001", "early_bird"))
	assert.False(t, HasBadge(badges, "2002", "early_bird"))
	assert.True(t, HasBadge(badges, "2002", "night_owl"))
	assert.False(t, HasBadge(badges, "1001", "perfect_week"))
}

func TestDeviceConfig_HasOffice(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{"both set", 13.69, -89.19, true},
		{"neither set", 0, 0, false},
		{"latitude only", 13.69, 0, false},
		{"longitude only", 0, -89.19, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeviceConfig{OfficeLat: tt.lat, OfficeLng: tt.lng}.HasOffice())
		})
	}
}

func TestPunch_JSONFieldNames(t *testing.T) {
	p := Punch{ID: "x", EmployeeCode: "1001", Type: PunchEntry, IsLate: true}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Entrada Principal", raw["type"])
	assert.Equal(t, true, raw["isLate"])
	assert.Equal(t, false, raw["synced"])
	assert.NotContains(t, raw, "reason")
}

func ids(punches []Punch) []string {
	out := make([]string, len(punches))
	for i, p := range punches {
		out[i] = p.ID
	}
	return out
}
