// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report builds attendance reports from the local ledger.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bfa-sv/punchledger/services/ledger"
)

// Headers are the export column titles.
var Headers = []string{"ID", "Empleado", "Fecha", "Hora", "Tipo", "Tarde/Temprano", "GPS Lat", "GPS Lng"}

// Flag values of the Tarde/Temprano column.
const (
	FlagLate  = "TARDE"
	FlagEarly = "SALIDA TEMPRANA"
	FlagNone  = "-"
)

const (
	dateLayout = "02/01/2006"
	timeLayout = "15:04:05"
	sheetName  = "Asistencia"
)

// Range is an inclusive local-date range.
type Range struct {
	From ledger.Day
	To   ledger.Day
}

// MonthOf returns the calendar month containing t in loc.
func MonthOf(t time.Time, loc *time.Location) Range {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)
	return Range{From: ledger.LocalDay(first, loc), To: ledger.LocalDay(last, loc)}
}

// Contains reports whether d lies within r.
func (r Range) Contains(d ledger.Day) bool {
	return !d.Before(r.From) && !r.To.Before(d)
}

// Filter returns the employee's punches whose local date lies in r,
// oldest first.
func Filter(punches []ledger.Punch, employeeCode string, r Range, loc *time.Location) []ledger.Punch {
	out := make([]ledger.Punch, 0)
	for _, p := range ledger.ForEmployee(punches, employeeCode) {
		if r.Contains(ledger.LocalDay(p.Timestamp, loc)) {
			out = append(out, p)
		}
	}
	ledger.SortAscending(out)
	return out
}

// Summary counts punches by kind.
type Summary struct {
	Total      int
	Entries    int
	Exits      int
	Occasional int
	Late       int
	Early      int
	Unsynced   int
}

// Summarize counts punches.
func Summarize(punches []ledger.Punch) Summary {
	var s Summary
	for _, p := range punches {
		s.Total++
		switch p.Type {
		case ledger.PunchEntry:
			s.Entries++
		case ledger.PunchExit:
			s.Exits++
		case ledger.PunchOccasionalExit:
			s.Occasional++
		}
		if p.IsLate {
			s.Late++
		}
		if p.IsEarly {
			s.Early++
		}
		if !p.Synced {
			s.Unsynced++
		}
	}
	return s
}

// Flag returns the Tarde/Temprano value of p.
func Flag(p ledger.Punch) string {
	switch {
	case p.IsLate:
		return FlagLate
	case p.IsEarly:
		return FlagEarly
	default:
		return FlagNone
	}
}

// Row returns the export cells of p.
func Row(p ledger.Punch, loc *time.Location) []string {
	if loc == nil {
		loc = time.Local
	}
	ts := p.Timestamp.In(loc)
	return []string{
		p.ID,
		p.EmployeeCode,
		ts.Format(dateLayout),
		ts.Format(timeLayout),
		string(p.Type),
		Flag(p),
		strconv.FormatFloat(p.GPSLat, 'f', -1, 64),
		strconv.FormatFloat(p.GPSLng, 'f', -1, 64),
	}
}

// WriteCSV writes the header and one row per punch.
func WriteCSV(w io.Writer, punches []ledger.Punch, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return err
	}
	for _, p := range punches {
		if err := cw.Write(Row(p, loc)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the same table as WriteCSV as an Excel workbook.
// Coordinates are stored as numbers.
func WriteXLSX(w io.Writer, punches []ledger.Punch, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for i, h := range Headers {
		if err := setCell(f, i+1, 1, h); err != nil {
			return err
		}
	}
	for r, p := range punches {
		row := Row(p, loc)
		for c := 0; c < 6; c++ {
			if err := setCell(f, c+1, r+2, row[c]); err != nil {
				return err
			}
		}
		if err := setCell(f, 7, r+2, p.GPSLat); err != nil {
			return err
		}
		if err := setCell(f, 8, r+2, p.GPSLng); err != nil {
			return err
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	_, err := f.WriteTo(w)
	return err
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheetName, cell, value)
}

// FileName returns the default export name for r.
func FileName(r Range, ext string) string {
	return fmt.Sprintf("reporte_%s_%s.%s", r.From, r.To, ext)
}
