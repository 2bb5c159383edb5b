// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/punch"
	"github.com/bfa-sv/punchledger/services/ledger/report"
)

type reportOptions struct {
	From, To string
	Format   string
	Out      string
}

// reportRange resolves the flags, defaulting to the current month.
func (o reportOptions) reportRange(a *app) (report.Range, error) {
	r := report.MonthOf(a.clock.Now(), a.loc)
	if o.From != "" {
		d, err := ledger.ParseDay(o.From)
		if err != nil {
			return report.Range{}, err
		}
		r.From = d
	}
	if o.To != "" {
		d, err := ledger.ParseDay(o.To)
		if err != nil {
			return report.Range{}, err
		}
		r.To = d
	}
	if r.To.Before(r.From) {
		return report.Range{}, fmt.Errorf("--to %s is before --from %s", r.To, r.From)
	}
	return r, nil
}

func runReport(ctx context.Context, a *app, out io.Writer, opts reportOptions) error {
	cfg, ok := a.store.DeviceConfig(ctx)
	if !ok {
		return punch.ErrNoDevice
	}
	if opts.Format != "csv" && opts.Format != "xlsx" {
		return fmt.Errorf("unknown report format %q", opts.Format)
	}
	r, err := opts.reportRange(a)
	if err != nil {
		return err
	}
	punches := report.Filter(a.store.Punches(ctx), cfg.EmployeeCode, r, a.loc)

	write := report.WriteCSV
	if opts.Format == "xlsx" {
		write = report.WriteXLSX
	}

	if opts.Out == "-" {
		return write(out, punches, a.loc)
	}
	path := opts.Out
	if path == "" {
		path = report.FileName(r, opts.Format)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, punches, a.loc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	s := report.Summarize(punches)
	a.printer(out).Success(fmt.Sprintf("Reporte %s: %d marcas (%d entradas, %d salidas, %d ocasionales, %d tardes, %d salidas tempranas)",
		path, s.Total, s.Entries, s.Exits, s.Occasional, s.Late, s.Early))
	return nil
}
