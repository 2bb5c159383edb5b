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
	"strings"
	"time"

	"github.com/bfa-sv/punchledger/pkg/geo"
	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/punch"
)

type punchOptions struct {
	Lat, Lng, Accuracy float64
	hasFix             bool

	Comments     string
	Reason       string
	AuthorizedBy string
	Mood         string
	Device       string
}

// locator returns a locator over the fix given on the command line. With
// no fix, Prepare reports position_unavailable.
func (o punchOptions) locator(now func() time.Time) geo.Locator {
	if !o.hasFix {
		return geo.StaticLocator{Now: now}
	}
	return geo.StaticLocator{
		Fix: &geo.Fix{
			Coordinate: geo.Coordinate{Lat: o.Lat, Lng: o.Lng},
			Accuracy:   o.Accuracy,
		},
		Now: now,
	}
}

func parseDeviceType(s string) (ledger.DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mobile":
		return ledger.DeviceMobile, nil
	case "desktop":
		return ledger.DeviceDesktop, nil
	}
	return "", fmt.Errorf("unknown device type %q", s)
}

func runPunch(ctx context.Context, a *app, out io.Writer, kind string, opts punchOptions) error {
	typ, err := ledger.ParsePunchType(kind)
	if err != nil {
		return err
	}
	deviceType, err := parseDeviceType(opts.Device)
	if err != nil {
		return err
	}

	ui := a.printer(out)
	rec := a.recorder(opts.locator(a.clock.Now))
	draft, err := rec.Prepare(ctx, typ)
	if err != nil {
		return err
	}
	if draft.Distance != nil {
		ui.Info(fmt.Sprintf("Distancia a la oficina: %.0f m", *draft.Distance))
	}
	if draft.Fix != nil && draft.Denial != nil {
		return draft.Denial
	}

	outcome, err := rec.Commit(ctx, draft, punch.Details{
		Comments:     opts.Comments,
		Reason:       ledger.OccasionalReason(opts.Reason),
		AuthorizedBy: opts.AuthorizedBy,
		Mood:         ledger.Mood(opts.Mood),
		DeviceType:   deviceType,
	})
	if err != nil {
		return err
	}

	p := outcome.Punch
	ui.Success(fmt.Sprintf("%s registrada a las %s%s", p.Type, p.Timestamp.In(a.loc).Format("15:04:05"), punchFlagsText(p)))
	switch {
	case outcome.Uploaded:
		ui.Success("Sincronizada con el servidor.")
	case a.gateway.Configured():
		ui.Warning("Guardada localmente; se enviará en la próxima sincronización.")
	default:
		ui.Info("Guardada localmente (modo sin conexión).")
	}
	if outcome.MasterUnverified {
		ui.Warning("No se pudo verificar el maestro de personal; se verificará al sincronizar.")
	}
	for _, b := range outcome.Badges {
		ui.Success(fmt.Sprintf("¡Insignia obtenida! %s %s", b.Icon, b.Name))
	}
	return nil
}

func runHistory(ctx context.Context, a *app, out io.Writer, dayArg string) error {
	cfg, ok := a.store.DeviceConfig(ctx)
	if !ok {
		return punch.ErrNoDevice
	}
	day := ledger.LocalDay(a.clock.Now(), a.loc)
	if dayArg != "" {
		var err error
		if day, err = ledger.ParseDay(dayArg); err != nil {
			return err
		}
	}

	punches := ledger.OnDay(ledger.ForEmployee(a.store.Punches(ctx), cfg.EmployeeCode), day, a.loc)
	ledger.SortAscending(punches)
	if len(punches) == 0 {
		fmt.Fprintf(out, "Sin marcas el %s\n", day)
		return nil
	}
	for _, p := range punches {
		state := "pendiente"
		if p.Synced {
			state = "sincronizada"
		}
		fmt.Fprintf(out, "%s  %-18s %-12s%s\n", p.Timestamp.In(a.loc).Format("15:04:05"), p.Type, state, punchFlagsText(p))
	}
	return nil
}

func punchFlagsText(p ledger.Punch) string {
	switch {
	case p.IsLate:
		return " (TARDE)"
	case p.IsEarly:
		return " (SALIDA TEMPRANA)"
	}
	return ""
}
