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
	"errors"
	"fmt"
	"io"

	"github.com/bfa-sv/punchledger/pkg/ux"
	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/badges"
	"github.com/bfa-sv/punchledger/services/ledger/device"
	"github.com/bfa-sv/punchledger/services/ledger/punch"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
	"github.com/bfa-sv/punchledger/services/ledger/validator"
)

var errNotConfirmed = errors.New("reset not confirmed")

type configureOptions struct {
	Code, Name, Position, Phone, Manager string
	OfficeLat, OfficeLng                 float64
	Prefill                              bool
}

type justifyOptions struct {
	Photo, Audio bool
}

// runConfigure binds the device. changed reports which flags were given
// so that explicit flags win over prefilled master values.
func runConfigure(ctx context.Context, a *app, out io.Writer, opts configureOptions, changed func(string) bool) error {
	in := device.Input{OfficeLat: device.DefaultOfficeLat, OfficeLng: device.DefaultOfficeLng}
	if opts.Prefill {
		prefilled, err := a.device.Prefill(ctx, opts.Code)
		if err != nil {
			return err
		}
		in = prefilled
	}

	set := func(flag string, dst *string, v string) {
		if changed(flag) || *dst == "" {
			*dst = v
		}
	}
	set("code", &in.EmployeeCode, opts.Code)
	set("name", &in.EmployeeName, opts.Name)
	set("position", &in.Position, opts.Position)
	set("phone", &in.AssignedPhone, opts.Phone)
	set("manager", &in.ImmediateManager, opts.Manager)
	if changed("office-lat") {
		in.OfficeLat = opts.OfficeLat
	}
	if changed("office-lng") {
		in.OfficeLng = opts.OfficeLng
	}

	cfg, err := a.device.Configure(ctx, in)
	if err != nil {
		return err
	}
	a.printer(out).Success(fmt.Sprintf("Dispositivo configurado para %s (%s)", cfg.EmployeeName, cfg.EmployeeCode))
	fmt.Fprintf(out, "  ID de dispositivo: %s\n", cfg.DeviceID)
	if cfg.AssignedPhone != "" {
		fmt.Fprintf(out, "  Teléfono: %s\n", cfg.AssignedPhone)
	}
	fmt.Fprintf(out, "  Oficina: %.6f, %.6f\n", cfg.OfficeLat, cfg.OfficeLng)
	return nil
}

func runStatus(ctx context.Context, a *app, out io.Writer) error {
	cfg, ok := a.store.DeviceConfig(ctx)
	if !ok {
		return punch.ErrNoDevice
	}
	now := a.clock.Now().In(a.loc)
	all := a.store.Punches(ctx)
	today := validator.TodaysPunches(all, cfg.EmployeeCode, now, a.loc)

	pending := 0
	for _, p := range ledger.ForEmployee(all, cfg.EmployeeCode) {
		if !p.Synced {
			pending++
		}
	}

	fmt.Fprintf(out, "Empleado: %s (%s)\n", cfg.EmployeeName, cfg.EmployeeCode)
	if a.gateway.Configured() {
		fmt.Fprintln(out, "Remoto: configurado")
		if c, ok := a.gateway.(*remote.Client); ok {
			if state, ok := c.CircuitState(); ok {
				fmt.Fprintf(out, "Circuito remoto: %s\n", state)
			}
		}
	} else {
		fmt.Fprintln(out, "Remoto: solo local")
	}
	fmt.Fprintf(out, "Pendientes de sincronizar: %d\n", pending)
	fmt.Fprintf(out, "Marcas de hoy (%s): %d\n", ledger.LocalDay(now, a.loc), len(today))
	for _, p := range today {
		fmt.Fprintf(out, "  %s  %s%s\n", p.Timestamp.In(a.loc).Format("15:04:05"), p.Type, punchFlagsText(p))
	}
	s := punch.Suggest(now, today)
	fmt.Fprintf(out, "Sugerencia: %s. %s\n", s.Title, s.Subtext)
	return nil
}

func runReset(ctx context.Context, a *app, out io.Writer, confirmed bool) error {
	if !confirmed {
		return errNotConfirmed
	}
	if err := a.device.Reset(ctx); err != nil {
		return err
	}
	a.printer(out).Success("Datos locales eliminados.")
	return nil
}

func runBadges(ctx context.Context, a *app, out io.Writer) error {
	cfg, ok := a.store.DeviceConfig(ctx)
	if !ok {
		return punch.ErrNoDevice
	}
	earned := a.store.Badges(ctx)
	for _, def := range badges.Catalog {
		mark := "[ ]"
		for _, b := range earned {
			if b.EmployeeCode == cfg.EmployeeCode && b.BadgeID == def.ID {
				mark = "[x]"
				break
			}
		}
		fmt.Fprintf(out, "%s %s %s: %s\n", mark, def.Icon, def.Name, def.Description)
	}
	return nil
}

func runNote(ctx context.Context, a *app, out io.Writer, category, text string) error {
	res, err := a.notes.Add(ctx, ledger.NoteCategory(category), text)
	if err != nil {
		return err
	}
	printNote(a.printer(out), res)
	return nil
}

func runJustify(ctx context.Context, a *app, out io.Writer, text string, opts justifyOptions) error {
	res, err := a.notes.Justify(ctx, text, opts.Photo, opts.Audio)
	if err != nil {
		return err
	}
	printNote(a.printer(out), res)
	return nil
}

func printNote(ui *ux.Printer, res device.NoteResult) {
	if res.Uploaded {
		ui.Success(fmt.Sprintf("%s enviada: %s", res.Note.Category, res.Note.Content))
		return
	}
	ui.Warning(fmt.Sprintf("%s guardada localmente: %s", res.Note.Category, res.Note.Content))
}
