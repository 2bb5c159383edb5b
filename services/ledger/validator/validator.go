// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validator decides whether a requested punch may be recorded.
//
// # Description
//
// Validate is a pure function over the employee's punches for the current
// local day. It enforces the daily sequence
//
//	ENTRY -> (OCCASIONAL_EXIT -> ENTRY)* -> EXIT
//
// plus the entry geofence, and computes the isLate/isEarly flags that are
// stored verbatim on the new punch.
//
// # Thread Safety
//
// Stateless; safe for concurrent use.
package validator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bfa-sv/punchledger/services/ledger"
)

// ErrDenied matches every *Denial with errors.Is.
var ErrDenied = errors.New("punch denied")

// Code identifies why a punch was denied.
type Code string

const (
	CodeAlreadyEntered Code = "already_entered"
	CodeNoEntry        Code = "no_entry"
	CodeAlreadyExited  Code = "already_exited"
	CodeAlreadyOut     Code = "already_out"
	CodeDayClosed      Code = "day_closed"
	CodeOutOfRange     Code = "out_of_range"
)

// Denial is a business-rule rejection. Never retried automatically.
type Denial struct {
	Code    Code
	Message string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// Is makes errors.Is(err, ErrDenied) true for any denial.
func (d *Denial) Is(target error) bool {
	return target == ErrDenied
}

// AsDenial extracts a *Denial from err.
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// TimeOfDay is a local wall-clock time.
type TimeOfDay struct {
	Hour, Minute, Second int
}

// On returns the instant of tod on the local day of t in loc.
func (tod TimeOfDay) On(t time.Time, loc *time.Location) time.Time {
	return ledger.LocalDay(t, loc).At(tod.Hour, tod.Minute, tod.Second, loc)
}

func (tod TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", tod.Hour, tod.Minute, tod.Second)
}

// ParseTimeOfDay reads "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

// Policy holds the time gates and the geofence radius.
type Policy struct {
	// LateAfter marks a first entry strictly after this time as late.
	LateAfter TimeOfDay

	// EarlyBefore marks an exit strictly before this time as early.
	EarlyBefore TimeOfDay

	// GeofenceRadiusMeters is the inclusive entry radius around the office.
	GeofenceRadiusMeters float64
}

// DefaultPolicy is 08:30:00 / 16:30:00 / 500 m.
var DefaultPolicy = Policy{
	LateAfter:            TimeOfDay{Hour: 8, Minute: 30},
	EarlyBefore:          TimeOfDay{Hour: 16, Minute: 30},
	GeofenceRadiusMeters: 500,
}

// Request is one punch decision input.
type Request struct {
	EmployeeCode string
	Type         ledger.PunchType
	Now          time.Time

	// Location is the device's local time zone. Nil means time.Local.
	Location *time.Location

	// Today holds the employee's punches on the local day of Now, in any
	// order. Use TodaysPunches to build it.
	Today []ledger.Punch

	// DistanceMeters is the distance from the office reference point. Nil
	// means no office is configured and the geofence is not applied.
	DistanceMeters *float64
}

// Decision is the outcome of an allowed request.
type Decision struct {
	IsLate  bool
	IsEarly bool

	// Return is true for an entry that comes back from an occasional exit.
	Return bool
}

// Validate applies p to req.
//
// Returns a *Denial on rejection. The geofence is checked first for
// entries, so a far-away entry is denied whatever the sequence state.
func (p Policy) Validate(req Request) (Decision, error) {
	if !req.Type.Valid() {
		return Decision{}, fmt.Errorf("unknown punch type %q", req.Type)
	}

	if req.Type == ledger.PunchEntry {
		if d := p.checkGeofence(req.DistanceMeters); d != nil {
			return Decision{}, d
		}
	}

	state := summarize(req.Today)

	switch req.Type {
	case ledger.PunchEntry:
		if state.hasEntry && (state.last == nil || state.last.Type != ledger.PunchOccasionalExit) {
			return Decision{}, &Denial{
				Code:    CodeAlreadyEntered,
				Message: "Ya ha registrado su Entrada Principal. Solo se permite un nuevo ingreso si está retornando de una Salida Ocasional.",
			}
		}
		if state.hasEntry {
			return Decision{Return: true}, nil
		}
		return Decision{IsLate: req.Now.After(p.LateAfter.On(req.Now, req.Location))}, nil

	case ledger.PunchExit:
		if !state.hasEntry {
			return Decision{}, &Denial{Code: CodeNoEntry, Message: "No puede registrar Salida sin una Entrada previa."}
		}
		if state.hasExit {
			return Decision{}, &Denial{Code: CodeAlreadyExited, Message: "Ya existe un registro de Salida para hoy."}
		}
		return Decision{IsEarly: req.Now.Before(p.EarlyBefore.On(req.Now, req.Location))}, nil

	default: // ledger.PunchOccasionalExit
		if !state.hasEntry {
			return Decision{}, &Denial{Code: CodeNoEntry, Message: "Debe registrar Entrada antes de una Salida Ocasional."}
		}
		if state.last != nil && state.last.Type == ledger.PunchOccasionalExit {
			return Decision{}, &Denial{
				Code:    CodeAlreadyOut,
				Message: "Ya se encuentra en una Salida Ocasional. Debe registrar Entrada (Regreso) primero.",
			}
		}
		if state.hasExit {
			return Decision{}, &Denial{Code: CodeDayClosed, Message: "Ya ha registrado su Salida Principal del día."}
		}
		return Decision{}, nil
	}
}

// Validate applies DefaultPolicy to req.
func Validate(req Request) (Decision, error) {
	return DefaultPolicy.Validate(req)
}

// checkGeofence applies only the entry geofence. A nil distance passes.
func (p Policy) checkGeofence(distance *float64) *Denial {
	if distance == nil || *distance <= p.GeofenceRadiusMeters {
		return nil
	}
	return &Denial{
		Code: CodeOutOfRange,
		Message: fmt.Sprintf("FUERA DE RANGO: Está a %.0fm de la oficina. El radio permitido para marcar entrada es de %.0fm.",
			math.Round(*distance), p.GeofenceRadiusMeters),
	}
}

type dayState struct {
	hasEntry bool
	hasExit  bool
	last     *ledger.Punch
}

func summarize(today []ledger.Punch) dayState {
	var s dayState
	for i := range today {
		p := &today[i]
		switch p.Type {
		case ledger.PunchEntry:
			s.hasEntry = true
		case ledger.PunchExit:
			s.hasExit = true
		}
		if s.last == nil || p.Timestamp.After(s.last.Timestamp) {
			s.last = p
		}
	}
	return s
}

// TodaysPunches returns the punches of employeeCode whose timestamp falls
// on the local calendar day of now.
func TodaysPunches(all []ledger.Punch, employeeCode string, now time.Time, loc *time.Location) []ledger.Punch {
	return ledger.OnDay(ledger.ForEmployee(all, employeeCode), ledger.LocalDay(now, loc), loc)
}
