// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package punch

import (
	"time"

	"github.com/bfa-sv/punchledger/services/ledger"
)

// Suggestion is an advisory next action. It never overrides the validator:
// suggesting an exit does not make an exit valid.
type Suggestion struct {
	// Type is the suggested punch, empty when the day is finished.
	Type    ledger.PunchType
	Title   string
	Subtext string
}

// Suggest proposes the next punch given today's punches for the employee.
// now must already be in the device time zone.
func Suggest(now time.Time, today []ledger.Punch) Suggestion {
	var last *ledger.Punch
	for i := range today {
		if last == nil || today[i].Timestamp.After(last.Timestamp) {
			last = &today[i]
		}
	}
	if last == nil {
		return Suggestion{Type: ledger.PunchEntry, Title: "Registrar Entrada", Subtext: "Inicie su jornada laboral."}
	}

	h, m := now.Hour(), now.Minute()
	switch last.Type {
	case ledger.PunchEntry:
		if h >= 16 || (h == 15 && m >= 30) {
			return Suggestion{Type: ledger.PunchExit, Title: "Finalizar Jornada", Subtext: "Registrar salida principal."}
		}
		return Suggestion{Type: ledger.PunchOccasionalExit, Title: "En Jornada", Subtext: "¿Necesita salir? Registre permiso."}
	case ledger.PunchOccasionalExit:
		// Late in the day a return is usually a close of the day. The
		// validator still requires an entry before the exit.
		if h >= 16 {
			return Suggestion{Type: ledger.PunchExit, Title: "Finalizar Jornada", Subtext: "Cierre su turno (Salida Principal)."}
		}
		return Suggestion{Type: ledger.PunchEntry, Title: "¿Regresó?", Subtext: "Marque su reingreso a la oficina."}
	default:
		return Suggestion{Title: "Jornada Finalizada", Subtext: "Buen descanso."}
	}
}
