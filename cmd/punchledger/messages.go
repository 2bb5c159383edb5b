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
	"errors"

	"github.com/bfa-sv/punchledger/pkg/geo"
	"github.com/bfa-sv/punchledger/services/ledger/device"
	"github.com/bfa-sv/punchledger/services/ledger/punch"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
	"github.com/bfa-sv/punchledger/services/ledger/store"
	ledgersync "github.com/bfa-sv/punchledger/services/ledger/sync"
	"github.com/bfa-sv/punchledger/services/ledger/validator"
)

// Exit codes by error class.
const (
	exitFailure      = 1
	exitUsage        = 2
	exitDenied       = 3
	exitLocation     = 4
	exitAccessDenied = 5
	exitPersist      = 6
	exitOffline      = 7
)

const (
	msgNoDevice     = "Dispositivo no configurado. Ejecute 'punchledger configure' primero."
	msgNoLocation   = "Se requiere una ubicación para registrar la marca. Indique --lat y --lng."
	msgPersist      = "No se pudo guardar en el almacenamiento local. La marca NO fue registrada."
	msgNotConfig    = "Modo sin conexión: configure remote.url y remote.api_key para sincronizar."
	msgTransport    = "Sin conexión con el servidor. Los datos locales se enviarán en la próxima sincronización."
	msgNotConfirmed = "Use --yes para confirmar que desea borrar todos los datos locales."
)

// classify maps err to its user-facing message and exit code. Each error
// class has a distinct message.
func classify(err error) (string, int) {
	if d, ok := validator.AsDenial(err); ok {
		return d.Message, exitDenied
	}
	if errors.Is(err, remote.ErrAccessDenied) {
		if errors.Is(err, device.ErrNotFound) {
			return device.NotFoundMessage, exitAccessDenied
		}
		return punch.AccessDeniedMessage, exitAccessDenied
	}
	if errors.Is(err, punch.ErrNoLocation) {
		var locErr *geo.LocationError
		if errors.As(err, &locErr) && locErr.Kind != geo.KindPositionUnavailable {
			return locErr.Message(), exitLocation
		}
		return msgNoLocation, exitLocation
	}
	var locErr *geo.LocationError
	if errors.As(err, &locErr) {
		return locErr.Message(), exitLocation
	}
	switch {
	case errors.Is(err, punch.ErrNoDevice), errors.Is(err, ledgersync.ErrNoDevice):
		return msgNoDevice, exitUsage
	case errors.Is(err, device.ErrInvalid):
		return "Datos inválidos: " + err.Error(), exitUsage
	case errors.Is(err, errNotConfirmed):
		return msgNotConfirmed, exitUsage
	case errors.Is(err, store.ErrPersist):
		return msgPersist, exitPersist
	case errors.Is(err, remote.ErrNotConfigured):
		return msgNotConfig, exitOffline
	case remote.IsTransport(err):
		return msgTransport, exitOffline
	}
	return err.Error(), exitFailure
}

func userMessage(err error) string {
	msg, _ := classify(err)
	return msg
}

func exitCode(err error) int {
	_, code := classify(err)
	return code
}
