// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrorKind classifies why a location could not be obtained.
type ErrorKind int

const (
	// KindOther is any failure not covered below.
	KindOther ErrorKind = iota

	// KindPermissionDenied means the user or OS refused location access.
	// Retrying without user action will not help.
	KindPermissionDenied

	// KindPositionUnavailable means no usable signal.
	KindPositionUnavailable

	// KindTimeout means the sensor did not answer in time.
	KindTimeout
)

// String returns the wire name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindPositionUnavailable:
		return "position_unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// Message returns the user-facing text for the kind. Each kind has its own text.
func (k ErrorKind) Message() string {
	switch k {
	case KindPermissionDenied:
		return "Permiso de ubicación denegado. Habilite el GPS en la configuración del dispositivo y vuelva a intentar."
	case KindPositionUnavailable:
		return "Señal GPS débil o no disponible. Ubíquese en un espacio abierto con vista al cielo."
	case KindTimeout:
		return "El GPS tardó demasiado en responder. Intente actualizar la ubicación."
	default:
		return "Error técnico al acceder al GPS."
	}
}

// Retryable reports whether asking again may succeed without user action.
func (k ErrorKind) Retryable() bool {
	return k == KindPositionUnavailable || k == KindTimeout
}

// LocationError is returned by a Locator that could not produce a Fix.
type LocationError struct {
	Kind ErrorKind
	Err  error
}

func (e *LocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location %s: %v", e.Kind, e.Err)
	}
	return "location " + e.Kind.String()
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing text for the failure.
func (e *LocationError) Message() string {
	return e.Kind.Message()
}

// AsLocationError extracts a *LocationError from err.
// Errors that are not location errors are classified by context state.
func AsLocationError(err error) (*LocationError, bool) {
	if err == nil {
		return nil, false
	}
	var le *LocationError
	if errors.As(err, &le) {
		return le, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &LocationError{Kind: KindTimeout, Err: err}, true
	}
	return nil, false
}

// Locator is the device location capability.
//
// Implementations return either a Fix or a *LocationError.
type Locator interface {
	CurrentLocation(ctx context.Context) (Fix, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Fix, error)

// CurrentLocation calls f.
func (f LocatorFunc) CurrentLocation(ctx context.Context) (Fix, error) {
	return f(ctx)
}

// StaticLocator returns a fix supplied by the device shell.
//
// A nil Fix means the shell had no reading; that is reported as
// position_unavailable so the caller can retry once a reading exists.
type StaticLocator struct {
	Fix *Fix
	Now func() time.Time
}

// CurrentLocation implements Locator.
func (s StaticLocator) CurrentLocation(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, &LocationError{Kind: KindTimeout, Err: err}
	}
	if s.Fix == nil {
		return Fix{}, &LocationError{Kind: KindPositionUnavailable, Err: errors.New("no reading supplied")}
	}
	fix := *s.Fix
	if fix.At.IsZero() {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		fix.At = now()
	}
	return fix, nil
}

// RetryLocator retries retryable failures of an inner Locator.
type RetryLocator struct {
	Inner    Locator
	Attempts int
	Delay    time.Duration
	Logger   *slog.Logger
}

// CurrentLocation implements Locator.
//
// Permission denials are returned immediately; timeouts and unavailable
// positions are retried up to Attempts times with Delay between tries.
func (r RetryLocator) CurrentLocation(ctx context.Context) (Fix, error) {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		fix, err := r.Inner.CurrentLocation(ctx)
		if err == nil {
			return fix, nil
		}
		lastErr = err
		le, ok := AsLocationError(err)
		if !ok || !le.Kind.Retryable() {
			return Fix{}, err
		}
		logger.Warn("location attempt failed", "attempt", i+1, "kind", le.Kind.String())
		if i+1 < attempts && r.Delay > 0 {
			select {
			case <-ctx.Done():
				return Fix{}, &LocationError{Kind: KindTimeout, Err: ctx.Err()}
			case <-time.After(r.Delay):
			}
		}
	}
	return Fix{}, lastErr
}
