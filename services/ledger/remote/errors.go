// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned by every call in offline-only mode.
	ErrNotConfigured = errors.New("remote ledger not configured")

	// ErrTransport marks a failure to reach the remote ledger: network
	// errors, timeouts, 5xx and 429 responses, or an open circuit. Callers
	// treat it as "offline for this operation"; the Client falls back to
	// the next transport only on this class.
	ErrTransport = errors.New("remote ledger unreachable")

	// ErrAccessDenied means the employee master definitively reports the
	// code as absent or inactive. Never bypassed by retry.
	ErrAccessDenied = errors.New("employee not active in master")

	// ErrDuplicate is an insert-only conflict. Callers inserting badges or
	// notes treat it as success.
	ErrDuplicate = errors.New("remote record already exists")

	// ErrCircuitOpen is returned without a request while the primary
	// transport's breaker is open. It is a transport failure.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// TransportError describes a failed attempt on one transport.
type TransportError struct {
	Op        string
	Transport string
	// Status is the HTTP status, or 0 when no response was received.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s via %s: status %d: %v", e.Op, e.Transport, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s via %s: %v", e.Op, e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransport) true.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// StatusError is a definitive non-success answer that is not a transport
// failure, for example a 400 for a malformed row. It stops the fallback
// chain.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote %s: status %d: %s", e.Op, e.Status, e.Body)
}

// IsTransport reports whether err is a transport-class failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// outcome labels err for metrics and logs.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTransport):
		return "transport_error"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	default:
		return "error"
	}
}
