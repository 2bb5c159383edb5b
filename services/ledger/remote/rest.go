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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bfa-sv/punchledger/services/ledger"
)

// Operation names used in errors, spans and metrics.
const (
	OpUpsertPunch    = "upsert_punch"
	OpInsertNote     = "insert_note"
	OpInsertBadge    = "insert_badge"
	OpQueryPunches   = "query_punches"
	OpQueryBadges    = "query_badges"
	OpLookupEmployee = "lookup_employee"
)

// DefaultPunchLimit is the pull size of a reconciliation pass.
const DefaultPunchLimit = 100

const maxResponseBytes = 4 << 20

// restDialect speaks the remote ledger's REST dialect:
//
//	POST /rest/v1/punches?on_conflict=id       (Prefer: resolution=merge-duplicates)
//	POST /rest/v1/notes
//	POST /rest/v1/earned_badges                (409 on duplicate pair)
//	GET  /rest/v1/punches?employee_code=eq.X&order=timestamp.desc&limit=N
//	GET  /rest/v1/earned_badges?employee_code=eq.X
//	GET  /rest/v1/employee_master?employee_code=eq.X&limit=1
//
// Every request carries the apikey header and the same key as a bearer
// token. How requests are sent is up to the embedding transport.
type restDialect struct {
	name    string
	baseURL string
	apiKey  string
	send    func(req *http.Request) (*http.Response, error)
}

func (d *restDialect) endpoint(table string, q url.Values) string {
	u := strings.TrimRight(d.baseURL, "/") + "/rest/v1/" + table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// do performs one request and classifies the outcome.
//
// Network errors, 408/429/5xx and undecodable success bodies are transport
// failures. 409 is ErrDuplicate. Other non-2xx answers are *StatusError.
func (d *restDialect) do(ctx context.Context, op, method, table string, q url.Values, body any, prefer string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.endpoint(table, q), reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("apikey", d.apiKey)
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := d.send(req)
	if err != nil {
		return &TransportError{Op: op, Transport: d.name, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Transport: d.name, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		if out != nil && len(bytes.TrimSpace(payload)) > 0 {
			if err := json.Unmarshal(payload, out); err != nil {
				return &TransportError{Op: op, Transport: d.name, Status: code, Err: fmt.Errorf("decode body: %w", err)}
			}
		}
		return nil
	case code == http.StatusConflict:
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return &TransportError{Op: op, Transport: d.name, Status: code, Err: errors.New(http.StatusText(code))}
	default:
		return &StatusError{Op: op, Status: code, Body: truncate(string(payload), 200)}
	}
}

// UpsertPunch writes or overwrites the punch by id.
func (d *restDialect) UpsertPunch(ctx context.Context, p ledger.Punch, deviceID string) error {
	q := url.Values{"on_conflict": {"id"}}
	rows := []PunchRow{NewPunchRow(p, deviceID)}
	return d.do(ctx, OpUpsertPunch, http.MethodPost, TablePunches, q, rows, "resolution=merge-duplicates,return=minimal", nil)
}

// InsertNote inserts a note.
func (d *restDialect) InsertNote(ctx context.Context, n ledger.Note) error {
	return d.do(ctx, OpInsertNote, http.MethodPost, TableNotes, nil, NewNoteRow(n), "return=minimal", nil)
}

// InsertBadge inserts an earned badge. A duplicate pair yields ErrDuplicate.
func (d *restDialect) InsertBadge(ctx context.Context, employeeCode, badgeID string, earnedAt time.Time) error {
	row := BadgeRecord{EmployeeCode: employeeCode, BadgeID: badgeID, EarnedAt: earnedAt.UTC()}
	return d.do(ctx, OpInsertBadge, http.MethodPost, TableEarnedBadges, nil, row, "return=minimal", nil)
}

// QueryPunches returns up to limit punches newest first.
func (d *restDialect) QueryPunches(ctx context.Context, employeeCode string, limit int) ([]ledger.Punch, error) {
	if limit <= 0 {
		limit = DefaultPunchLimit
	}
	q := url.Values{
		"employee_code": {"eq." + employeeCode},
		"select":        {"*"},
		"order":         {"timestamp.desc"},
		"limit":         {strconv.Itoa(limit)},
	}
	var rows []PunchRow
	if err := d.do(ctx, OpQueryPunches, http.MethodGet, TablePunches, q, nil, "", &rows); err != nil {
		return nil, err
	}
	punches := make([]ledger.Punch, 0, len(rows))
	for _, r := range rows {
		punches = append(punches, r.Punch())
	}
	return punches, nil
}

// QueryBadges returns every badge earned by employeeCode.
func (d *restDialect) QueryBadges(ctx context.Context, employeeCode string) ([]BadgeRecord, error) {
	q := url.Values{
		"employee_code": {"eq." + employeeCode},
		"select":        {"*"},
	}
	var rows []BadgeRecord
	if err := d.do(ctx, OpQueryBadges, http.MethodGet, TableEarnedBadges, q, nil, "", &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []BadgeRecord{}
	}
	return rows, nil
}

// LookupEmployee returns the active master record for code, or
// ErrAccessDenied when the code is absent or inactive.
func (d *restDialect) LookupEmployee(ctx context.Context, code string) (EmployeeRecord, error) {
	code = strings.TrimSpace(code)
	q := url.Values{
		"employee_code": {"eq." + code},
		"select":        {"*"},
		"limit":         {"1"},
	}
	var rows []EmployeeRow
	if err := d.do(ctx, OpLookupEmployee, http.MethodGet, TableEmployeeMaster, q, nil, "", &rows); err != nil {
		return EmployeeRecord{}, err
	}
	if len(rows) == 0 {
		return EmployeeRecord{}, fmt.Errorf("%w: %s not found", ErrAccessDenied, code)
	}
	rec := rows[0].Record()
	if !rec.Active {
		return EmployeeRecord{}, fmt.Errorf("%w: %s inactive", ErrAccessDenied, code)
	}
	return rec, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
