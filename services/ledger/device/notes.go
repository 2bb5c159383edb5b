// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package device

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
	"github.com/bfa-sv/punchledger/services/ledger/store"
)

// Attachment markers appended to a justification.
const (
	PhotoMarker = " [Adjunto: Foto]"
	AudioMarker = " [Adjunto: Audio]"
)

// Notes records employee notes.
type Notes struct {
	store   *store.Store
	gateway remote.Gateway
	clock   ledger.Clock
	logger  *slog.Logger
}

// NoteResult reports where a note ended up.
type NoteResult struct {
	Note     ledger.Note
	Uploaded bool
}

// NewNotes builds a Notes recorder. A nil gateway means offline.
func NewNotes(st *store.Store, gw remote.Gateway, clock ledger.Clock, logger *slog.Logger) *Notes {
	if gw == nil {
		gw = remote.Offline{}
	}
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notes{store: st, gateway: gw, clock: clock, logger: logger.With("component", "notes")}
}

// Add appends a note for the configured employee and writes it through.
func (n *Notes) Add(ctx context.Context, category ledger.NoteCategory, content string) (NoteResult, error) {
	cfg, ok := n.store.DeviceConfig(ctx)
	if !ok {
		return NoteResult{}, fmt.Errorf("%w: device not configured", ErrInvalid)
	}
	note := ledger.Note{
		ID:           ledger.NewID(),
		EmployeeCode: cfg.EmployeeCode,
		Category:     category,
		Content:      strings.TrimSpace(content),
		Timestamp:    n.clock.Now(),
	}
	if !category.Valid() {
		return NoteResult{}, fmt.Errorf("%w: unknown note category %q", ErrInvalid, category)
	}
	if err := checker.Struct(note); err != nil {
		return NoteResult{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := n.store.AppendNote(ctx, note); err != nil {
		return NoteResult{}, err
	}
	res := NoteResult{Note: note}
	if n.gateway.Configured() {
		err := n.gateway.InsertNote(ctx, note)
		res.Uploaded = remote.Tolerated(err)
		if !res.Uploaded {
			n.logger.Warn("note kept locally only", "note_id", note.ID, "error", err)
		}
	}
	n.logger.Info("note recorded", "employee_code", note.EmployeeCode, "category", string(category))
	return res, nil
}

// Justify records a late-arrival justification with attachment markers.
func (n *Notes) Justify(ctx context.Context, text string, hasPhoto, hasAudio bool) (NoteResult, error) {
	content := strings.TrimSpace(text)
	if hasPhoto {
		content += PhotoMarker
	}
	if hasAudio {
		content += AudioMarker
	}
	return n.Add(ctx, ledger.NoteJustification, content)
}
