// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestSetup_NoneInstallsNothing(t *testing.T) {
	shutdown, err := Setup(context.Background(), DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

//nolint:staticcheck // nil context is the case under test
func TestSetup_NilContext(t *testing.T) {
	_, err := Setup(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestSetup_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "zipkin"
	_, err := Setup(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg = DefaultConfig()
	cfg.MetricExporter = "graphite"
	_, err = Setup(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestSetup_StdoutTraces(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout"
	cfg.Writer = &buf

	ctx := context.Background()
	shutdown, err := Setup(ctx, cfg)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "sync.pass")
	span.End()
	require.NoError(t, shutdown(ctx))

	assert.Contains(t, buf.String(), "sync.pass")
}
