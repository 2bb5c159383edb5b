// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ledgerd serves the reference remote ledger.
//
// # Environment Variables
//
//   - LEDGERD_ADDR: listen address (default: :8787)
//   - LEDGERD_DSN: MySQL DSN; empty keeps everything in memory
//   - LEDGERD_API_KEYS: comma-separated accepted keys; empty means open
//   - OTEL_EXPORTER_OTLP_ENDPOINT: enables otlp tracing when set
//
// A .env file in the working directory is read first.
//
// # Usage
//
//	ledgerd serve --dsn 'ledger:secret@tcp(127.0.0.1:3306)/ledger?parseTime=true'
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bfa-sv/punchledger/pkg/logging"
	"github.com/bfa-sv/punchledger/pkg/telemetry"
	"github.com/bfa-sv/punchledger/services/ledgerserver"
)

var (
	addr     string
	dsn      string
	apiKeys  []string
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "ledgerd",
		Short: "Reference remote ledger for punchledger devices",
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger REST API",
		RunE:  runServe,
	}
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", getEnvString("LEDGERD_ADDR", ":8787"), "listen address")
	serveCmd.Flags().StringVar(&dsn, "dsn", os.Getenv("LEDGERD_DSN"), "MySQL DSN; empty keeps data in memory")
	serveCmd.Flags().StringSliceVar(&apiKeys, "api-key", splitList(os.Getenv("LEDGERD_API_KEYS")), "accepted API key (repeatable)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(logging.Config{Level: logging.ParseLevel(logLevel), Service: "ledgerd", JSON: true})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = "ledgerd"
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		tcfg.TraceExporter = "otlp"
		tcfg.OTLPEndpoint = endpoint
	}
	shutdownTelemetry, err := telemetry.Setup(ctx, tcfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(sctx)
	}()

	repo, closeRepo, err := openRepository(logger.Slog())
	if err != nil {
		return err
	}
	defer closeRepo()

	gin.SetMode(gin.ReleaseMode)
	router := ledgerserver.NewRouter(repo, ledgerserver.Options{APIKeys: apiKeys, Logger: logger.Slog()})
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger listening", "addr", addr, "mysql", dsn != "", "api_keys", len(apiKeys))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func openRepository(log *slog.Logger) (ledgerserver.Repository, func(), error) {
	if dsn == "" {
		return ledgerserver.NewMemoryRepository(), func() {}, nil
	}
	repo, err := ledgerserver.OpenMySQL(dsn, log)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close() }, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
