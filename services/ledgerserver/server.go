// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledgerserver is a reference remote ledger.
//
// # Description
//
// It serves the REST subset the device gateway speaks, under /rest/v1:
//
//	POST /rest/v1/punches           upsert by id
//	POST /rest/v1/notes             insert
//	POST /rest/v1/earned_badges     insert, 409 on a duplicate (employee_code, badge_id)
//	POST /rest/v1/employee_master   upsert a master row
//	GET  /rest/v1/punches           employee_code=eq.X, order=timestamp.desc, limit=N
//	GET  /rest/v1/earned_badges     employee_code=eq.X
//	GET  /rest/v1/employee_master   employee_code=eq.X, limit=N
//
// POST bodies may be a single object or an array. With
// "Prefer: return=representation" the stored rows are echoed back.
//
// # Authentication
//
// Every /rest/v1 request must carry one of the configured keys in the
// apikey header or as a bearer token. No configured keys means open access.
package ledgerserver

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/bfa-sv/punchledger/services/ledger"
	"github.com/bfa-sv/punchledger/services/ledger/remote"
)

// ServiceName names the server in traces.
const ServiceName = "ledgerd"

// PostgreSQL-style error codes in error bodies.
const (
	codeUniqueViolation = "23505"
	codeBadRequest      = "PGRST100"
	codeUnauthorized    = "PGRST301"
)

// Options configures the router.
type Options struct {
	// APIKeys are the accepted keys. Empty disables the check.
	APIKeys []string

	Logger *slog.Logger
}

type server struct {
	repo   Repository
	logger *slog.Logger
}

// NewRouter builds the gin engine over repo.
func NewRouter(repo Repository, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{repo: repo, logger: logger.With("component", "ledgerserver")}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	router.Use(requestLogger(s.logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/rest/v1")
	v1.Use(APIKeyAuth(opts.APIKeys))
	{
		v1.POST("/"+remote.TablePunches, s.upsertPunches)
		v1.GET("/"+remote.TablePunches, s.queryPunches)
		v1.POST("/"+remote.TableNotes, s.insertNotes)
		v1.POST("/"+remote.TableEarnedBadges, s.insertBadges)
		v1.GET("/"+remote.TableEarnedBadges, s.queryBadges)
		v1.POST("/"+remote.TableEmployeeMaster, s.putEmployees)
		v1.GET("/"+remote.TableEmployeeMaster, s.lookupEmployee)
	}
	return router
}

// APIKeyAuth rejects requests that carry none of keys.
func APIKeyAuth(keys []string) gin.HandlerFunc {
	accepted := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			accepted = append(accepted, []byte(k))
		}
	}
	return func(c *gin.Context) {
		if len(accepted) == 0 {
			c.Next()
			return
		}
		key := c.GetHeader("apikey")
		if key == "" {
			key = extractBearerToken(c)
		}
		for _, k := range accepted {
			if subtle.ConstantTimeCompare([]byte(key), k) == 1 {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    codeUnauthorized,
			"message": "Invalid API key",
		})
	}
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

// bindRows decodes a single object or an array of objects.
func bindRows[T any](c *gin.Context) ([]T, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty body")
	}
	if raw[0] == '[' {
		var rows []T
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	var row T
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	return []T{row}, nil
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": codeBadRequest, "message": msg})
}

func (s *server) internalError(c *gin.Context, op string, err error) {
	s.logger.Error("repository failure", "op", op, "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
}

// created answers 201, echoing rows when the client asked for them.
func created(c *gin.Context, rows any) {
	if strings.Contains(c.GetHeader("Prefer"), "return=representation") {
		c.JSON(http.StatusCreated, rows)
		return
	}
	c.Status(http.StatusCreated)
}

// eqFilter reads a "column=eq.value" filter.
func eqFilter(c *gin.Context, column string) (string, bool) {
	v, ok := strings.CutPrefix(c.Query(column), "eq.")
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *server) upsertPunches(c *gin.Context) {
	rows, err := bindRows[remote.PunchRow](c)
	if err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	for _, r := range rows {
		if r.ID == "" || r.EmployeeCode == "" {
			badRequest(c, "id and employee_code are required")
			return
		}
		if !ledger.PunchType(r.Type).Valid() {
			badRequest(c, "unknown punch type "+strconv.Quote(r.Type))
			return
		}
	}
	if err := s.repo.UpsertPunches(c.Request.Context(), rows); err != nil {
		s.internalError(c, remote.OpUpsertPunch, err)
		return
	}
	created(c, rows)
}

func (s *server) queryPunches(c *gin.Context) {
	code, ok := eqFilter(c, "employee_code")
	if !ok {
		badRequest(c, "employee_code=eq.<code> is required")
		return
	}
	if order := c.Query("order"); order != "" && order != "timestamp.desc" {
		badRequest(c, "unsupported order "+strconv.Quote(order))
		return
	}
	limit, ok := limitParam(c)
	if !ok {
		badRequest(c, "invalid limit")
		return
	}
	rows, err := s.repo.Punches(c.Request.Context(), code, limit)
	if err != nil {
		s.internalError(c, remote.OpQueryPunches, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *server) insertNotes(c *gin.Context) {
	rows, err := bindRows[remote.NoteRow](c)
	if err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	for _, r := range rows {
		if r.ID == "" || r.EmployeeCode == "" {
			badRequest(c, "id and employee_code are required")
			return
		}
	}
	if err := s.repo.InsertNotes(c.Request.Context(), rows); err != nil {
		s.internalError(c, remote.OpInsertNote, err)
		return
	}
	created(c, rows)
}

func (s *server) insertBadges(c *gin.Context) {
	rows, err := bindRows[remote.BadgeRecord](c)
	if err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	stored := make([]remote.BadgeRecord, 0, len(rows))
	for _, r := range rows {
		if r.EmployeeCode == "" || r.BadgeID == "" {
			badRequest(c, "employee_code and badge_id are required")
			return
		}
		if r.EarnedAt.IsZero() {
			r.EarnedAt = time.Now().UTC()
		}
		rec, err := s.repo.InsertBadge(c.Request.Context(), r)
		if errors.Is(err, ErrDuplicate) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"code":    codeUniqueViolation,
				"message": "duplicate key value violates unique constraint",
			})
			return
		}
		if err != nil {
			s.internalError(c, remote.OpInsertBadge, err)
			return
		}
		stored = append(stored, rec)
	}
	created(c, stored)
}

func (s *server) queryBadges(c *gin.Context) {
	code, ok := eqFilter(c, "employee_code")
	if !ok {
		badRequest(c, "employee_code=eq.<code> is required")
		return
	}
	rows, err := s.repo.Badges(c.Request.Context(), code)
	if err != nil {
		s.internalError(c, remote.OpQueryBadges, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *server) putEmployees(c *gin.Context) {
	rows, err := bindRows[remote.EmployeeRow](c)
	if err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	for _, r := range rows {
		if strings.TrimSpace(r.EmployeeCode) == "" {
			badRequest(c, "employee_code is required")
			return
		}
		if err := s.repo.PutEmployee(c.Request.Context(), r); err != nil {
			s.internalError(c, "put_employee", err)
			return
		}
	}
	created(c, rows)
}

func (s *server) lookupEmployee(c *gin.Context) {
	code, ok := eqFilter(c, "employee_code")
	if !ok {
		badRequest(c, "employee_code=eq.<code> is required")
		return
	}
	if _, ok := limitParam(c); !ok {
		badRequest(c, "invalid limit")
		return
	}
	row, found, err := s.repo.Employee(c.Request.Context(), code)
	if err != nil {
		s.internalError(c, remote.OpLookupEmployee, err)
		return
	}
	rows := make([]remote.EmployeeRow, 0, 1)
	if found {
		rows = append(rows, row)
	}
	c.JSON(http.StatusOK, rows)
}
