// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledgerserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/bfa-sv/punchledger/services/ledger/remote"
)

// GormRepository stores the ledger in MySQL through gorm.
type GormRepository struct {
	db *gorm.DB
}

// OpenMySQL connects to dsn, installs tracing and migrates the tables.
// The DSN must carry parseTime=true. A nil logger means slog.Default().
func OpenMySQL(dsn string, log *slog.Logger) (*GormRepository, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("install otelgorm: %w", err)
	}
	return NewGormRepository(db)
}

// NewGormRepository migrates the ledger tables on db.
func NewGormRepository(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&remote.PunchRow{}, &remote.NoteRow{}, &remote.BadgeRecord{}, &remote.EmployeeRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormRepository{db: db}, nil
}

// slogWriter adapts slog.Logger to gorm's logger.Writer. gorm only emits
// through it at or above the configured LogLevel, so every line is an error.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func gormLogger(log *slog.Logger) logger.Interface {
	if log == nil {
		log = slog.Default()
	}
	return logger.New(slogWriter{logger: log.With("component", "gorm")}, logger.Config{
		LogLevel:                  logger.Error,
		SlowThreshold:             time.Second,
		IgnoreRecordNotFoundError: true,
	})
}

// Close releases the connection pool.
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func upsertByID(tx *gorm.DB, rows any) *gorm.DB {
	return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).Create(rows)
}

func punchesQuery(tx *gorm.DB, employeeCode string, limit int) *gorm.DB {
	q := tx.Where("employee_code = ?", employeeCode).Order("timestamp DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

// UpsertPunches implements Repository.
func (r *GormRepository) UpsertPunches(ctx context.Context, rows []remote.PunchRow) error {
	if len(rows) == 0 {
		return nil
	}
	return upsertByID(r.db.WithContext(ctx), &rows).Error
}

// InsertNotes implements Repository.
func (r *GormRepository) InsertNotes(ctx context.Context, rows []remote.NoteRow) error {
	if len(rows) == 0 {
		return nil
	}
	return upsertByID(r.db.WithContext(ctx), &rows).Error
}

// InsertBadge implements Repository.
func (r *GormRepository) InsertBadge(ctx context.Context, row remote.BadgeRecord) (remote.BadgeRecord, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return remote.BadgeRecord{}, ErrDuplicate
		}
		return remote.BadgeRecord{}, err
	}
	return row, nil
}

// Punches implements Repository.
func (r *GormRepository) Punches(ctx context.Context, employeeCode string, limit int) ([]remote.PunchRow, error) {
	rows := make([]remote.PunchRow, 0)
	err := punchesQuery(r.db.WithContext(ctx), employeeCode, limit).Find(&rows).Error
	return rows, err
}

// Badges implements Repository.
func (r *GormRepository) Badges(ctx context.Context, employeeCode string) ([]remote.BadgeRecord, error) {
	rows := make([]remote.BadgeRecord, 0)
	err := r.db.WithContext(ctx).Where("employee_code = ?", employeeCode).Order("earned_at").Find(&rows).Error
	return rows, err
}

// Employee implements Repository.
func (r *GormRepository) Employee(ctx context.Context, code string) (remote.EmployeeRow, bool, error) {
	var row remote.EmployeeRow
	err := r.db.WithContext(ctx).Where("employee_code = ?", code).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return remote.EmployeeRow{}, false, nil
	case err != nil:
		return remote.EmployeeRow{}, false, err
	}
	return row, true, nil
}

// PutEmployee implements Repository.
func (r *GormRepository) PutEmployee(ctx context.Context, row remote.EmployeeRow) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
