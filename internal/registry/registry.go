// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/ondisk/isopod/internal/errs"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Registry is a single-writer transactional store over disc records. All
// operations are serializable: a crash at any point must leave the store
// consistent with the lifecycle invariants in the disc data model.
type Registry struct {
	db *gorm.DB
}

// Open opens (creating if absent) the sqlite-backed registry at path, in
// WAL journal mode with a busy_timeout so concurrent readers from the
// Ripper, Sender, and Reporter never collide with the single writer.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("migrating registry schema: %w", err)
	}

	return &Registry{db: db}, nil
}

// Insert fails with RegistryUniqueViolation if record.Path already exists.
func (r *Registry) Insert(record *Disc) error {
	if err := r.db.Create(record).Error; err != nil {
		if isUniqueConstraintError(err) {
			return errs.New(errs.RegistryUniqueViolation, record.Path)
		}
		return errs.Wrap(errs.New(errs.RegistryIO, err.Error()), errs.RegistryIO)
	}
	return nil
}

// Update replaces the record identified by record.Path in full.
func (r *Registry) Update(record *Disc) error {
	if err := r.db.Save(record).Error; err != nil {
		return errs.Wrap(errs.New(errs.RegistryIO, err.Error()), errs.RegistryIO)
	}
	return nil
}

// Delete removes the record at path. It is idempotent: deleting an absent
// path is not an error.
func (r *Registry) Delete(path string) error {
	if err := r.db.Delete(&Disc{}, "path = ?", path).Error; err != nil {
		return errs.Wrap(errs.New(errs.RegistryIO, err.Error()), errs.RegistryIO)
	}
	return nil
}

// FindByHash returns the record with hash, optionally restricted to
// statuses. It returns (nil, nil) if no record matches.
func (r *Registry) FindByHash(hash []byte, statuses ...Status) (*Disc, error) {
	var record Disc
	q := r.db.Where("source_hash = ?", hash)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	err := q.First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.New(errs.RegistryIO, err.Error()), errs.RegistryIO)
	}
	return &record, nil
}

// ListByStatus returns every record with the given status.
func (r *Registry) ListByStatus(status Status) ([]Disc, error) {
	var records []Disc
	if err := r.db.Where("status = ?", status).Find(&records).Error; err != nil {
		return nil, errs.Wrap(errs.New(errs.RegistryIO, err.Error()), errs.RegistryIO)
	}
	return records, nil
}

// CountByStatus returns the number of records with the given status.
func (r *Registry) CountByStatus(status Status) (int64, error) {
	var count int64
	if err := r.db.Model(&Disc{}).Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, errs.Wrap(errs.New(errs.RegistryIO, err.Error()), errs.RegistryIO)
	}
	return count, nil
}

// NextSendable returns the SENDABLE record with the lowest NextSendAttempt
// (nulls first), or (nil, nil) if none exist.
func (r *Registry) NextSendable() (*Disc, error) {
	var record Disc
	err := r.db.Where("status = ?", StatusSendable).
		Order("next_send_attempt IS NOT NULL, next_send_attempt ASC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.New(errs.RegistryIO, err.Error()), errs.RegistryIO)
	}
	return &record, nil
}

// Close releases the underlying database connection.
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
