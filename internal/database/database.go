// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

// Package database is the durable association store: the many-to-many
// mapping between content items and canonical tags, with per-tag usage
// counters, backed by DuckDB.
//
// Reconcile is the single write entry point. Counter mutation is always an
// atomic SQL increment on the tag row, never an application-level
// read-modify-write, so concurrent reconciles for different content items
// sharing a tag cannot lose updates.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/minbar/tagcore/internal/config"
	"github.com/minbar/tagcore/internal/logging"
)

// DB wraps the DuckDB connection and provides the association store API.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig

	// tagLocks serializes counter transactions per tag key. The SQL
	// increment is atomic on its own; the lock exists to keep DuckDB's
	// optimistic concurrency from aborting racing updates on the same row.
	tagLocks sync.Map

	// now is the clock. Overridable in tests via SetClock.
	now func() time.Time

	// beforeCounterUpdate fires inside the reconcile transaction, between
	// the association row write and the counter update. Tests only.
	beforeCounterUpdate func()
}

// New opens the database and bootstraps the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for file-backed databases.
	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn: conn,
		cfg:  cfg,
		now:  time.Now,
	}

	if err := db.createSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", numThreads).Msg("association store ready")
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// SetClock overrides the store's clock. Tests only.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

// acquireTagLock locks the per-tag mutex for a canonical key.
func (db *DB) acquireTagLock(key string) *sync.Mutex {
	muInterface, _ := db.tagLocks.LoadOrStore(key, &sync.Mutex{})
	mu := muInterface.(*sync.Mutex)
	mu.Lock()
	return mu
}
