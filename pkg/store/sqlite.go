// Package store persists experiment runs in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore initializes the SQLite database connection.
// It enables WAL mode for concurrency and durability.
func NewStore(dbPath string) (*Store, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		// Per-connection pragma, so it goes in the DSN to cover the whole pool.
		dsn += "?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		config JSON NOT NULL,
		run_type TEXT NOT NULL,
		n_trajectories INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		attack_rate REAL NOT NULL DEFAULT 0,
		artifacts JSON,
		error TEXT,
		summary JSON
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);

	CREATE TABLE IF NOT EXISTS weekly_cases (
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		window_index INTEGER NOT NULL,
		start_step INTEGER NOT NULL,
		end_step INTEGER NOT NULL,
		cases REAL NOT NULL,
		normalized REAL NOT NULL,
		PRIMARY KEY (run_id, window_index)
	);

	CREATE TABLE IF NOT EXISTS age_distribution (
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		bin INTEGER NOT NULL,
		age_lo REAL NOT NULL,
		age_hi REAL NOT NULL,
		cases REAL NOT NULL,
		normalized REAL NOT NULL,
		PRIMARY KEY (run_id, bin)
	);

	CREATE TABLE IF NOT EXISTS leases (
		name TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		version INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}
