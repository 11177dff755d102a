// Package datastore records evaluation runs and their per-file results in
// PostgreSQL.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// pq is the PostgreSQL driver
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps a database handle.
type Store struct {
	db *sql.DB
}

// New wraps an existing handle, such as one from sqlmock.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS evaluation_runs (
	id           SERIAL PRIMARY KEY,
	run_name     TEXT,
	engine       TEXT NOT NULL,
	model        TEXT,
	dataset      TEXT NOT NULL,
	status       TEXT NOT NULL,
	parameters   JSONB,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS evaluation_records (
	id           SERIAL PRIMARY KEY,
	run_id       INTEGER NOT NULL REFERENCES evaluation_runs(id) ON DELETE CASCADE,
	filename     TEXT NOT NULL,
	status       TEXT NOT NULL,
	wer          DOUBLE PRECISION,
	cer          DOUBLE PRECISION,
	ground_truth TEXT,
	hypothesis   TEXT,
	error_text   TEXT,
	latency_ms   BIGINT,
	created_at   TIMESTAMPTZ NOT NULL
);`

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
