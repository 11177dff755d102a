package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const runColumns = "id, run_name, engine, model, dataset, status, parameters, created_at, updated_at, started_at, completed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*EvaluationRun, error) {
	run := &EvaluationRun{}
	var params []byte
	if err := row.Scan(
		&run.ID,
		&run.RunName,
		&run.Engine,
		&run.Model,
		&run.Dataset,
		&run.Status,
		&params,
		&run.CreatedAt,
		&run.UpdatedAt,
		&run.StartedAt,
		&run.CompletedAt,
	); err != nil {
		return nil, err
	}
	if params != nil && string(params) != "null" {
		run.Parameters = json.RawMessage(params)
	}
	return run, nil
}

// CreateRun inserts run and sets its ID and timestamps.
func (s *Store) CreateRun(ctx context.Context, run *EvaluationRun) (int, error) {
	query := `
		INSERT INTO evaluation_runs (run_name, engine, model, dataset, status, parameters, created_at, updated_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now

	var id int
	err := s.db.QueryRowContext(ctx, query,
		run.RunName,
		run.Engine,
		run.Model,
		run.Dataset,
		run.Status,
		nullJSON(run.Parameters),
		run.CreatedAt,
		run.UpdatedAt,
		run.StartedAt,
		run.CompletedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create evaluation run: %w", err)
	}
	run.ID = id
	return id, nil
}

// GetRun returns the run with id, or an error wrapping ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id int) (*EvaluationRun, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM evaluation_runs WHERE id = $1", id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("evaluation run %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get evaluation run: %w", err)
	}
	return run, nil
}

// UpdateRunStatus sets the status of a run.
func (s *Store) UpdateRunStatus(ctx context.Context, id int, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE evaluation_runs SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update status for run %d: %w", id, err)
	}
	return expectOneRow(result, id)
}

// UpdateRunTimestamps sets started_at and/or completed_at; invalid values
// are left untouched.
func (s *Store) UpdateRunTimestamps(ctx context.Context, id int, startTime, endTime sql.NullTime) error {
	var set []string
	var args []any
	if startTime.Valid {
		args = append(args, startTime)
		set = append(set, fmt.Sprintf("started_at = $%d", len(args)))
	}
	if endTime.Valid {
		args = append(args, endTime)
		set = append(set, fmt.Sprintf("completed_at = $%d", len(args)))
	}
	if len(set) == 0 {
		return errors.New("no timestamps provided for update")
	}
	args = append(args, time.Now())
	set = append(set, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf("UPDATE evaluation_runs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update timestamps for run %d: %w", id, err)
	}
	return expectOneRow(result, id)
}

// ListRuns lists runs newest first, optionally only those of one engine.
func (s *Store) ListRuns(ctx context.Context, engine string) ([]*EvaluationRun, error) {
	query := "SELECT " + runColumns + " FROM evaluation_runs"
	var args []any
	if engine != "" {
		query += " WHERE engine = $1"
		args = append(args, engine)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluation runs: %w", err)
	}
	defer rows.Close()

	runs := []*EvaluationRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for evaluation runs: %w", err)
	}
	return runs, nil
}

func expectOneRow(result sql.Result, id int) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for run %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("evaluation run %d: %w", id, ErrNotFound)
	}
	return nil
}
