package datastore

import (
	"context"
	"fmt"
	"time"
)

// CreateRecords inserts every record of a run in one transaction.
func (s *Store) CreateRecords(ctx context.Context, records []*EvaluationRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO evaluation_records (
			run_id, filename, status, wer, cer,
			ground_truth, hypothesis, error_text, latency_ms, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range records {
		r.CreatedAt = now
		if err := stmt.QueryRowContext(ctx,
			r.RunID,
			r.Filename,
			r.Status,
			r.WER,
			r.CER,
			r.GroundTruth,
			r.Hypothesis,
			r.ErrorText,
			r.LatencyMs,
			r.CreatedAt,
		).Scan(&r.ID); err != nil {
			return fmt.Errorf("failed to create evaluation record %s: %w", r.Filename, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit evaluation records: %w", err)
	}
	return nil
}

// ListRecords returns the records of a run in insertion order.
func (s *Store) ListRecords(ctx context.Context, runID int) ([]*EvaluationRecord, error) {
	query := `
		SELECT id, run_id, filename, status, wer, cer,
		       ground_truth, hypothesis, error_text, latency_ms, created_at
		FROM evaluation_records
		WHERE run_id = $1
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records for run %d: %w", runID, err)
	}
	defer rows.Close()

	records := []*EvaluationRecord{}
	for rows.Next() {
		r := &EvaluationRecord{}
		if err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.Filename,
			&r.Status,
			&r.WER,
			&r.CER,
			&r.GroundTruth,
			&r.Hypothesis,
			&r.ErrorText,
			&r.LatencyMs,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record row for run %d: %w", runID, err)
		}
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for records (run %d): %w", runID, err)
	}
	return records, nil
}
