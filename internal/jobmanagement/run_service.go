// Package jobmanagement tracks a batch evaluation as a run that moves
// through PENDING, RUNNING and COMPLETED or FAILED.
package jobmanagement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"speech-eval-toolkit/internal/datastore"
	"speech-eval-toolkit/internal/resulttable"
)

const (
	RunStatusPending   = "PENDING"
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// RunStore is the part of datastore.Store a RunService writes to.
type RunStore interface {
	CreateRun(ctx context.Context, run *datastore.EvaluationRun) (int, error)
	GetRun(ctx context.Context, id int) (*datastore.EvaluationRun, error)
	UpdateRunStatus(ctx context.Context, id int, status string) error
	UpdateRunTimestamps(ctx context.Context, id int, startTime, endTime sql.NullTime) error
	CreateRecords(ctx context.Context, records []*datastore.EvaluationRecord) error
}

// RunRequest describes one batch evaluation.
type RunRequest struct {
	Name       string
	Engine     string
	Model      string
	Dataset    string
	Parameters map[string]any
}

// BatchFunc performs the evaluation and returns its per-file records.
type BatchFunc func(ctx context.Context) ([]resulttable.Record, error)

// RunService records the lifecycle of batch evaluations.
type RunService struct {
	store RunStore
}

func NewRunService(store RunStore) *RunService {
	return &RunService{store: store}
}

// Execute creates a PENDING run, marks it RUNNING, calls batch and stores
// its records, then marks the run COMPLETED or FAILED. The records are
// returned even when storing them fails; the error from batch takes
// precedence over bookkeeping errors.
func (s *RunService) Execute(ctx context.Context, req RunRequest, batch BatchFunc) (*datastore.EvaluationRun, []resulttable.Record, error) {
	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal run parameters: %w", err)
	}
	run := &datastore.EvaluationRun{
		RunName:    sql.NullString{String: req.Name, Valid: req.Name != ""},
		Engine:     req.Engine,
		Model:      sql.NullString{String: req.Model, Valid: req.Model != ""},
		Dataset:    req.Dataset,
		Status:     RunStatusPending,
		Parameters: params,
	}
	if _, err := s.store.CreateRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("failed to create evaluation run: %w", err)
	}
	logger := log.With().Int("run_id", run.ID).Str("engine", run.Engine).Logger()
	logger.Info().Msg("Evaluation run created")

	if err := s.store.UpdateRunStatus(ctx, run.ID, RunStatusRunning); err != nil {
		s.fail(ctx, run)
		return run, nil, fmt.Errorf("failed to mark run %d running: %w", run.ID, err)
	}
	run.Status = RunStatusRunning
	started := sql.NullTime{Time: time.Now(), Valid: true}
	if err := s.store.UpdateRunTimestamps(ctx, run.ID, started, sql.NullTime{}); err != nil {
		s.fail(ctx, run)
		return run, nil, fmt.Errorf("failed to set started_at for run %d: %w", run.ID, err)
	}
	run.StartedAt = started

	records, evalErr := batch(ctx)

	// Bookkeeping continues after cancellation so the run is not left RUNNING.
	bg := context.WithoutCancel(ctx)
	storeErr := s.storeRecords(bg, run.ID, records)
	status := RunStatusCompleted
	if evalErr != nil || storeErr != nil {
		status = RunStatusFailed
	}
	if err := s.store.UpdateRunStatus(bg, run.ID, status); err != nil {
		logger.Error().Err(err).Str("status", status).Msg("Failed to update final run status")
	}
	run.Status = status
	completed := sql.NullTime{Time: time.Now(), Valid: true}
	if err := s.store.UpdateRunTimestamps(bg, run.ID, sql.NullTime{}, completed); err != nil {
		logger.Error().Err(err).Msg("Failed to set completed_at")
	}
	run.CompletedAt = completed

	if final, err := s.store.GetRun(bg, run.ID); err == nil {
		run = final
	} else {
		logger.Warn().Err(err).Msg("Failed to fetch final run state")
	}
	logger.Info().Str("status", status).Int("records", len(records)).Msg("Evaluation run finished")

	if evalErr != nil {
		return run, records, evalErr
	}
	return run, records, storeErr
}

func (s *RunService) storeRecords(ctx context.Context, runID int, records []resulttable.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]*datastore.EvaluationRecord, len(records))
	for i, r := range records {
		rows[i] = datastore.RecordFromResult(runID, r)
	}
	if err := s.store.CreateRecords(ctx, rows); err != nil {
		return fmt.Errorf("failed to store records for run %d: %w", runID, err)
	}
	return nil
}

func (s *RunService) fail(ctx context.Context, run *datastore.EvaluationRun) {
	run.Status = RunStatusFailed
	if err := s.store.UpdateRunStatus(ctx, run.ID, RunStatusFailed); err != nil {
		log.Error().Err(err).Int("run_id", run.ID).Msg("Failed to mark run failed")
	}
	_ = s.store.UpdateRunTimestamps(ctx, run.ID, sql.NullTime{}, sql.NullTime{Time: time.Now(), Valid: true})
}
