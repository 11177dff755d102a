package datastore

import (
	"database/sql"
	"encoding/json"
	"time"
)

// EvaluationRun maps to the evaluation_runs table.
type EvaluationRun struct {
	ID          int             `json:"id"`
	RunName     sql.NullString  `json:"run_name"`
	Engine      string          `json:"engine"`
	Model       sql.NullString  `json:"model"`
	Dataset     string          `json:"dataset"` // input directory or dataset CSV
	Status      string          `json:"status"`  // PENDING, RUNNING, COMPLETED, FAILED
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   sql.NullTime    `json:"started_at"`
	CompletedAt sql.NullTime    `json:"completed_at"`
}

func nullJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
