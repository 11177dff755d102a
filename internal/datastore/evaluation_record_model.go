package datastore

import (
	"database/sql"
	"time"

	"speech-eval-toolkit/internal/coreengine/metricscalculator"
	"speech-eval-toolkit/internal/resulttable"
)

// EvaluationRecord maps to the evaluation_records table. Rates are stored as
// percentage points.
type EvaluationRecord struct {
	ID          int             `json:"id"`
	RunID       int             `json:"run_id"`
	Filename    string          `json:"filename"`
	Status      string          `json:"status"`
	WER         sql.NullFloat64 `json:"wer"`
	CER         sql.NullFloat64 `json:"cer"`
	GroundTruth sql.NullString  `json:"ground_truth"`
	Hypothesis  sql.NullString  `json:"hypothesis"`
	ErrorText   sql.NullString  `json:"error_text"`
	LatencyMs   sql.NullInt64   `json:"latency_ms"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RecordFromResult converts a result table row. Cells that do not parse as a
// rate become NULL.
func RecordFromResult(runID int, r resulttable.Record) *EvaluationRecord {
	return &EvaluationRecord{
		RunID:       runID,
		Filename:    r.Filename,
		Status:      r.Status,
		WER:         nullRate(r.WER),
		CER:         nullRate(r.CER),
		GroundTruth: sql.NullString{String: r.GroundTruth, Valid: r.GroundTruth != ""},
		Hypothesis:  sql.NullString{String: r.Hypothesis, Valid: r.Hypothesis != ""},
		ErrorText:   sql.NullString{String: r.Error, Valid: r.Error != ""},
		LatencyMs:   sql.NullInt64{Int64: r.LatencyMs, Valid: r.LatencyMs > 0},
	}
}

// Result converts the row back into a result table record.
func (e *EvaluationRecord) Result() resulttable.Record {
	rec := resulttable.Record{
		Filename:    e.Filename,
		GroundTruth: e.GroundTruth.String,
		Hypothesis:  e.Hypothesis.String,
		Status:      e.Status,
		Error:       e.ErrorText.String,
		LatencyMs:   e.LatencyMs.Int64,
	}
	if e.WER.Valid {
		rec.WER = metricscalculator.FormatRate(e.WER.Float64 / 100)
	}
	if e.CER.Valid {
		rec.CER = metricscalculator.FormatRate(e.CER.Float64 / 100)
	}
	return rec
}

func nullRate(cell string) sql.NullFloat64 {
	v, err := metricscalculator.ParseRate(cell)
	if err != nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
