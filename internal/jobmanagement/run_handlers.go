package jobmanagement

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"speech-eval-toolkit/internal/coreengine/metricscalculator"
	"speech-eval-toolkit/internal/datastore"
	"speech-eval-toolkit/internal/resulttable"
)

// RunReader is the read side of datastore.Store.
type RunReader interface {
	GetRun(ctx context.Context, id int) (*datastore.EvaluationRun, error)
	ListRuns(ctx context.Context, engine string) ([]*datastore.EvaluationRun, error)
	ListRecords(ctx context.Context, runID int) ([]*datastore.EvaluationRecord, error)
}

// RunHandlers serves stored runs over HTTP.
type RunHandlers struct {
	Store RunReader
}

// ListRunsHandler lists runs, optionally filtered with ?engine=.
func (h *RunHandlers) ListRunsHandler(c *gin.Context) {
	runs, err := h.Store.ListRuns(c.Request.Context(), c.Query("engine"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *RunHandlers) GetRunHandler(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	run, err := h.Store.GetRun(c.Request.Context(), id)
	if err != nil {
		writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetRunRecordsHandler returns the records of a run in result table form
// together with the run's mean WER.
func (h *RunHandlers) GetRunRecordsHandler(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Store.GetRun(ctx, id); err != nil {
		writeLookupError(c, err)
		return
	}
	rows, err := h.Store.ListRecords(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve records: " + err.Error()})
		return
	}
	records := make([]resulttable.Record, len(rows))
	rates := make([]string, len(rows))
	for i, r := range rows {
		records[i] = r.Result()
		rates[i] = records[i].WER
	}
	body := gin.H{"run_id": id, "records": records}
	if agg, err := metricscalculator.AverageRates(rates); err == nil {
		body["mean_wer"] = agg.String()
	}
	c.JSON(http.StatusOK, body)
}

func runID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run ID format"})
		return 0, false
	}
	return id, true
}

func writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, datastore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve run: " + err.Error()})
}
