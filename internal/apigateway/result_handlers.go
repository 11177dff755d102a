package apigateway

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"speech-eval-toolkit/internal/coreengine/evaluationengine"
	"speech-eval-toolkit/internal/coreengine/metricscalculator"
	"speech-eval-toolkit/internal/resulttable"
)

// ResultHandlers serves the result tables found directly inside Dir.
type ResultHandlers struct {
	Dir string
}

// ResultSummary describes one result table.
type ResultSummary struct {
	Name      string `json:"name"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	MeanWER   string `json:"mean_wer,omitempty"`
}

func summarize(name string, records []resulttable.Record) ResultSummary {
	s := evaluationengine.Summarize(records)
	out := ResultSummary{Name: name, Processed: s.Processed, Succeeded: s.Succeeded, Failed: s.Failed, Skipped: s.Skipped}
	if s.HasMean {
		out.MeanWER = metricscalculator.FormatRate(s.MeanWER / 100)
	}
	return out
}

// ListResultsHandler summarizes every *.csv in Dir that parses as a result
// table. Other CSV files are skipped.
func (h *ResultHandlers) ListResultsHandler(c *gin.Context) {
	matches, err := filepath.Glob(filepath.Join(h.Dir, "*.csv"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sort.Strings(matches)
	out := []ResultSummary{}
	for _, path := range matches {
		records, err := resulttable.Read(path)
		if err != nil {
			log.Debug().Err(err).Str("file", path).Msg("Skipping non result table")
			continue
		}
		out = append(out, summarize(filepath.Base(path), records))
	}
	c.JSON(http.StatusOK, out)
}

// GetResultHandler returns one table's summary and records.
func (h *ResultHandlers) GetResultHandler(c *gin.Context) {
	name := c.Param("name")
	if name != filepath.Base(name) || !strings.HasSuffix(name, ".csv") || strings.HasPrefix(name, ".") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid result table name"})
		return
	}
	records, err := resulttable.Read(filepath.Join(h.Dir, name))
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			c.JSON(http.StatusNotFound, gin.H{"error": "Result table " + name + " not found"})
		case errors.Is(err, resulttable.ErrMissingColumn):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summarize(name, records), "records": records})
}

// EnsureDir creates the results directory if needed.
func (h *ResultHandlers) EnsureDir() error {
	return os.MkdirAll(h.Dir, 0o755)
}
