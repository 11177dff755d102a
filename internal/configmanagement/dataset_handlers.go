package configmanagement

import (
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"speech-eval-toolkit/internal/coreengine/textnormalizer"
	"speech-eval-toolkit/internal/dataset"
)

// DatasetHandlers serves the entries of a dataset CSV.
type DatasetHandlers struct {
	DatasetCSV string
}

func (h *DatasetHandlers) load(c *gin.Context) ([]dataset.Entry, bool) {
	if h.DatasetCSV == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No dataset configured"})
		return nil, false
	}
	entries, err := dataset.ReadDatasetCSV(h.DatasetCSV)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Dataset file not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read dataset: " + err.Error()})
		}
		return nil, false
	}
	return entries, true
}

// ListEntriesHandler lists entries. ?q= keeps entries whose normalized
// ground truth contains the normalized query; ?limit= caps the result.
func (h *DatasetHandlers) ListEntriesHandler(c *gin.Context) {
	entries, ok := h.load(c)
	if !ok {
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}
	q := textnormalizer.Normalize(c.Query("q"))

	out := []dataset.Entry{}
	for _, e := range entries {
		if q != "" && !strings.Contains(e.NormalizedGroundTruth, q) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"total": len(entries), "entries": out})
}

func (h *DatasetHandlers) GetEntryHandler(c *gin.Context) {
	entries, ok := h.load(c)
	if !ok {
		return
	}
	id := c.Param("id")
	for _, e := range entries {
		if e.ID == id {
			c.JSON(http.StatusOK, e)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Dataset entry " + id + " not found"})
}
