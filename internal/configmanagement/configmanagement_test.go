package configmanagement

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-eval-toolkit/internal/coreengine/vendoradapters"
	"speech-eval-toolkit/internal/dataset"
)

func serve(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "****7890", MaskSecret("sk-1234567890"))
}

func TestEngineHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &EngineHandlers{Config: vendoradapters.Config{Engine: "deepgram", APIKey: "dg-secret-key-abcd"}}
	r := gin.New()
	r.GET("/engines", h.ListEnginesHandler)
	r.GET("/engines/config", h.GetEngineConfigHandler)

	w := serve(r, "/engines")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Engines []string `json:"engines"`
		Default string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Contains(t, list.Engines, vendoradapters.EngineVoskServer)
	assert.Equal(t, "deepgram", list.Default)

	w = serve(r, "/engines/config")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "dg-secret")
	assert.Contains(t, w.Body.String(), `"api_key":"****abcd"`)
}

func TestDatasetHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte("audio_path,ground_truth\n"+
		"data/84-121123-0000.flac,GO DO YOU HEAR\n"+
		"data/84-121123-0001.flac,BUT IN LESS THAN FIVE MINUTES\n"+
		"data/84-121123-0002.flac,DO YOU HEAR IT\n"), 0o644))

	h := &DatasetHandlers{DatasetCSV: path}
	r := gin.New()
	r.GET("/datasets/entries", h.ListEntriesHandler)
	r.GET("/datasets/entries/:id", h.GetEntryHandler)

	var body struct {
		Total   int             `json:"total"`
		Entries []dataset.Entry `json:"entries"`
	}
	w := serve(r, "/datasets/entries?q=You+Hear!&limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Total)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "84-121123-0000", body.Entries[0].ID)
	assert.Equal(t, "go do you hear", body.Entries[0].NormalizedGroundTruth)

	w = serve(r, "/datasets/entries/84-121123-0001")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "FIVE MINUTES")

	assert.Equal(t, http.StatusNotFound, serve(r, "/datasets/entries/nope").Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, "/datasets/entries?limit=x").Code)

	missing := &DatasetHandlers{DatasetCSV: filepath.Join(t.TempDir(), "none.csv")}
	r2 := gin.New()
	r2.GET("/e", missing.ListEntriesHandler)
	assert.Equal(t, http.StatusNotFound, serve(r2, "/e").Code)
}
