package evaluationengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-eval-toolkit/internal/audio"
	"speech-eval-toolkit/internal/coreengine/vendoradapters"
	"speech-eval-toolkit/internal/dataset"
	"speech-eval-toolkit/internal/resulttable"
)

// scriptedAdapter answers from a table keyed by file base name.
type scriptedAdapter struct {
	answers map[string]string
	calls   []string
}

func (s *scriptedAdapter) Name() string { return "scripted" }

func (s *scriptedAdapter) Recognize(ctx context.Context, path, lang string) (string, string, error) {
	s.calls = append(s.calls, filepath.Base(path))
	text, ok := s.answers[filepath.Base(path)]
	if !ok {
		return "", "", assert.AnError
	}
	return text, `{}`, nil
}

func writeEvalWAV(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, audio.WriteWAV(path, make([]int16, 1600), audio.EvalSampleRate))
}

func writeStereoWAV(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 44100, 16, 2, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 44100},
		Data:           make([]int, 4410*2),
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestEvaluateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	writeEvalWAV(t, path)

	e := New(&scriptedAdapter{answers: map[string]string{"a.wav": "Hello there WORLD"}}, "en")
	res, err := e.EvaluateFile(context.Background(), path, "Hello, world!")
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.NormalizedGroundTruth)
	assert.Equal(t, "hello there world", res.NormalizedHypothesis)
	assert.InDelta(t, 0.5, res.WER, 1e-9)
	assert.Equal(t, 16000, res.Format.SampleRate)
}

func TestEvaluateFileRejectsStereoBeforeTranscription(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeStereoWAV(t, path)

	adapter := &vendoradapters.MockASRAdapter{}
	_, err := New(adapter, "en").EvaluateFile(context.Background(), path, "anything")
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)
	assert.Empty(t, adapter.Calls())
}

func TestRunBatchRecordsEveryOutcome(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "id001.wav")
	failing := filepath.Join(dir, "id002.wav")
	stereo := filepath.Join(dir, "id003.wav")
	writeEvalWAV(t, good)
	writeEvalWAV(t, failing)
	writeStereoWAV(t, stereo)

	adapter := &scriptedAdapter{answers: map[string]string{"id001.wav": "the cat sat down"}}
	e := New(adapter, "en")
	var seen []int
	e.OnRecord = func(i, total int, rec resulttable.Record) {
		assert.Equal(t, 3, total)
		seen = append(seen, i)
	}

	records, err := e.RunBatch(context.Background(), []dataset.Pair{
		{ID: "id001", AudioPath: good, GroundTruth: "The cat sat."},
		{ID: "id002", AudioPath: failing, GroundTruth: "unused"},
		{ID: "id003", AudioPath: stereo, GroundTruth: "unused"},
	})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []int{0, 1, 2}, seen)

	assert.Equal(t, resulttable.StatusOK, records[0].Status)
	assert.Equal(t, "33.33%", records[0].WER)
	assert.Equal(t, "the cat sat down", records[0].Hypothesis)

	assert.Equal(t, resulttable.StatusError, records[1].Status)
	assert.Empty(t, records[1].WER)
	assert.NotEmpty(t, records[1].Error)

	assert.Equal(t, resulttable.StatusSkipped, records[2].Status)
	assert.Equal(t, []string{"id001.wav", "id002.wav"}, adapter.calls, "malformed audio must never reach the engine")

	s := Summarize(records)
	assert.Equal(t, 3, s.Processed)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.True(t, s.HasMean)
	assert.InDelta(t, 33.33, s.MeanWER, 1e-9)
}

func TestRunBatchStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	writeEvalWAV(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	records, err := New(&vendoradapters.MockASRAdapter{}, "en").RunBatch(ctx, []dataset.Pair{{AudioPath: path}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, records)
}

func TestRunDatasetCSVMissingFile(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "84-121123-0000.wav")
	writeEvalWAV(t, present)

	records, err := New(&vendoradapters.MockASRAdapter{Text: "go do"}, "en").RunDatasetCSV(context.Background(), []dataset.Entry{
		{ID: "84-121123-0000", AudioPath: present, GroundTruth: "GO DO"},
		{ID: "84-121123-0001", AudioPath: filepath.Join(dir, "84-121123-0001.wav"), GroundTruth: "GONE"},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "0.00%", records[0].WER)
	assert.Equal(t, resulttable.StatusFileNotFound, records[1].Status)
	assert.Equal(t, "84-121123-0001.wav", records[1].Filename)
}

func TestSummarizeWithoutScores(t *testing.T) {
	s := Summarize([]resulttable.Record{{Status: resulttable.StatusError}})
	assert.False(t, s.HasMean)
	assert.Equal(t, 1, s.Failed)
}
