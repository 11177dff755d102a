package diarization

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-eval-toolkit/internal/audio"
	"speech-eval-toolkit/internal/coreengine/metricscalculator"
	"speech-eval-toolkit/internal/coreengine/vendoradapters"
)

const sampleRTTM = `;; comment line
SPEAKER meeting 1 0.000 5.000 <NA> <NA> A <NA> <NA>

SPKR-INFO meeting 1 <NA> <NA> <NA> unknown A <NA> <NA>
SPEAKER meeting 1 5.500 2.250 <NA> <NA> B <NA> <NA>
`

func TestParseRTTM(t *testing.T) {
	segs, err := ParseRTTM(strings.NewReader(sampleRTTM))
	require.NoError(t, err)
	assert.Equal(t, []metricscalculator.SpeakerSegment{
		{URI: "meeting", Start: 0, End: 5, Speaker: "A"},
		{URI: "meeting", Start: 5.5, End: 7.75, Speaker: "B"},
	}, segs)
}

func TestParseRTTMReportsLineNumber(t *testing.T) {
	_, err := ParseRTTM(strings.NewReader("SPEAKER a 1 0.0 1.0 <NA> <NA> A\nSPEAKER a 1 x 1.0 <NA> <NA> B\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ParseRTTM(strings.NewReader("SPEAKER a 1 0.0\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = ParseRTTM(strings.NewReader("SPEAKER a 1 0.0 -1 <NA> <NA> A\n"))
	assert.ErrorContains(t, err, "negative duration")

	_, err = ParseRTTM(strings.NewReader("SPEAKER a 1 0.0 1.0 <NA> <NA> A\nSPEAKER a 1 NaN 1.0 <NA> <NA> B\n"))
	assert.ErrorContains(t, err, "line 2: onset")
	assert.ErrorContains(t, err, "not finite")

	_, err = ParseRTTM(strings.NewReader("SPEAKER a 1 0.0 NaN <NA> <NA> A\n"))
	assert.ErrorContains(t, err, "line 1: duration")

	_, err = ParseRTTM(strings.NewReader("SPEAKER a 1 0.0 +Inf <NA> <NA> A\n"))
	assert.ErrorContains(t, err, "not finite")
}

func TestWriteRTTMIsReadable(t *testing.T) {
	segs := []metricscalculator.SpeakerSegment{{URI: "rec", Start: 1.25, End: 3.5, Speaker: "SPEAKER_00"}}
	var buf bytes.Buffer
	require.NoError(t, WriteRTTM(&buf, segs))
	assert.Equal(t, "SPEAKER rec 1 1.250 2.250 <NA> <NA> SPEAKER_00 <NA> <NA>\n", buf.String())

	back, err := ParseRTTM(&buf)
	require.NoError(t, err)
	assert.Equal(t, segs, back)
}

func TestIdenticalRTTMScoresZeroDER(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.rttm")
	require.NoError(t, os.WriteFile(path, []byte(sampleRTTM), 0o644))
	ref, err := ReadRTTM(path)
	require.NoError(t, err)

	res, err := metricscalculator.CalculateDER(ref, ref)
	require.NoError(t, err)
	assert.Zero(t, res.Rate())
}

func TestFetchModels(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("Authorization") != "Bearer hf_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, "weights for %s", r.URL.Path)
	}))
	defer srv.Close()

	dir := t.TempDir()
	files := []ModelFile{{Repo: "org/seg", Path: "model.onnx"}}
	paths, err := FetchModels(context.Background(), srv.Client(), srv.URL, "hf_test", dir, files)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "weights for /org/seg/resolve/main/model.onnx", string(data))

	_, err = FetchModels(context.Background(), srv.Client(), srv.URL, "hf_test", dir, files)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "present files are not fetched again")

	_, err = FetchModels(context.Background(), srv.Client(), srv.URL, "wrong", t.TempDir(), files)
	assert.ErrorContains(t, err, "401")
}

func TestFetchModelsRequiresToken(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	_, err := FetchModels(context.Background(), srv.Client(), srv.URL, "", t.TempDir(), DefaultModels)
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

type fixedDiarizer struct{ turns []Turn }

func (f fixedDiarizer) Diarize([]float32) ([]Turn, error) { return f.turns, nil }
func (f fixedDiarizer) SampleRate() int                   { return 16000 }

func TestDiarizeAndTranscribe(t *testing.T) {
	dir := t.TempDir()
	wavPath := filepath.Join(dir, "call.wav")
	require.NoError(t, audio.WriteWAV(wavPath, make([]int16, 32000), 16000))

	d := fixedDiarizer{turns: []Turn{
		{Start: 0, End: 1, Speaker: SpeakerLabel(0)},
		{Start: 1, End: 2, Speaker: SpeakerLabel(1)},
		{Start: 5, End: 6, Speaker: SpeakerLabel(0)},
	}}
	adapter := &vendoradapters.MockASRAdapter{Text: " hi "}
	out := filepath.Join(dir, "out")

	res, err := DiarizeAndTranscribe(context.Background(), d, adapter, wavPath, "en", out)
	require.NoError(t, err)
	assert.Equal(t, []string{"[SPEAKER_00]: hi", "[SPEAKER_01]: hi"}, res.Lines, "turns past the end of audio are not transcribed")
	assert.Len(t, adapter.Calls(), 2)

	transcript, err := os.ReadFile(filepath.Join(out, TranscriptFile))
	require.NoError(t, err)
	assert.Equal(t, "[SPEAKER_00]: hi\n[SPEAKER_01]: hi", string(transcript))

	segs, err := ReadRTTM(filepath.Join(out, RTTMFile))
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, "call", segs[0].URI)
	assert.Equal(t, "SPEAKER_01", segs[1].Speaker)
}

func TestDiarizeAndTranscribeMissingAudio(t *testing.T) {
	_, err := DiarizeAndTranscribe(context.Background(), fixedDiarizer{}, &vendoradapters.MockASRAdapter{}, "missing.wav", "en", t.TempDir())
	assert.Error(t, err)
}
