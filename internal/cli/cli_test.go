package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-eval-toolkit/internal/audio"
	"speech-eval-toolkit/internal/resulttable"
)

// isolate keeps config files from the developer's machine out of the test.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	code := run(context.Background(), root, append(args, "--log-level", "warn"))
	return out.String(), code
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeWAV(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, audio.WriteWAV(path, make([]int16, 1600), audio.EvalSampleRate))
}

func TestUsageErrorsExitTwo(t *testing.T) {
	isolate(t)
	cases := [][]string{
		{"no-such-command"},
		{"evaluate", "--wav", "a.wav"},
		{"batch", "--unknown-flag"},
		{"batch", "--input", "a", "--input-csv", "b.csv"},
		{"record", "--duration", "0s"},
		{"average", "--input", "r.csv", "--column", "der"},
		{"listen", "--vad", "webrtc"},
		{"dataset"},
	}
	for _, args := range cases {
		t.Run(args[0], func(t *testing.T) {
			out, code := execute(t, args...)
			assert.Equal(t, ExitUsage, code, out)
		})
	}
}

func TestDatasetThenBatchFromCSV(t *testing.T) {
	dir := isolate(t)
	tree := filepath.Join(dir, "LibriSpeech", "19", "198")
	writeFile(t, filepath.Join(tree, "19-198.trans.txt"), "19-198-0001 HELLO WORLD\n19-198-0002 GOOD MORNING\n")
	writeWAV(t, filepath.Join(tree, "19-198-0001.wav"))
	writeWAV(t, filepath.Join(tree, "19-198-0002.wav"))
	t.Setenv("SPEECHEVAL_ENGINE_MOCK_TEXT", "hello world")

	out, code := execute(t, "dataset", "--input", filepath.Join(dir, "LibriSpeech"), "--output", "dataset.csv")
	require.Equal(t, ExitOK, code, out)
	assert.Contains(t, out, "Dataset CSV with 2 entries created at dataset.csv")

	out, code = execute(t, "batch", "--engine", "mock", "--input-csv", "dataset.csv", "--output", "results.csv")
	require.Equal(t, ExitOK, code, out)
	assert.Contains(t, out, "[1/2] 19-198-0001.wav: ok 0.00%")
	assert.Contains(t, out, "2 processed, 2 ok, 0 failed, 0 skipped")
	assert.Contains(t, out, "Overall WER: 50.00%")

	records, err := resulttable.Read("results.csv")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "100.00%", records[1].WER)
}

func TestBatchFromDirectory(t *testing.T) {
	dir := isolate(t)
	data := filepath.Join(dir, "data")
	writeFile(t, filepath.Join(data, "transcripts.txt"), "a hello world\nb hello there\n")
	writeWAV(t, filepath.Join(data, "a.wav"))
	writeWAV(t, filepath.Join(data, "b.wav"))
	writeWAV(t, filepath.Join(data, "orphan.wav"))
	t.Setenv("SPEECHEVAL_ENGINE_MOCK_TEXT", "hello world")

	out, code := execute(t, "batch", "--engine", "mock", "--input", data, "--output", "out.csv")
	require.Equal(t, ExitOK, code, out)
	assert.Contains(t, out, "Skipping orphan.wav")
	assert.Contains(t, out, "Overall WER: 25.00%")

	out, code = execute(t, "average", "--input", "out.csv")
	require.Equal(t, ExitOK, code, out)
	assert.Contains(t, out, "Average WER: 25.00% (2 values, 0 skipped)")
}

func TestBatchWithFailingEngine(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "data", "t.txt"), "a hello\n")
	writeWAV(t, filepath.Join(dir, "data", "a.wav"))

	out, code := execute(t, "batch", "--engine", "mock-error", "--input", filepath.Join(dir, "data"))
	require.Equal(t, ExitOK, code, out)
	assert.Contains(t, out, "1 processed, 0 ok, 1 failed")
	assert.NotContains(t, out, "Overall WER")

	records, err := resulttable.Read("evaluation_results.csv")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, resulttable.StatusError, records[0].Status)
}

func TestBatchMissingInput(t *testing.T) {
	isolate(t)
	_, code := execute(t, "batch", "--engine", "mock", "--input", "does-not-exist")
	assert.Equal(t, ExitFailure, code)
}

func TestAverageSkipsUnparsableRates(t *testing.T) {
	isolate(t)
	require.NoError(t, resulttable.Write("r.csv", []resulttable.Record{
		{Filename: "a.wav", WER: "2.00%", CER: "1.00%"},
		{Filename: "b.wav", WER: "4.00%", CER: "3.00%"},
		{Filename: "c.wav", WER: "ERROR"},
	}))

	out, code := execute(t, "average", "--input", "r.csv")
	require.Equal(t, ExitOK, code, out)
	assert.Contains(t, out, "Average WER: 3.00% (2 values, 1 skipped)")

	out, code = execute(t, "average", "--input", "r.csv", "--column", "cer")
	require.Equal(t, ExitOK, code, out)
	assert.Contains(t, out, "Average CER: 2.00%")

	_, code = execute(t, "average", "--input", "missing.csv")
	assert.Equal(t, ExitFailure, code)
}

func TestEvaluateSingleFile(t *testing.T) {
	isolate(t)
	writeWAV(t, "clip.wav")
	writeFile(t, "clip.txt", "Hello, World!\n")
	t.Setenv("SPEECHEVAL_ENGINE_MOCK_TEXT", "hello world")

	out, code := execute(t, "evaluate", "--engine", "mock", "--wav", "clip.wav", "--gt", "clip.txt")
	require.Equal(t, ExitOK, code, out)
	assert.Contains(t, out, "GROUND TRUTH (raw):\nHello, World!")
	assert.Contains(t, out, "GROUND TRUTH (normalized):\nhello world")
	assert.Contains(t, out, "WER = 0.00%")
	assert.Contains(t, out, "CER = 0.00%")
}

func TestEvaluateRejectsWrongFormat(t *testing.T) {
	isolate(t)
	require.NoError(t, audio.WriteWAV("clip.wav", make([]int16, 800), 8000))
	writeFile(t, "clip.txt", "hello")

	_, code := execute(t, "evaluate", "--engine", "mock", "--wav", "clip.wav", "--gt", "clip.txt")
	assert.Equal(t, ExitFailure, code)
}

func TestTranscribePrintsLanguage(t *testing.T) {
	isolate(t)
	writeWAV(t, "clip.wav")
	t.Setenv("SPEECHEVAL_ENGINE_MOCK_TEXT", "bonjour")

	out, code := execute(t, "transcribe", "--engine", "mock", "--audio", "clip.wav", "--language", "fr")
	require.Equal(t, ExitOK, code, out)
	assert.Contains(t, out, "Text: bonjour")
	assert.Contains(t, out, "Language: fr")
}

func TestDERCommand(t *testing.T) {
	isolate(t)
	writeFile(t, "ref.rttm", "SPEAKER rec 1 0.000 5.000 <NA> <NA> A <NA> <NA>\n")
	writeFile(t, "hyp.rttm", "SPEAKER rec 1 0.000 5.000 <NA> <NA> spk1 <NA> <NA>\n")

	out, code := execute(t, "der", "--reference", "ref.rttm", "--hypothesis", "hyp.rttm")
	require.Equal(t, ExitOK, code, out)
	assert.Contains(t, out, "DER: 0.00% (Target < 20.00%)")
	assert.Contains(t, out, "rec/A -> spk1")

	writeFile(t, "bad.rttm", "SPEAKER rec 1 zero 5.000 <NA> <NA> A\n")
	_, code = execute(t, "der", "--reference", "bad.rttm", "--hypothesis", "hyp.rttm")
	assert.Equal(t, ExitFailure, code)
}

func TestSummarizeWritesOutput(t *testing.T) {
	isolate(t)
	writeFile(t, "transcript.txt", "[SPEAKER_00]: we ship on friday")
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Release on Friday."}}],
			"usage":{"prompt_tokens":10,"completion_tokens":4,"total_tokens":14}}`)
	}))
	defer srv.Close()
	t.Setenv("SPEECHEVAL_SUMMARIZER_API_KEY", "sk-test")

	out, code := execute(t, "summarize", "--transcript", "transcript.txt", "--endpoint", srv.URL, "--model", "small-model")
	require.Equal(t, ExitOK, code, out)
	assert.Contains(t, out, "Release on Friday.")
	assert.Equal(t, "small-model", body["model"])

	saved, err := os.ReadFile("summary_output.txt")
	require.NoError(t, err)
	assert.Equal(t, "Release on Friday.", string(saved))
}

func TestSummarizeUnknownBackend(t *testing.T) {
	isolate(t)
	writeFile(t, "transcript.txt", "hello")
	_, code := execute(t, "summarize", "--transcript", "transcript.txt", "--backend", "nope")
	assert.Equal(t, ExitFailure, code)
}

func TestIsStreamingEngine(t *testing.T) {
	assert.True(t, isStreamingEngine("vosk-server"))
	assert.True(t, isStreamingEngine(" Vosk "))
	assert.False(t, isStreamingEngine("whisper-api"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerDepsWithoutDatabase(t *testing.T) {
	dir := isolate(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SPEECHEVAL_DATABASE_DSN", "")
	resultsDir := filepath.Join(dir, "res")

	cmd, _, err := NewRootCommand().Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--results-dir", resultsDir}))
	a := &app{v: viper.New()}
	require.NoError(t, a.load(cmd))

	deps, closeDeps, err := a.serverDeps(context.Background())
	require.NoError(t, err)
	defer closeDeps()
	assert.Nil(t, deps.Runs)
	assert.NotNil(t, deps.Auth)
	assert.DirExists(t, resultsDir)
}
