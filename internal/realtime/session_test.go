package realtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-eval-toolkit/internal/coreengine/vendoradapters"
	"speech-eval-toolkit/internal/vad"
)

// fakeSource replays fixed blocks. With hold set the channel stays open
// until Stop, like a live microphone.
type fakeSource struct {
	blocks [][]int16
	hold   bool

	ch      chan []int16
	once    sync.Once
	stopped bool
}

func (f *fakeSource) Start() (<-chan []int16, error) {
	f.ch = make(chan []int16, len(f.blocks))
	for _, b := range f.blocks {
		f.ch <- b
	}
	if !f.hold {
		f.once.Do(func() { close(f.ch) })
	}
	return f.ch, nil
}

func (f *fakeSource) Stop() error {
	f.stopped = true
	f.once.Do(func() { close(f.ch) })
	return nil
}

func (f *fakeSource) SampleRate() int { return 16000 }

// scriptedStream turns every second chunk into a final result.
type scriptedStream struct {
	accepted int
	closed   bool
}

func (s *scriptedStream) NewStream(ctx context.Context, rate int) (vendoradapters.StreamSession, error) {
	return s, nil
}

func (s *scriptedStream) Accept(pcm []byte) (vendoradapters.StreamResult, error) {
	s.accepted++
	if s.accepted%2 == 0 {
		return vendoradapters.StreamResult{Text: "final words", Final: true}, nil
	}
	return vendoradapters.StreamResult{Text: "fin"}, nil
}

func (s *scriptedStream) Finish() (string, error) { return " tail ", nil }

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

func TestRunStreamWritesFinalsToTranscript(t *testing.T) {
	src := &fakeSource{blocks: [][]int16{{1}, {2}, {3}}}
	var out bytes.Buffer
	s := NewSession(src, &out)
	path, err := s.OpenTranscript(t.TempDir(), time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "transcript_20240102_150405.txt", filepath.Base(path))

	engine := &scriptedStream{}
	require.NoError(t, s.RunStream(context.Background(), engine))
	require.NoError(t, s.Close())

	assert.Equal(t, 3, engine.accepted)
	assert.True(t, engine.closed)
	assert.True(t, src.stopped)
	assert.Contains(t, out.String(), "PARTIAL: fin")
	assert.Contains(t, out.String(), "FINAL: final words")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "final words\ntail\n", string(data))
}

func TestRunStreamDrainsQueuedBlocksOnCancel(t *testing.T) {
	src := &fakeSource{blocks: [][]int16{{1}, {2}}, hold: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	engine := &scriptedStream{}
	require.NoError(t, NewSession(src, &out).RunStream(ctx, engine))
	assert.True(t, src.stopped)
	assert.Equal(t, 2, engine.accepted)
	assert.Contains(t, out.String(), "FINAL: tail")
}

func loudBlock() []int16 {
	b := make([]int16, 512)
	for i := range b {
		b[i] = 12000
	}
	return b
}

func TestRunUtterancesTranscribesEachUtterance(t *testing.T) {
	quiet := make([]int16, 512)
	src := &fakeSource{blocks: [][]int16{
		loudBlock(), loudBlock(), quiet, quiet, quiet,
		loudBlock(),
	}}
	engine := &vendoradapters.MockASRAdapter{Text: "hello there"}

	var out bytes.Buffer
	s := NewSession(src, &out)
	err := s.RunUtterances(context.Background(), vad.NewGate(vad.Energy{}, 3), engine, "en")
	require.NoError(t, err)

	calls := engine.Calls()
	require.Len(t, calls, 2, "one gated utterance plus the flushed tail")
	for _, c := range calls {
		_, statErr := os.Stat(c)
		assert.True(t, os.IsNotExist(statErr), "utterance files are removed")
	}
	assert.Equal(t, 2, strings.Count(out.String(), "FINAL: hello there"))
}

func TestRunUtterancesContinuesAfterEngineError(t *testing.T) {
	quiet := make([]int16, 512)
	src := &fakeSource{blocks: [][]int16{loudBlock(), quiet, quiet, quiet}}
	engine := &vendoradapters.MockASRAdapter{Fail: true}

	var out bytes.Buffer
	err := NewSession(src, &out).RunUtterances(context.Background(), vad.NewGate(vad.Energy{}, 3), engine, "en")
	require.NoError(t, err)
	assert.Len(t, engine.Calls(), 1)
	assert.NotContains(t, out.String(), "FINAL")
}
