package vad

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 0.5, RMS([]float32{0.5, -0.5, 0.5, -0.5}), 1e-9)
	assert.InDelta(t, 0.5, RMS([]float32{1, 0, -1, 0}), 1e-6)
}

func TestEnergy(t *testing.T) {
	e := Energy{Threshold: 0.1}
	speech, err := e.IsSpeech([]float32{0.5, -0.5})
	require.NoError(t, err)
	assert.True(t, speech)

	speech, err = e.IsSpeech([]float32{0.01, -0.01})
	require.NoError(t, err)
	assert.False(t, speech)

	speech, _ = Energy{}.IsSpeech([]float32{0.005, -0.005})
	assert.False(t, speech, "zero threshold falls back to the default")
}

func TestAboveThreshold(t *testing.T) {
	assert.True(t, aboveThreshold(0.51, 0.5))
	assert.False(t, aboveThreshold(0.5, 0.5), "equal to the threshold is silence")
	assert.False(t, aboveThreshold(0.49, 0.5))
	assert.False(t, aboveThreshold(0, 0))
}

func loud(n int) []int16 {
	b := make([]int16, n)
	for i := range b {
		if i%2 == 0 {
			b[i] = 16000
		} else {
			b[i] = -16000
		}
	}
	return b
}

func TestGateEmitsAfterSilenceBlocks(t *testing.T) {
	g := NewGate(Energy{}, 0)
	quiet := make([]int16, 4)

	for _, block := range [][]int16{quiet, loud(4), loud(4), quiet, quiet} {
		utt, err := g.Push(block)
		require.NoError(t, err)
		assert.Nil(t, utt)
	}
	assert.Equal(t, 8, g.Buffered())

	utt, err := g.Push(quiet)
	require.NoError(t, err)
	assert.Equal(t, append(loud(4), loud(4)...), utt)
	assert.Zero(t, g.Buffered())

	utt, err = g.Push(quiet)
	require.NoError(t, err)
	assert.Nil(t, utt, "silence alone never yields an utterance")
}

func TestGateSpeechResetsSilenceCount(t *testing.T) {
	g := NewGate(Energy{}, 2)
	quiet := make([]int16, 2)

	steps := [][]int16{loud(2), quiet, loud(2), quiet}
	for _, block := range steps {
		utt, err := g.Push(block)
		require.NoError(t, err)
		assert.Nil(t, utt)
	}
	utt, err := g.Push(quiet)
	require.NoError(t, err)
	assert.Len(t, utt, 4)
}

func TestGateFlush(t *testing.T) {
	g := NewGate(Energy{}, 3)
	assert.Nil(t, g.Flush())
	_, err := g.Push(loud(3))
	require.NoError(t, err)
	assert.Len(t, g.Flush(), 3)
	assert.Zero(t, g.Buffered())
}

type failingDetector struct{}

func (failingDetector) IsSpeech([]float32) (bool, error) { return false, errors.New("boom") }

func TestGateDetectorError(t *testing.T) {
	_, err := NewGate(failingDetector{}, 3).Push(loud(2))
	assert.EqualError(t, err, "boom")
}

type resettingDetector struct {
	Energy
	resets int
}

func (d *resettingDetector) Reset() { d.resets++ }

func TestGateResetsDetectorPerUtterance(t *testing.T) {
	d := &resettingDetector{}
	g := NewGate(d, 1)
	_, err := g.Push(loud(2))
	require.NoError(t, err)
	assert.Zero(t, d.resets)

	utt, err := g.Push(make([]int16, 2))
	require.NoError(t, err)
	assert.Len(t, utt, 2)
	assert.Equal(t, 1, d.resets)
}

func TestNewSileroValidatesConfig(t *testing.T) {
	_, err := NewSilero(SileroConfig{ModelPath: "missing.onnx", SampleRate: 44100})
	assert.ErrorContains(t, err, "sample rate")

	_, err = NewSilero(SileroConfig{ModelPath: "missing.onnx"})
	assert.ErrorContains(t, err, "silero vad model")
}
