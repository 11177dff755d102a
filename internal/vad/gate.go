package vad

import "speech-eval-toolkit/internal/audio"

// DefaultSilenceBlocks is how many consecutive silent blocks end an utterance.
const DefaultSilenceBlocks = 3

// Gate buffers speech blocks and releases them as one utterance once enough
// silence follows. Silent blocks are never buffered.
type Gate struct {
	detector      Detector
	silenceBlocks int

	buf    []int16
	silent int
}

// NewGate returns a gate over detector. silenceBlocks <= 0 selects
// DefaultSilenceBlocks.
func NewGate(detector Detector, silenceBlocks int) *Gate {
	if silenceBlocks <= 0 {
		silenceBlocks = DefaultSilenceBlocks
	}
	return &Gate{detector: detector, silenceBlocks: silenceBlocks}
}

// Push feeds one block and returns a finished utterance, or nil while the
// gate is still collecting.
func (g *Gate) Push(block []int16) ([]int16, error) {
	speaking, err := g.detector.IsSpeech(audio.Int16ToFloat32(block))
	if err != nil {
		return nil, err
	}
	if speaking {
		g.silent = 0
		g.buf = append(g.buf, block...)
	} else {
		g.silent++
	}

	if g.silent >= g.silenceBlocks && len(g.buf) > 0 {
		return g.take(), nil
	}
	return nil, nil
}

// Flush returns whatever speech is buffered, for use at shutdown.
func (g *Gate) Flush() []int16 {
	if len(g.buf) == 0 {
		return nil
	}
	return g.take()
}

// Buffered reports the number of samples waiting for an utterance boundary.
func (g *Gate) Buffered() int { return len(g.buf) }

// take ends the current utterance. Detectors with recurrent state start the
// next one fresh.
func (g *Gate) take() []int16 {
	utt := g.buf
	g.buf = nil
	g.silent = 0
	if r, ok := g.detector.(interface{ Reset() }); ok {
		r.Reset()
	}
	return utt
}
