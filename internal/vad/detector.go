// Package vad decides which audio blocks contain speech and groups speech
// into utterances.
package vad

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultEnergyThreshold is the RMS level, on samples scaled to [-1, 1],
// above which a block counts as speech.
const DefaultEnergyThreshold = 0.01

// Detector classifies one block of mono samples scaled to [-1, 1].
type Detector interface {
	IsSpeech(block []float32) (bool, error)
}

// Energy is a detector that compares block RMS against a fixed threshold.
type Energy struct {
	Threshold float64
}

func (e Energy) IsSpeech(block []float32) (bool, error) {
	threshold := e.Threshold
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return RMS(block) > threshold, nil
}

// RMS returns the root mean square of block, or 0 for an empty block.
func RMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	x := make([]float64, len(block))
	for i, v := range block {
		x[i] = float64(v)
	}
	return math.Sqrt(floats.Dot(x, x) / float64(len(x)))
}
