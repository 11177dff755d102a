package audio

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// Int16ToBytes encodes samples as little-endian PCM.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 decodes little-endian PCM. A trailing odd byte is dropped.
func BytesToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Int16ToFloat32 scales samples to [-1, 1).
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// Float32ToInt16 clamps samples to [-1, 1] and scales them to int16.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(math.Round(float64(s) * 32767))
	}
	return out
}

// Downmix averages interleaved frames of the given channel count into mono.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples between rates by linear interpolation.
// When downsampling, content above the new Nyquist frequency is filtered out
// first.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	if to < from {
		samples = lowPass(samples, 0.5*float64(to)/float64(from), 16*((from+to-1)/to)+1)
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// lowPass applies a Hann-windowed sinc filter with the given cutoff in cycles
// per sample. Near the edges the kernel is renormalized over the taps that
// fall inside the signal, so a constant input stays constant.
func lowPass(samples []float32, cutoff float64, taps int) []float32 {
	half := taps / 2
	kernel := make([]float64, taps)
	for i := range kernel {
		x := float64(i - half)
		if x == 0 {
			kernel[i] = 2 * cutoff
			continue
		}
		kernel[i] = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
	}
	kernel = window.Hann(kernel)

	out := make([]float32, len(samples))
	for i := range samples {
		var acc, weight float64
		for k, h := range kernel {
			j := i + k - half
			if j < 0 || j >= len(samples) {
				continue
			}
			acc += h * float64(samples[j])
			weight += h
		}
		if weight != 0 {
			out[i] = float32(acc / weight)
		}
	}
	return out
}
