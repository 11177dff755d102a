// Package audio reads, writes, validates, converts and captures PCM audio.
package audio

import (
	"errors"
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EvalSampleRate is the sample rate every recognizer in this toolkit expects.
const EvalSampleRate = 16000

const wavFormatPCM = 1

var (
	// ErrUnsupportedFormat is returned for WAV files that are not 16 kHz mono
	// 16-bit PCM.
	ErrUnsupportedFormat = errors.New("unsupported wav format")
	// ErrInvalidWAV is returned for files that cannot be parsed as WAV.
	ErrInvalidWAV = errors.New("invalid wav file")
)

// Format describes the stream layout of a WAV file.
type Format struct {
	SampleRate  int
	Channels    int
	BitDepth    int
	AudioFormat int
	Duration    time.Duration
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %d-bit", f.SampleRate, f.Channels, f.BitDepth)
}

// Inspect reads the header of the WAV file at path.
func Inspect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		if d.Err() != nil {
			return Format{}, fmt.Errorf("%w: %s: %v", ErrInvalidWAV, path, d.Err())
		}
		return Format{}, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	if err := d.FwdToPCM(); err != nil {
		return Format{}, fmt.Errorf("%w: %s: %v", ErrInvalidWAV, path, err)
	}
	format := Format{
		SampleRate:  int(d.SampleRate),
		Channels:    int(d.NumChans),
		BitDepth:    int(d.BitDepth),
		AudioFormat: int(d.WavAudioFormat),
	}
	if bytesPerSec := int64(format.SampleRate * format.Channels * format.BitDepth / 8); bytesPerSec > 0 {
		format.Duration = time.Duration(d.PCMLen() * int64(time.Second) / bytesPerSec)
	}
	return format, nil
}

// RequireEvalFormat accepts only 16 kHz, mono, 16-bit PCM.
func RequireEvalFormat(f Format) error {
	switch {
	case f.AudioFormat != 0 && f.AudioFormat != wavFormatPCM:
		return fmt.Errorf("%w: audio format %d is not PCM", ErrUnsupportedFormat, f.AudioFormat)
	case f.Channels != 1:
		return fmt.Errorf("%w: %d channels, want mono", ErrUnsupportedFormat, f.Channels)
	case f.BitDepth != 16:
		return fmt.Errorf("%w: %d-bit samples, want 16-bit", ErrUnsupportedFormat, f.BitDepth)
	case f.SampleRate != EvalSampleRate:
		return fmt.Errorf("%w: %d Hz, want %d Hz", ErrUnsupportedFormat, f.SampleRate, EvalSampleRate)
	}
	return nil
}

// ValidateEvalWAV inspects path and checks it against RequireEvalFormat.
func ValidateEvalWAV(path string) (Format, error) {
	f, err := Inspect(path)
	if err != nil {
		return f, err
	}
	return f, RequireEvalFormat(f)
}

func decodeFull(path string) (*goaudio.IntBuffer, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Format{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, Format{}, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("decode %s: %w", path, err)
	}
	format := Format{
		SampleRate:  int(d.SampleRate),
		Channels:    int(d.NumChans),
		BitDepth:    int(d.BitDepth),
		AudioFormat: int(d.WavAudioFormat),
	}
	if format.SampleRate > 0 && format.Channels > 0 {
		frames := len(buf.Data) / format.Channels
		format.Duration = time.Duration(frames) * time.Second / time.Duration(format.SampleRate)
	}
	return buf, format, nil
}

// ReadPCM16 returns the raw little-endian 16-bit samples of an evaluation
// format WAV file.
func ReadPCM16(path string) ([]byte, error) {
	buf, format, err := decodeFull(path)
	if err != nil {
		return nil, err
	}
	if err := RequireEvalFormat(format); err != nil {
		return nil, err
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return Int16ToBytes(samples), nil
}

// ReadFloat32 returns the samples of path scaled to [-1, 1], downmixed to mono.
func ReadFloat32(path string) ([]float32, Format, error) {
	buf, format, err := decodeFull(path)
	if err != nil {
		return nil, format, err
	}
	data := buf.AsFloat32Buffer().Data
	if format.Channels > 1 {
		data = Downmix(data, format.Channels)
	}
	return data, format, nil
}

// WriteWAV writes mono 16-bit PCM samples to path.
func WriteWAV(path string, samples []int16, sampleRate int) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	enc := wav.NewEncoder(out, sampleRate, 16, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		out.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return out.Close()
}

// WriteFloat32WAV writes mono float samples in [-1, 1] as 16-bit PCM.
func WriteFloat32WAV(path string, samples []float32, sampleRate int) error {
	return WriteWAV(path, Float32ToInt16(samples), sampleRate)
}
