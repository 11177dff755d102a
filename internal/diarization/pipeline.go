package diarization

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"speech-eval-toolkit/internal/audio"
	"speech-eval-toolkit/internal/coreengine/metricscalculator"
	"speech-eval-toolkit/internal/coreengine/vendoradapters"
)

// Output file names written by DiarizeAndTranscribe.
const (
	RTTMFile       = "output.rttm"
	TranscriptFile = "diarized_transcript.txt"
)

// Result is the outcome of a diarize-and-transcribe run.
type Result struct {
	Turns          []Turn
	Lines          []string
	RTTMPath       string
	TranscriptPath string
}

// Transcript joins the per-turn lines.
func (r *Result) Transcript() string { return strings.Join(r.Lines, "\n") }

// DiarizeAndTranscribe diarizes a 16 kHz mono WAV, transcribes every turn
// with adapter and writes RTTMFile and TranscriptFile into outDir. Lines read
// "[SPEAKER_XX]: text".
func DiarizeAndTranscribe(ctx context.Context, d Diarizer, adapter vendoradapters.ASRAdapter, wavPath, language, outDir string) (*Result, error) {
	if _, err := audio.ValidateEvalWAV(wavPath); err != nil {
		return nil, err
	}
	samples, format, err := audio.ReadFloat32(wavPath)
	if err != nil {
		return nil, err
	}
	if rate := d.SampleRate(); rate != format.SampleRate {
		samples = audio.Resample(samples, format.SampleRate, rate)
	}

	turns, err := d.Diarize(samples)
	if err != nil {
		return nil, fmt.Errorf("diarize: %w", err)
	}
	log.Info().Int("turns", len(turns)).Msg("Diarization complete")

	tmpDir, err := os.MkdirTemp("", "speecheval-turns-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	res := &Result{Turns: turns}
	for i, turn := range turns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segment := sliceTurn(samples, d.SampleRate(), turn)
		if len(segment) == 0 {
			continue
		}
		path := filepath.Join(tmpDir, fmt.Sprintf("turn_%04d.wav", i))
		if err := audio.WriteFloat32WAV(path, segment, d.SampleRate()); err != nil {
			return nil, err
		}
		text, _, err := adapter.Recognize(ctx, path, language)
		if err != nil {
			return nil, fmt.Errorf("transcribe turn %d (%.2fs-%.2fs): %w", i, turn.Start, turn.End, err)
		}
		res.Lines = append(res.Lines, fmt.Sprintf("[%s]: %s", turn.Speaker, strings.TrimSpace(text)))
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	res.RTTMPath = filepath.Join(outDir, RTTMFile)
	uri := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	if err := writeRTTMFile(res.RTTMPath, TurnsToSegments(uri, turns)); err != nil {
		return nil, err
	}
	res.TranscriptPath = filepath.Join(outDir, TranscriptFile)
	if err := os.WriteFile(res.TranscriptPath, []byte(res.Transcript()), 0o644); err != nil {
		return nil, fmt.Errorf("write transcript: %w", err)
	}
	return res, nil
}

// TurnsToSegments labels turns with a recording identifier for scoring or
// RTTM output.
func TurnsToSegments(uri string, turns []Turn) []metricscalculator.SpeakerSegment {
	segs := make([]metricscalculator.SpeakerSegment, len(turns))
	for i, t := range turns {
		segs[i] = metricscalculator.SpeakerSegment{URI: uri, Start: t.Start, End: t.End, Speaker: t.Speaker}
	}
	return segs
}

func sliceTurn(samples []float32, rate int, t Turn) []float32 {
	start := max(int(t.Start*float64(rate)), 0)
	end := min(int(t.End*float64(rate)), len(samples))
	if start >= end {
		return nil
	}
	return samples[start:end]
}

func writeRTTMFile(path string, segs []metricscalculator.SpeakerSegment) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create rttm: %w", err)
	}
	if err := WriteRTTM(f, segs); err != nil {
		f.Close()
		return fmt.Errorf("write rttm: %w", err)
	}
	return f.Close()
}
