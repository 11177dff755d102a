//go:build whispercpp

package vendoradapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"

	"speech-eval-toolkit/internal/audio"
)

// WhisperCppAdapter runs a ggml Whisper model in process. A whisper model
// is not safe for concurrent decoding, so Recognize calls are serialised.
type WhisperCppAdapter struct {
	mu      sync.Mutex
	model   whisper.Model
	threads int
}

type whisperCppSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func newWhisperCppAdapter(cfg Config) (ASRAdapter, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("whispercpp engine needs a model file")
	}
	model, err := whisper.New(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %s: %w", cfg.Model, err)
	}
	log.Info().Str("model", cfg.Model).Msg("Whisper model loaded")
	return &WhisperCppAdapter{model: model, threads: cfg.Threads}, nil
}

func (a *WhisperCppAdapter) Name() string { return EngineWhisperCpp }

func (a *WhisperCppAdapter) Recognize(ctx context.Context, audioFilePath string, languageCode string) (string, string, error) {
	samples, format, err := audio.ReadFloat32(audioFilePath)
	if err != nil {
		return "", "", err
	}
	if format.SampleRate != whisper.SampleRate {
		samples = audio.Resample(samples, format.SampleRate, whisper.SampleRate)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	wctx, err := a.model.NewContext()
	if err != nil {
		return "", "", fmt.Errorf("create whisper context: %w", err)
	}
	wctx.SetThreads(uint(a.threads))
	if languageCode == "" {
		languageCode = "auto"
	}
	if err := wctx.SetLanguage(languageCode); err != nil {
		return "", "", fmt.Errorf("set whisper language %q: %w", languageCode, err)
	}

	abort := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, abort, nil, nil); err != nil {
		return "", "", fmt.Errorf("whisper process: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	var (
		segments []whisperCppSegment
		text     strings.Builder
	)
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("read whisper segment: %w", err)
		}
		segments = append(segments, whisperCppSegment{
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  seg.Text,
		})
		if text.Len() > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(strings.TrimSpace(seg.Text))
	}

	result := struct {
		Text     string              `json:"text"`
		Language string              `json:"language"`
		Segments []whisperCppSegment `json:"segments"`
	}{text.String(), wctx.DetectedLanguage(), segments}
	raw, err := json.Marshal(result)
	if err != nil {
		return "", "", err
	}
	return result.Text, string(raw), nil
}

func (a *WhisperCppAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.model.Close()
}
