//go:build vosk

package vendoradapters

import (
	"context"
	"fmt"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/rs/zerolog/log"
)

// VoskAdapter runs a Vosk model in process through libvosk.
type VoskAdapter struct {
	model *vosk.VoskModel
	once  sync.Once
}

func newVoskAdapter(cfg Config) (ASRAdapter, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("vosk engine needs a model directory")
	}
	vosk.SetLogLevel(-1)
	model, err := vosk.NewModel(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("load vosk model %s: %w", cfg.Model, err)
	}
	log.Info().Str("model", cfg.Model).Msg("Vosk model loaded")
	return &VoskAdapter{model: model}, nil
}

func (a *VoskAdapter) Name() string { return EngineVosk }

func (a *VoskAdapter) Recognize(ctx context.Context, audioFilePath string, languageCode string) (string, string, error) {
	return recognizeByStreaming(ctx, a, audioFilePath)
}

func (a *VoskAdapter) NewStream(ctx context.Context, sampleRate int) (StreamSession, error) {
	rec, err := vosk.NewRecognizer(a.model, float64(sampleRate))
	if err != nil {
		return nil, fmt.Errorf("create vosk recognizer: %w", err)
	}
	return &voskStream{rec: rec}, nil
}

func (a *VoskAdapter) Close() error {
	a.once.Do(a.model.Free)
	return nil
}

type voskStream struct {
	rec *vosk.VoskRecognizer
}

func (s *voskStream) Accept(pcm []byte) (StreamResult, error) {
	if s.rec.AcceptWaveform(pcm) != 0 {
		return parseVoskResult([]byte(s.rec.Result()))
	}
	return parseVoskResult([]byte(s.rec.PartialResult()))
}

func (s *voskStream) Finish() (string, error) {
	res, err := parseVoskResult([]byte(s.rec.FinalResult()))
	return res.Text, err
}

func (s *voskStream) Close() error {
	s.rec.Free()
	return nil
}
