package vendoradapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog/log"
)

// WhisperAPIAdapter transcribes through an OpenAI-compatible
// /audio/transcriptions endpoint.
type WhisperAPIAdapter struct {
	client openai.Client
	model  string
}

// NewWhisperAPIAdapter builds the adapter. An empty APIKey falls back to
// OPENAI_API_KEY; Endpoint points it at a self-hosted server.
func NewWhisperAPIAdapter(cfg Config) *WhisperAPIAdapter {
	cfg = cfg.withDefaults()
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	return &WhisperAPIAdapter{client: openai.NewClient(opts...), model: model}
}

func (a *WhisperAPIAdapter) Name() string { return EngineWhisperAPI }

// Recognize uploads the file and asks for verbose JSON so the detected
// language comes back with the text.
func (a *WhisperAPIAdapter) Recognize(ctx context.Context, audioFilePath string, languageCode string) (string, string, error) {
	f, err := os.Open(audioFilePath)
	if err != nil {
		return "", "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:           openai.File(f, filepath.Base(audioFilePath), "audio/wav"),
		Model:          openai.AudioModel(a.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	if languageCode != "" && languageCode != "auto" {
		params.Language = openai.String(languageCode)
	}

	resp, err := a.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", "", fmt.Errorf("whisper transcription failed: %w", err)
	}
	log.Debug().Str("file", audioFilePath).Str("language", resp.Language).Msg("Whisper transcription complete")
	return strings.TrimSpace(resp.Text), resp.RawJSON(), nil
}
