package vendoradapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/encoding/protojson"

	"speech-eval-toolkit/internal/audio"
)

// GoogleASRAdapter implements the ASRAdapter interface for Google Cloud Speech-to-Text.
type GoogleASRAdapter struct {
	client *speech.Client
	model  string
}

// NewGoogleASRAdapter creates the Speech client. Without CredentialsFile the
// library falls back to GOOGLE_APPLICATION_CREDENTIALS.
func NewGoogleASRAdapter(ctx context.Context, cfg Config) (*GoogleASRAdapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Speech client: %w", err)
	}
	return &GoogleASRAdapter{client: client, model: cfg.Model}, nil
}

func (a *GoogleASRAdapter) Name() string { return EngineGoogle }

// Recognize sends the file inline, which the synchronous API allows for
// clips up to one minute.
func (a *GoogleASRAdapter) Recognize(ctx context.Context, audioFilePath string, languageCode string) (string, string, error) {
	content, err := os.ReadFile(audioFilePath)
	if err != nil {
		return "", "", fmt.Errorf("read audio: %w", err)
	}

	config := &speechpb.RecognitionConfig{
		LanguageCode:               googleLanguage(languageCode),
		EnableAutomaticPunctuation: true,
		Model:                      a.model,
	}
	switch strings.ToLower(filepath.Ext(audioFilePath)) {
	case ".flac":
		config.Encoding = speechpb.RecognitionConfig_FLAC
	case ".mp3":
		config.Encoding = speechpb.RecognitionConfig_MP3
	default:
		format, err := audio.Inspect(audioFilePath)
		if err != nil {
			return "", "", err
		}
		config.Encoding = speechpb.RecognitionConfig_LINEAR16
		config.SampleRateHertz = int32(format.SampleRate)
		config.AudioChannelCount = int32(format.Channels)
	}

	req := &speechpb.RecognizeRequest{
		Config: config,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: content}},
	}

	startTime := time.Now()
	resp, err := a.client.Recognize(ctx, req)
	log.Debug().Str("file", audioFilePath).Dur("latency", time.Since(startTime)).Msg("Google Speech call completed")
	if err != nil {
		return "", "", fmt.Errorf("Google Speech API recognition failed: %w", err)
	}

	var transcript strings.Builder
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			if transcript.Len() > 0 {
				transcript.WriteByte(' ')
			}
			transcript.WriteString(strings.TrimSpace(alts[0].GetTranscript()))
		}
	}

	raw, err := protojson.Marshal(resp)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal Google Speech response")
	}
	return transcript.String(), string(raw), nil
}

func (a *GoogleASRAdapter) Close() error { return a.client.Close() }

// googleLanguage expands bare language codes to the BCP-47 tags the API
// expects.
func googleLanguage(code string) string {
	switch strings.ToLower(code) {
	case "", "en":
		return "en-US"
	case "zh":
		return "cmn-Hans-CN"
	}
	return code
}
