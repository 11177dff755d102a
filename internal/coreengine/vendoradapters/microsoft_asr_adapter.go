//go:build azurespeech

package vendoradapters

import (
	"context"
	"fmt"
	"time"

	msaudio "github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
	"github.com/rs/zerolog/log"
)

// MicrosoftASRAdapter implements the ASRAdapter interface for Azure Speech
// through the Speech SDK, which links the native Speech runtime.
type MicrosoftASRAdapter struct {
	subscriptionKey string
	region          string
	timeout         time.Duration
}

func newAzureAdapter(cfg Config) (ASRAdapter, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" || cfg.Region == "" {
		return nil, fmt.Errorf("Azure Speech needs a subscription key and a region")
	}
	return &MicrosoftASRAdapter{subscriptionKey: cfg.APIKey, region: cfg.Region, timeout: cfg.Timeout}, nil
}

func (a *MicrosoftASRAdapter) Name() string { return EngineAzure }

// Recognize runs a single-shot recognition over a WAV file.
func (a *MicrosoftASRAdapter) Recognize(ctx context.Context, audioFilePath string, languageCode string) (string, string, error) {
	speechConfig, err := speech.NewSpeechConfigFromSubscription(a.subscriptionKey, a.region)
	if err != nil {
		return "", "", fmt.Errorf("failed to create Azure SpeechConfig: %w", err)
	}
	defer speechConfig.Close()
	if err := speechConfig.SetSpeechRecognitionLanguage(googleLanguage(languageCode)); err != nil {
		return "", "", fmt.Errorf("set recognition language: %w", err)
	}

	audioConfig, err := msaudio.NewAudioConfigFromWavFileInput(audioFilePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create Azure AudioConfig: %w", err)
	}
	defer audioConfig.Close()

	recognizer, err := speech.NewSpeechRecognizerFromConfig(speechConfig, audioConfig)
	if err != nil {
		return "", "", fmt.Errorf("failed to create Azure SpeechRecognizer: %w", err)
	}
	defer recognizer.Close()

	startTime := time.Now()
	var outcome speech.SpeechRecognitionOutcome
	select {
	case outcome = <-recognizer.RecognizeOnceAsync():
	case <-ctx.Done():
		return "", "", ctx.Err()
	case <-time.After(a.timeout):
		return "", "", fmt.Errorf("Azure Speech recognition timed out after %s", a.timeout)
	}
	log.Debug().Str("file", audioFilePath).Dur("latency", time.Since(startTime)).Msg("Azure Speech call completed")

	if outcome.Error != nil {
		return "", "", fmt.Errorf("Azure Speech recognition error: %w", outcome.Error)
	}
	defer outcome.Result.Close()
	text := outcome.Result.Text
	raw := fmt.Sprintf(`{"text":%q,"duration":%q,"offset":%q}`, text, outcome.Result.Duration.String(), outcome.Result.Offset.String())
	if text == "" {
		return "", raw, fmt.Errorf("no speech could be recognized from %s", audioFilePath)
	}
	return text, raw, nil
}
