package vendoradapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const deepgramBaseURL = "https://api.deepgram.com/v1/listen"

// DeepgramASRAdapter implements the ASRAdapter interface for Deepgram's
// pre-recorded audio endpoint.
type DeepgramASRAdapter struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Model      string
}

// NewDeepgramASRAdapter creates a new instance of DeepgramASRAdapter. An
// empty APIKey falls back to DEEPGRAM_API_KEY.
func NewDeepgramASRAdapter(cfg Config) (*DeepgramASRAdapter, error) {
	cfg = cfg.withDefaults()
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("DEEPGRAM_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("Deepgram API key is missing")
	}
	base := cfg.Endpoint
	if base == "" {
		base = deepgramBaseURL
	}
	return &DeepgramASRAdapter{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		BaseURL:    base,
		APIKey:     key,
		Model:      cfg.Model,
	}, nil
}

func (a *DeepgramASRAdapter) Name() string { return EngineDeepgram }

// Recognize transcribes audio using the Deepgram API.
func (a *DeepgramASRAdapter) Recognize(ctx context.Context, audioFilePath string, languageCode string) (string, string, error) {
	audioBytes, err := os.ReadFile(audioFilePath)
	if err != nil {
		return "", "", fmt.Errorf("read audio: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(audioFilePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	reqURL, err := url.Parse(a.BaseURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse Deepgram base URL: %w", err)
	}
	query := reqURL.Query()
	if languageCode != "" {
		query.Set("language", languageCode)
	}
	if a.Model != "" {
		query.Set("model", a.Model)
	}
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(audioBytes))
	if err != nil {
		return "", "", fmt.Errorf("failed to create Deepgram request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+a.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	httpResp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to send request to Deepgram: %w", err)
	}
	defer httpResp.Body.Close()
	log.Debug().Str("file", audioFilePath).Dur("latency", time.Since(startTime)).Msg("Deepgram call completed")

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read Deepgram response body: %w", err)
	}
	rawResponse := string(respBody)

	if httpResp.StatusCode != http.StatusOK {
		return "", rawResponse, fmt.Errorf("Deepgram API request failed with status %s: %s", httpResp.Status, gjson.Get(rawResponse, "err_msg").String())
	}
	if !gjson.Valid(rawResponse) {
		return "", rawResponse, fmt.Errorf("failed to parse Deepgram JSON response")
	}

	transcript := gjson.Get(rawResponse, "results.channels.0.alternatives.0.transcript")
	if !transcript.Exists() {
		log.Warn().Str("file", audioFilePath).Msg("Deepgram response has no transcript")
	}
	return transcript.String(), rawResponse, nil
}
