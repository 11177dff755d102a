package summarizer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiSummarizer uses the Gemini API through the genai client.
type GeminiSummarizer struct {
	client    *genai.Client
	model     string
	maxRunes  int
	maxTokens int
}

// NewGemini builds the backend. An empty APIKey falls back to GEMINI_API_KEY.
func NewGemini(ctx context.Context, cfg Config) (*GeminiSummarizer, error) {
	cfg = cfg.withDefaults()
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	cc := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiSummarizer{client: client, model: model, maxRunes: cfg.MaxRunes, maxTokens: cfg.MaxTokens}, nil
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	prompt, err := BuildPrompt(text, s.maxRunes)
	if err != nil {
		return "", err
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.2),
		MaxOutputTokens:   int32(s.maxTokens),
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini summary failed: %w", err)
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", fmt.Errorf("gemini summary failed: empty response")
	}
	log.Debug().Str("model", s.model).Msg("Summary generated")
	return out, nil
}
