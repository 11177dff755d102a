package summarizer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog/log"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAISummarizer uses the chat completions endpoint.
type OpenAISummarizer struct {
	client    openai.Client
	model     string
	maxRunes  int
	maxTokens int
}

// NewOpenAI builds the backend. An empty APIKey falls back to OPENAI_API_KEY.
func NewOpenAI(cfg Config) *OpenAISummarizer {
	cfg = cfg.withDefaults()
	opts := []option.RequestOption{
		option.WithMaxRetries(1),
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
		model = defaultOpenAIModel
	}
	return &OpenAISummarizer{
		client:    openai.NewClient(opts...),
		model:     model,
		maxRunes:  cfg.MaxRunes,
		maxTokens: cfg.MaxTokens,
	}
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) (string, error) {
	prompt, err := BuildPrompt(text, s.maxRunes)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		MaxTokens: openai.Int(int64(s.maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai summary failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai summary failed: no choices returned")
	}
	log.Debug().Str("model", s.model).Int64("tokens", resp.Usage.TotalTokens).Msg("Summary generated")
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
