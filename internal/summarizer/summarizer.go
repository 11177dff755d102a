// Package summarizer condenses a transcript with a hosted language model.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

// Backend names accepted by New.
const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// OutputFile is where the summarize command saves its result.
const OutputFile = "summary_output.txt"

const (
	promptPrefix    = "summarize: "
	defaultMaxRunes = 4096
	defaultTokens   = 150
	systemPrompt    = "You summarize meeting and call transcripts. Reply with a short plain-text summary that keeps speaker names and decisions."
)

var (
	ErrEmptyTranscript = errors.New("transcript is empty")
	ErrUnknownBackend  = errors.New("unknown summarizer backend")
)

// Summarizer turns a transcript into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Config selects and tunes a backend.
type Config struct {
	Backend   string        `mapstructure:"backend"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	Endpoint  string        `mapstructure:"endpoint"`
	MaxRunes  int           `mapstructure:"max_runes"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendOpenAI
	}
	if c.MaxRunes <= 0 {
		c.MaxRunes = defaultMaxRunes
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Minute
	}
	return c
}

// New builds the backend named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Summarizer, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case BackendOpenAI:
		return NewOpenAI(cfg), nil
	case BackendGemini:
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// BuildPrompt prefixes the transcript with the summarize instruction and
// cuts it to maxRunes runes, prefix included.
func BuildPrompt(text string, maxRunes int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	prompt := promptPrefix + text
	if maxRunes <= 0 || utf8.RuneCountInString(prompt) <= maxRunes {
		return prompt, nil
	}
	runes := []rune(prompt)
	return string(runes[:maxRunes]), nil
}

// WriteSummary saves summary to path, creating or truncating it.
func WriteSummary(path, summary string) error {
	if err := os.WriteFile(path, []byte(summary), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
