package vendoradapters

import (
	"context"
	"errors"
	"time"
)

// ErrEngineDisabled is returned when an engine needs a native library that
// this binary was built without.
var ErrEngineDisabled = errors.New("engine support is disabled in this build")

// ASRAdapter defines the interface for speech recognition engines.
type ASRAdapter interface {
	// Name identifies the engine in logs and stored runs.
	Name() string
	// Recognize transcribes the audio file at audioFilePath. It returns the
	// recognized text and the engine's raw response so it can be kept
	// alongside the score.
	Recognize(ctx context.Context, audioFilePath string, languageCode string) (recognizedText string, rawResponse string, err error)
}

// StreamingASRAdapter is implemented by engines that accept raw PCM
// incrementally and report partial hypotheses.
type StreamingASRAdapter interface {
	NewStream(ctx context.Context, sampleRate int) (StreamSession, error)
}

// StreamSession is one incremental recognition pass. Accept takes 16-bit
// little-endian mono PCM.
type StreamSession interface {
	Accept(pcm []byte) (StreamResult, error)
	// Finish flushes the recognizer and returns the last final text.
	Finish() (string, error)
	Close() error
}

// StreamResult is what the recognizer reports after a chunk. Final results
// close an utterance; partial ones may still change.
type StreamResult struct {
	Text  string
	Final bool
}

// Config selects and parameterises an engine.
type Config struct {
	Engine          string        `mapstructure:"engine"`
	Model           string        `mapstructure:"model"`
	Language        string        `mapstructure:"language"`
	APIKey          string        `mapstructure:"api_key"`
	APISecret       string        `mapstructure:"api_secret"`
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	Threads         int           `mapstructure:"threads"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MockText        string        `mapstructure:"mock_text"`
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = "en"
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.Threads <= 0 {
		c.Threads = 4
	}
	return c
}
