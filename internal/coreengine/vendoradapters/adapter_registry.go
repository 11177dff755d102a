package vendoradapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// Engine names accepted by the registry.
const (
	EngineMock       = "mock"
	EngineMockError  = "mock-error"
	EngineWhisperAPI = "whisper-api"
	EngineWhisperCpp = "whispercpp"
	EngineVosk       = "vosk"
	EngineVoskServer = "vosk-server"
	EngineGoogle     = "google"
	EngineDeepgram   = "deepgram"
	EngineTencent    = "tencent"
	EngineAzure      = "azure"
)

// ErrUnknownEngine is returned for engine names the registry does not know.
var ErrUnknownEngine = errors.New("unknown ASR engine")

// Engines lists every engine name, for flag help text.
func Engines() []string {
	return []string{
		EngineMock, EngineMockError, EngineWhisperAPI, EngineWhisperCpp, EngineVosk,
		EngineVoskServer, EngineGoogle, EngineDeepgram, EngineTencent, EngineAzure,
	}
}

// NewASRAdapter selects and builds the adapter named by cfg.Engine. Adapters
// holding native resources also implement io.Closer; use Close to release them.
func NewASRAdapter(ctx context.Context, cfg Config) (ASRAdapter, error) {
	cfg = cfg.withDefaults()
	engine := strings.ToLower(strings.TrimSpace(cfg.Engine))
	log.Debug().Str("engine", engine).Str("model", cfg.Model).Msg("Building ASR adapter")

	switch engine {
	case EngineMock:
		return &MockASRAdapter{Text: cfg.MockText}, nil
	case EngineMockError:
		return &MockASRAdapter{Text: cfg.MockText, Fail: true}, nil
	case EngineWhisperAPI:
		return NewWhisperAPIAdapter(cfg), nil
	case EngineWhisperCpp:
		return newWhisperCppAdapter(cfg)
	case EngineVosk:
		return newVoskAdapter(cfg)
	case EngineVoskServer:
		return NewVoskServerAdapter(cfg), nil
	case EngineGoogle:
		a, err := NewGoogleASRAdapter(ctx, cfg)
		return checked(a, err)
	case EngineDeepgram:
		a, err := NewDeepgramASRAdapter(cfg)
		return checked(a, err)
	case EngineTencent:
		a, err := NewTencentASRAdapter(cfg)
		return checked(a, err)
	case EngineAzure:
		return newAzureAdapter(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}

// checked keeps a failed constructor from yielding a non-nil interface
// holding a nil pointer.
func checked[T ASRAdapter](adapter T, err error) (ASRAdapter, error) {
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// NewStreamingAdapter builds an engine that supports incremental decoding.
func NewStreamingAdapter(ctx context.Context, cfg Config) (StreamingASRAdapter, error) {
	adapter, err := NewASRAdapter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	streaming, ok := adapter.(StreamingASRAdapter)
	if !ok {
		Close(adapter)
		return nil, fmt.Errorf("engine %q does not support streaming", adapter.Name())
	}
	return streaming, nil
}

// Close releases adapter resources when the adapter holds any.
func Close(adapter any) {
	c, ok := adapter.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close ASR adapter")
	}
}
