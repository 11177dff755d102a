package vendoradapters

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// MockASRAdapter is an in-memory engine used by tests and dry runs. With an
// empty Text it answers with the file's base name.
type MockASRAdapter struct {
	Text string
	Fail bool

	mu    sync.Mutex
	calls []string
}

func (m *MockASRAdapter) Name() string {
	if m.Fail {
		return EngineMockError
	}
	return EngineMock
}

// Recognize simulates an ASR transcription.
func (m *MockASRAdapter) Recognize(ctx context.Context, audioFilePath string, languageCode string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	m.mu.Lock()
	m.calls = append(m.calls, audioFilePath)
	m.mu.Unlock()

	log.Debug().Str("file", audioFilePath).Str("language", languageCode).Msg("Mock recognize")
	if m.Fail {
		return "", `{"error":"simulated failure"}`, fmt.Errorf("simulated error for file %s", audioFilePath)
	}

	text := m.Text
	if text == "" {
		text = strings.TrimSuffix(filepath.Base(audioFilePath), filepath.Ext(audioFilePath))
	}
	return text, fmt.Sprintf(`{"text":%q,"language":%q}`, text, languageCode), nil
}

// Calls returns the paths passed to Recognize, in order.
func (m *MockASRAdapter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// NewStream returns a session that emits a partial after every chunk and the
// configured text as the final result.
func (m *MockASRAdapter) NewStream(ctx context.Context, sampleRate int) (StreamSession, error) {
	if m.Fail {
		return nil, fmt.Errorf("simulated stream failure")
	}
	return &mockStream{text: m.Text}, nil
}

type mockStream struct {
	text   string
	chunks int
}

func (s *mockStream) Accept(pcm []byte) (StreamResult, error) {
	s.chunks++
	return StreamResult{Text: fmt.Sprintf("chunk %d", s.chunks)}, nil
}

func (s *mockStream) Finish() (string, error) { return s.text, nil }

func (s *mockStream) Close() error { return nil }
