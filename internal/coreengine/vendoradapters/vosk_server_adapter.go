package vendoradapters

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const defaultVoskServerURL = "ws://localhost:2700"

// VoskServerAdapter talks to a vosk-server instance over its WebSocket
// protocol: a config message, binary PCM chunks each answered with one
// result message, and an eof message answered with the final result.
type VoskServerAdapter struct {
	URL    string
	Dialer *websocket.Dialer
	// ReadTimeout bounds the wait for each server reply.
	ReadTimeout time.Duration
}

// NewVoskServerAdapter builds the adapter for cfg.Endpoint.
func NewVoskServerAdapter(cfg Config) *VoskServerAdapter {
	cfg = cfg.withDefaults()
	url := cfg.Endpoint
	if url == "" {
		url = defaultVoskServerURL
	}
	return &VoskServerAdapter{
		URL:         url,
		Dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		ReadTimeout: cfg.Timeout,
	}
}

func (a *VoskServerAdapter) Name() string { return EngineVoskServer }

func (a *VoskServerAdapter) Recognize(ctx context.Context, audioFilePath string, languageCode string) (string, string, error) {
	return recognizeByStreaming(ctx, a, audioFilePath)
}

// NewStream opens a connection and sends the recognizer configuration.
func (a *VoskServerAdapter) NewStream(ctx context.Context, sampleRate int) (StreamSession, error) {
	dialer := a.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, a.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to vosk server %s: %w", a.URL, err)
	}
	config := fmt.Sprintf(`{"config":{"sample_rate":%d}}`, sampleRate)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(config)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send vosk config: %w", err)
	}
	log.Debug().Str("url", a.URL).Int("sample_rate", sampleRate).Msg("Vosk server stream opened")
	return &voskServerStream{conn: conn, readTimeout: a.ReadTimeout}, nil
}

type voskServerStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	closed      bool
}

func (s *voskServerStream) Accept(pcm []byte) (StreamResult, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return StreamResult{}, fmt.Errorf("send audio: %w", err)
	}
	msg, err := s.read()
	if err != nil {
		return StreamResult{}, err
	}
	return parseVoskResult(msg)
}

func (s *voskServerStream) Finish() (string, error) {
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`)); err != nil {
		return "", fmt.Errorf("send eof: %w", err)
	}
	msg, err := s.read()
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(msg, "text").String(), nil
}

func (s *voskServerStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

func (s *voskServerStream) read() ([]byte, error) {
	if s.readTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read vosk reply: %w", err)
	}
	return msg, nil
}
