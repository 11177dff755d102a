package vendoradapters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-eval-toolkit/internal/audio"
)

func writeSecondOfSilence(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, audio.WriteWAV(path, make([]int16, audio.EvalSampleRate), audio.EvalSampleRate))
	return path
}

func TestWhisperAPIAdapterRecognize(t *testing.T) {
	var gotModel, gotLanguage, gotFormat, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		gotFormat = r.FormValue("response_format")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":" Hello world. ","language":"english","duration":1.0}`)
	}))
	defer srv.Close()

	a := NewWhisperAPIAdapter(Config{APIKey: "sk-test", Endpoint: srv.URL})
	text, raw, err := a.Recognize(context.Background(), writeSecondOfSilence(t), "en")
	require.NoError(t, err)
	assert.Equal(t, "Hello world.", text)
	assert.Equal(t, "english", DetectedLanguage(raw))
	assert.Equal(t, "whisper-1", gotModel)
	assert.Equal(t, "en", gotLanguage)
	assert.Equal(t, "verbose_json", gotFormat)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestWhisperAPIAdapterServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad audio","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	a := NewWhisperAPIAdapter(Config{APIKey: "sk-test", Endpoint: srv.URL})
	_, _, err := a.Recognize(context.Background(), writeSecondOfSilence(t), "en")
	assert.ErrorContains(t, err, "whisper transcription failed")
}

// voskTestServer mimics vosk-server: the second audio chunk completes an
// utterance and eof returns the trailing one.
func voskTestServer(t *testing.T, sampleRates chan<- string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, cfg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sampleRates <- string(cfg)

		chunks := 0
		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var reply string
			switch {
			case kind == websocket.TextMessage && strings.Contains(string(msg), "eof"):
				reply = `{"text" : "world"}`
			case chunks == 1:
				chunks++
				reply = `{"result" : [], "text" : "hello"}`
			default:
				chunks++
				reply = `{"partial" : "hel"}`
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
}

func TestVoskServerAdapterRecognize(t *testing.T) {
	configs := make(chan string, 1)
	srv := voskTestServer(t, configs)
	defer srv.Close()

	a := NewVoskServerAdapter(Config{Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http")})
	text, raw, err := a.Recognize(context.Background(), writeSecondOfSilence(t), "en")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.JSONEq(t, `{"text":"hello world"}`, raw)
	assert.JSONEq(t, `{"config":{"sample_rate":16000}}`, <-configs)
}

func TestVoskServerAdapterStreamPartials(t *testing.T) {
	srv := voskTestServer(t, make(chan string, 1))
	defer srv.Close()

	a := NewVoskServerAdapter(Config{Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http")})
	session, err := a.NewStream(context.Background(), 16000)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.Accept(make([]byte, 320))
	require.NoError(t, err)
	assert.Equal(t, StreamResult{Text: "hel"}, res)
	res, err = session.Accept(make([]byte, 320))
	require.NoError(t, err)
	assert.Equal(t, StreamResult{Text: "hello", Final: true}, res)

	require.NoError(t, session.Close())
	assert.NoError(t, session.Close())
}

func TestVoskServerAdapterRejectsNonEvalWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "8k.wav")
	require.NoError(t, audio.WriteWAV(path, make([]int16, 8000), 8000))

	a := NewVoskServerAdapter(Config{Endpoint: "ws://127.0.0.1:1"})
	_, _, err := a.Recognize(context.Background(), path, "en")
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)
}

func TestDeepgramASRAdapterRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Token dg-key", r.Header.Get("Authorization"))
		assert.Equal(t, "en", r.URL.Query().Get("language"))
		assert.Equal(t, "nova-2", r.URL.Query().Get("model"))
		fmt.Fprint(w, `{"results":{"channels":[{"detected_language":"en","alternatives":[{"transcript":"hello there","confidence":0.9}]}]}}`)
	}))
	defer srv.Close()

	a, err := NewDeepgramASRAdapter(Config{APIKey: "dg-key", Endpoint: srv.URL, Model: "nova-2"})
	require.NoError(t, err)
	text, raw, err := a.Recognize(context.Background(), writeSecondOfSilence(t), "en")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.Equal(t, "en", DetectedLanguage(raw))
}

func TestDeepgramASRAdapterErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"err_code":"INVALID_AUTH","err_msg":"Invalid credentials."}`)
	}))
	defer srv.Close()

	a, err := NewDeepgramASRAdapter(Config{APIKey: "bad", Endpoint: srv.URL})
	require.NoError(t, err)
	_, raw, err := a.Recognize(context.Background(), writeSecondOfSilence(t), "en")
	assert.ErrorContains(t, err, "Invalid credentials.")
	assert.Contains(t, raw, "INVALID_AUTH")
}

func TestParseVoskResult(t *testing.T) {
	res, err := parseVoskResult([]byte(`{"partial" : "one two"}`))
	require.NoError(t, err)
	assert.Equal(t, StreamResult{Text: "one two"}, res)

	res, err = parseVoskResult([]byte(`{"text" : ""}`))
	require.NoError(t, err)
	assert.Equal(t, StreamResult{Final: true}, res)

	_, err = parseVoskResult([]byte("not json"))
	assert.Error(t, err)
}

func TestTencentEngineType(t *testing.T) {
	assert.Equal(t, "16k_en", tencentEngineType("", "en"))
	assert.Equal(t, "16k_zh", tencentEngineType("", "zh-CN"))
	assert.Equal(t, "8k_en", tencentEngineType("8k_en", "zh"))
}
