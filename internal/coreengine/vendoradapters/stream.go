package vendoradapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"speech-eval-toolkit/internal/audio"
)

// streamChunkBytes is 250 ms of 16 kHz 16-bit mono audio.
const streamChunkBytes = 8000

// recognizeByStreaming feeds a validated evaluation WAV through a streaming
// engine and joins the final results.
func recognizeByStreaming(ctx context.Context, s StreamingASRAdapter, audioFilePath string) (string, string, error) {
	pcm, err := audio.ReadPCM16(audioFilePath)
	if err != nil {
		return "", "", err
	}
	session, err := s.NewStream(ctx, audio.EvalSampleRate)
	if err != nil {
		return "", "", err
	}
	defer session.Close()

	var finals []string
	for off := 0; off < len(pcm); off += streamChunkBytes {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		end := min(off+streamChunkBytes, len(pcm))
		res, err := session.Accept(pcm[off:end])
		if err != nil {
			return "", "", fmt.Errorf("stream chunk at byte %d: %w", off, err)
		}
		if res.Final && res.Text != "" {
			finals = append(finals, res.Text)
		}
	}
	last, err := session.Finish()
	if err != nil {
		return "", "", fmt.Errorf("finish stream: %w", err)
	}
	if last != "" {
		finals = append(finals, last)
	}
	text := strings.Join(finals, " ")
	return text, fmt.Sprintf(`{"text":%q}`, text), nil
}

// parseVoskResult reads a Vosk recognizer message. Messages carrying "text"
// are final; messages carrying "partial" are not.
func parseVoskResult(msg []byte) (StreamResult, error) {
	if !gjson.ValidBytes(msg) {
		return StreamResult{}, fmt.Errorf("invalid recognizer message: %q", msg)
	}
	if text := gjson.GetBytes(msg, "text"); text.Exists() {
		return StreamResult{Text: strings.TrimSpace(text.String()), Final: true}, nil
	}
	return StreamResult{Text: strings.TrimSpace(gjson.GetBytes(msg, "partial").String())}, nil
}

// DetectedLanguage returns the language an engine reported in its raw JSON
// response, or "" when it did not report one.
func DetectedLanguage(rawResponse string) string {
	for _, path := range []string{"language", "results.channels.0.detected_language", "result.language"} {
		if v := gjson.Get(rawResponse, path); v.Exists() {
			return v.String()
		}
	}
	return ""
}
