//go:build !whispercpp

package vendoradapters

import "fmt"

func newWhisperCppAdapter(cfg Config) (ASRAdapter, error) {
	return nil, fmt.Errorf("whisper.cpp: %w (rebuild with -tags whispercpp, or use %s)", ErrEngineDisabled, EngineWhisperAPI)
}
