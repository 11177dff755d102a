//go:build !vosk

package vendoradapters

import "fmt"

func newVoskAdapter(cfg Config) (ASRAdapter, error) {
	return nil, fmt.Errorf("vosk: %w (rebuild with -tags vosk, or use %s)", ErrEngineDisabled, EngineVoskServer)
}
