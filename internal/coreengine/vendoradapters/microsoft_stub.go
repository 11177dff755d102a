//go:build !azurespeech

package vendoradapters

import "fmt"

func newAzureAdapter(cfg Config) (ASRAdapter, error) {
	return nil, fmt.Errorf("azure: %w (rebuild with -tags azurespeech)", ErrEngineDisabled)
}
