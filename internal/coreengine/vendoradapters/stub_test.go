//go:build !whispercpp && !vosk && !azurespeech

package vendoradapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNativeEnginesDisabledWithoutTags(t *testing.T) {
	for _, engine := range []string{EngineWhisperCpp, EngineVosk, EngineAzure} {
		_, err := NewASRAdapter(context.Background(), Config{Engine: engine, Model: "m", APIKey: "k", Region: "r"})
		assert.ErrorIs(t, err, ErrEngineDisabled, engine)
	}
}
