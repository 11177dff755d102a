package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"speech-eval-toolkit/internal/coreengine/vendoradapters"
)

func addEngineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("engine", vendoradapters.EngineWhisperAPI, "ASR engine: "+strings.Join(vendoradapters.Engines(), ", "))
	f.String("model", "", "engine model name or model path")
	f.String("language", "en", "language code, or auto where the engine detects it")
	f.String("endpoint", "", "engine endpoint override (self-hosted servers)")
	bindFlag(cmd, "engine", "engine.engine")
	bindFlag(cmd, "model", "engine.model")
	bindFlag(cmd, "language", "engine.language")
	bindFlag(cmd, "endpoint", "engine.endpoint")
}

func (a *app) newAdapter(ctx context.Context) (vendoradapters.ASRAdapter, error) {
	adapter, err := vendoradapters.NewASRAdapter(ctx, a.cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", a.cfg.Engine.Engine, err)
	}
	return adapter, nil
}
