package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"speech-eval-toolkit/internal/summarizer"
)

func newSummarizeCommand(a *app) *cobra.Command {
	var transcript, output string
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a transcript with a hosted language model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd.Flags(), "transcript"); err != nil {
				return err
			}
			text, err := os.ReadFile(transcript)
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}

			cfg := a.cfg.Summarizer
			s, err := summarizer.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if cfg.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
				defer cancel()
			}
			log.Info().Str("backend", cfg.Backend).Str("transcript", transcript).Msg("Summarizing")
			summary, err := s.Summarize(ctx, string(text))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Summary:\n%s\n", summary)
			if err := summarizer.WriteSummary(output, summary); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Summary saved to %s\n", output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&transcript, "transcript", "", "transcript text file")
	f.StringVar(&output, "output", summarizer.OutputFile, "file to save the summary to")
	f.String("backend", summarizer.BackendOpenAI, "summarizer backend: openai or gemini")
	f.String("model", "", "model name, backend default when empty")
	f.String("endpoint", "", "API base URL override")
	bindFlag(cmd, "backend", "summarizer.backend")
	bindFlag(cmd, "model", "summarizer.model")
	bindFlag(cmd, "endpoint", "summarizer.endpoint")
	return cmd
}
