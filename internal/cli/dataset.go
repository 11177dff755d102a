package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"speech-eval-toolkit/internal/audio"
	"speech-eval-toolkit/internal/dataset"
)

func newDatasetCommand(a *app) *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Build a dataset CSV from a LibriSpeech-style tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd.Flags(), "input"); err != nil {
				return err
			}
			n, err := dataset.GenerateDatasetCSV(input, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dataset CSV with %d entries created at %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "dataset root containing *.trans.txt files")
	cmd.Flags().StringVar(&output, "output", "dataset.csv", "output CSV path")
	return cmd
}

func newConvertCommand(a *app) *cobra.Command {
	var input, output, backend, exts string
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert FLAC/MP3 audio into 16 kHz mono 16-bit WAV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd.Flags(), "input", "output"); err != nil {
				return err
			}
			conv, err := audio.NewConverter(backend)
			if err != nil {
				return usageError{err}
			}
			summary, err := audio.ConvertTree(cmd.Context(), conv, input, output, splitExts(exts)...)
			fmt.Fprintf(cmd.OutOrStdout(), "Batch conversion complete: %d converted, %d failed\n", summary.Converted, summary.Failed)
			if err != nil {
				return err
			}
			if summary.Failed > 0 && summary.Converted == 0 {
				return fmt.Errorf("all %d conversions failed", summary.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "directory with source audio")
	cmd.Flags().StringVar(&output, "output", "", "directory for WAV output")
	cmd.Flags().StringVar(&backend, "backend", audio.BackendFFmpeg, "conversion backend: ffmpeg or native")
	cmd.Flags().StringVar(&exts, "ext", ".flac", "comma-separated source extensions")
	return cmd
}

func splitExts(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
