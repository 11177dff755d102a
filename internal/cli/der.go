package cli

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"speech-eval-toolkit/internal/coreengine/metricscalculator"
	"speech-eval-toolkit/internal/coreengine/vendoradapters"
	"speech-eval-toolkit/internal/diarization"
)

// derTarget is the DER below which a diarization system is considered usable.
const derTarget = 0.20

func newDERCommand(a *app) *cobra.Command {
	var refPath, hypPath string
	cmd := &cobra.Command{
		Use:   "der",
		Short: "Score a hypothesis RTTM against a reference RTTM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd.Flags(), "reference", "hypothesis"); err != nil {
				return err
			}
			ref, err := diarization.ReadRTTM(refPath)
			if err != nil {
				return err
			}
			hyp, err := diarization.ReadRTTM(hypPath)
			if err != nil {
				return err
			}
			res, err := metricscalculator.CalculateDER(ref, hyp)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "DER: %s (Target < %s)\n", metricscalculator.FormatRate(res.Rate()), metricscalculator.FormatRate(derTarget))
			fmt.Fprintf(w, "  reference speech: %.3fs\n", res.Total)
			fmt.Fprintf(w, "  missed:           %.3fs\n", res.Missed)
			fmt.Fprintf(w, "  false alarm:      %.3fs\n", res.FalseAlarm)
			fmt.Fprintf(w, "  confusion:        %.3fs\n", res.Confusion)
			refs := make([]string, 0, len(res.Mapping))
			for r := range res.Mapping {
				refs = append(refs, r)
			}
			sort.Strings(refs)
			for _, r := range refs {
				fmt.Fprintf(w, "  %s -> %s\n", r, res.Mapping[r])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&refPath, "reference", "", "reference RTTM file")
	cmd.Flags().StringVar(&hypPath, "hypothesis", "", "hypothesis RTTM file")
	return cmd
}

func newDiarizeCommand(a *app) *cobra.Command {
	var audioPath string
	var fetch, upload bool
	cmd := &cobra.Command{
		Use:   "diarize",
		Short: "Split a recording into speaker turns and transcribe each turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd.Flags(), "audio"); err != nil {
				return err
			}
			ctx := cmd.Context()
			dc := a.cfg.Diarization

			if fetch || dc.SegmentationModel == "" || dc.EmbeddingModel == "" {
				paths, err := diarization.FetchModels(ctx, nil, dc.HubURL, dc.HubToken, dc.ModelDir, diarization.DefaultModels)
				if err != nil {
					return fmt.Errorf("fetch diarization models: %w", err)
				}
				if dc.SegmentationModel == "" {
					dc.SegmentationModel = paths[0]
				}
				if dc.EmbeddingModel == "" {
					dc.EmbeddingModel = paths[1]
				}
			}

			d, err := diarization.NewSherpaDiarizer(dc.SherpaConfig)
			if err != nil {
				return err
			}
			defer d.Close()

			adapter, err := a.newAdapter(ctx)
			if err != nil {
				return err
			}
			defer vendoradapters.Close(adapter)

			res, err := diarization.DiarizeAndTranscribe(ctx, d, adapter, audioPath, a.cfg.Engine.Language, dc.OutputDir)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, line := range res.Lines {
				fmt.Fprintln(w, line)
			}
			fmt.Fprintf(w, "\nRTTM written to %s\nTranscript written to %s\n", res.RTTMPath, res.TranscriptPath)
			log.Info().Int("turns", len(res.Turns)).Str("audio", filepath.Base(audioPath)).Msg("Diarization finished")

			if upload {
				return a.upload(ctx, w, res.RTTMPath, res.TranscriptPath)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&audioPath, "audio", "", "16 kHz mono 16-bit WAV recording")
	f.String("output-dir", ".", "directory for "+diarization.RTTMFile+" and "+diarization.TranscriptFile)
	f.Int("num-speakers", 0, "number of speakers, 0 to estimate")
	f.BoolVar(&fetch, "fetch-models", false, "download the default models into diarization.model_dir")
	f.BoolVar(&upload, "upload", false, "upload the outputs to the configured object storage")
	bindFlag(cmd, "output-dir", "diarization.output_dir")
	bindFlag(cmd, "num-speakers", "diarization.num_speakers")
	addEngineFlags(cmd)
	return cmd
}
