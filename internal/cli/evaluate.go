package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"speech-eval-toolkit/internal/coreengine/evaluationengine"
	"speech-eval-toolkit/internal/coreengine/metricscalculator"
	"speech-eval-toolkit/internal/coreengine/vendoradapters"
	"speech-eval-toolkit/internal/dataset"
	"speech-eval-toolkit/internal/datastore"
	"speech-eval-toolkit/internal/jobmanagement"
	"speech-eval-toolkit/internal/objectstore"
	"speech-eval-toolkit/internal/resulttable"
)

func newEvaluateCommand(a *app) *cobra.Command {
	var wavPath, gtPath string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Transcribe one WAV file and score it against a ground-truth text file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd.Flags(), "wav", "gt"); err != nil {
				return err
			}
			gt, err := os.ReadFile(gtPath)
			if err != nil {
				return fmt.Errorf("read ground truth: %w", err)
			}
			ctx := cmd.Context()
			adapter, err := a.newAdapter(ctx)
			if err != nil {
				return err
			}
			defer vendoradapters.Close(adapter)

			log.Info().Str("wav", wavPath).Str("engine", adapter.Name()).Msg("Transcribing")
			res, err := evaluationengine.New(adapter, a.cfg.Engine.Language).EvaluateFile(ctx, wavPath, strings.TrimSpace(string(gt)))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "--- Evaluation Results ---")
			fmt.Fprintf(w, "GROUND TRUTH (raw):\n%s\n\n", res.GroundTruth)
			fmt.Fprintf(w, "HYPOTHESIS (raw):\n%s\n\n", res.Hypothesis)
			fmt.Fprintf(w, "GROUND TRUTH (normalized):\n%s\n\n", res.NormalizedGroundTruth)
			fmt.Fprintf(w, "HYPOTHESIS (normalized):\n%s\n\n", res.NormalizedHypothesis)
			fmt.Fprintf(w, "WER = %s\n", metricscalculator.FormatRate(res.WER))
			fmt.Fprintf(w, "CER = %s\n", metricscalculator.FormatRate(res.CER))
			fmt.Fprintf(w, "Latency = %s\n", res.Latency.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&wavPath, "wav", "", "16 kHz mono 16-bit WAV file")
	cmd.Flags().StringVar(&gtPath, "gt", "", "ground-truth text file")
	addEngineFlags(cmd)
	return cmd
}

type batchOptions struct {
	input     string
	inputCSV  string
	output    string
	audioExt  string
	name      string
	recordRun bool
	upload    bool
}

func newBatchCommand(a *app) *cobra.Command {
	var o batchOptions
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Evaluate an engine over a dataset directory or dataset CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (o.input == "") == (o.inputCSV == "") {
				return usageError{errors.New("exactly one of --input or --input-csv is required")}
			}
			return a.runBatch(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.input, "input", "", "directory tree of audio files and transcripts")
	f.StringVar(&o.inputCSV, "input-csv", "", "dataset CSV (audio_path, ground_truth)")
	f.StringVar(&o.output, "output", "evaluation_results.csv", "result table path")
	f.StringVar(&o.audioExt, "audio-ext", ".wav", "audio extension to evaluate; dataset CSV paths are rewritten to it")
	f.StringVar(&o.name, "name", "", "run name stored with --record-run")
	f.BoolVar(&o.recordRun, "record-run", false, "record the run and its results in the configured database")
	f.BoolVar(&o.upload, "upload", false, "upload the result table to the configured object storage")
	addEngineFlags(cmd)
	return cmd
}

func (a *app) runBatch(ctx context.Context, w io.Writer, o batchOptions) error {
	if o.input != "" {
		if _, err := os.Stat(o.input); err != nil {
			return fmt.Errorf("input directory: %w", err)
		}
	}
	adapter, err := a.newAdapter(ctx)
	if err != nil {
		return err
	}
	defer vendoradapters.Close(adapter)

	eval := evaluationengine.New(adapter, a.cfg.Engine.Language)
	eval.OnRecord = func(i, total int, rec resulttable.Record) {
		fmt.Fprintf(w, "[%d/%d] %s: %s %s\n", i+1, total, rec.Filename, rec.Status, rec.WER)
	}
	batch := func(ctx context.Context) ([]resulttable.Record, error) {
		if o.inputCSV != "" {
			entries, err := dataset.ReadDatasetCSV(o.inputCSV)
			if err != nil {
				return nil, err
			}
			if ext := normalizeExt(o.audioExt); ext != "" {
				for i := range entries {
					entries[i] = entries[i].WithAudioExt(ext)
				}
			}
			return eval.RunDatasetCSV(ctx, entries)
		}
		walk, err := dataset.Walk(o.input, dataset.WalkOptions{AudioExt: normalizeExt(o.audioExt)})
		if err != nil {
			return nil, err
		}
		for _, s := range walk.Skipped {
			fmt.Fprintf(w, "Skipping %s: %s\n", filepath.Base(s.AudioPath), s.Reason)
		}
		return eval.RunBatch(ctx, walk.Pairs)
	}

	var records []resulttable.Record
	var runErr error
	if o.recordRun {
		records, runErr = a.recordedBatch(ctx, o, batch)
	} else {
		records, runErr = batch(ctx)
	}

	if len(records) == 0 {
		if runErr != nil {
			return runErr
		}
		fmt.Fprintln(w, "No audio files processed. Check --input and the audio format.")
		return nil
	}
	if err := resulttable.Write(o.output, records); err != nil {
		return errors.Join(runErr, err)
	}

	s := evaluationengine.Summarize(records)
	fmt.Fprintf(w, "\nBatch evaluation complete: %d processed, %d ok, %d failed, %d skipped\n", s.Processed, s.Succeeded, s.Failed, s.Skipped)
	if s.HasMean {
		fmt.Fprintf(w, "Overall WER: %s\n", metricscalculator.FormatRate(s.MeanWER/100))
	}
	fmt.Fprintf(w, "Detailed results saved to %s\n", o.output)

	if o.upload {
		if err := a.upload(ctx, w, o.output); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func (a *app) recordedBatch(ctx context.Context, o batchOptions, batch jobmanagement.BatchFunc) ([]resulttable.Record, error) {
	if a.cfg.Database.DSN == "" {
		return nil, usageError{errors.New("--record-run needs database.dsn (SPEECHEVAL_DATABASE_DSN or DATABASE_URL)")}
	}
	store, err := datastore.Open(ctx, a.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if a.cfg.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	source := o.input
	if o.inputCSV != "" {
		source = o.inputCSV
	}
	run, records, err := jobmanagement.NewRunService(store).Execute(ctx, jobmanagement.RunRequest{
		Name:    o.name,
		Engine:  a.cfg.Engine.Engine,
		Model:   a.cfg.Engine.Model,
		Dataset: source,
		Parameters: map[string]any{
			"language":  a.cfg.Engine.Language,
			"audio_ext": o.audioExt,
		},
	}, batch)
	if run != nil {
		log.Info().Int("run_id", run.ID).Str("status", run.Status).Msg("Evaluation run recorded")
	}
	return records, err
}

func (a *app) upload(ctx context.Context, w io.Writer, paths ...string) error {
	pub, err := objectstore.New(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	names, err := pub.NewBatch().UploadAll(ctx, paths...)
	for _, n := range names {
		fmt.Fprintf(w, "Uploaded %s\n", n)
	}
	return err
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func newAverageCommand(a *app) *cobra.Command {
	var input, column string
	cmd := &cobra.Command{
		Use:   "average",
		Short: "Average the error rate column of a result table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd.Flags(), "input"); err != nil {
				return err
			}
			var agg metricscalculator.Aggregate
			var err error
			switch column {
			case resulttable.ColWER:
				agg, err = metricscalculator.AverageFromTable(input)
			case resulttable.ColCER:
				agg, err = averageCER(input)
			default:
				return usageError{fmt.Errorf("--column must be %s or %s", resulttable.ColWER, resulttable.ColCER)}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Average %s: %s (%d values, %d skipped)\n", strings.ToUpper(column), agg, agg.Valid, agg.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "result table CSV")
	cmd.Flags().StringVar(&column, "column", resulttable.ColWER, "column to average: wer or cer")
	return cmd
}

func averageCER(path string) (metricscalculator.Aggregate, error) {
	records, err := resulttable.Read(path)
	if err != nil {
		return metricscalculator.Aggregate{}, err
	}
	values := make([]string, len(records))
	for i, r := range records {
		values[i] = r.CER
	}
	return metricscalculator.AverageRates(values)
}

func newTranscribeCommand(a *app) *cobra.Command {
	var audioPath string
	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe one audio file and print the detected language",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd.Flags(), "audio"); err != nil {
				return err
			}
			if _, err := os.Stat(audioPath); err != nil {
				return fmt.Errorf("audio file: %w", err)
			}
			ctx := cmd.Context()
			adapter, err := a.newAdapter(ctx)
			if err != nil {
				return err
			}
			defer vendoradapters.Close(adapter)

			text, raw, err := adapter.Recognize(ctx, audioPath, a.cfg.Engine.Language)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "--- Transcription Result ---")
			fmt.Fprintf(w, "Text: %s\n", text)
			lang := vendoradapters.DetectedLanguage(raw)
			if lang == "" {
				lang = "unknown"
			}
			fmt.Fprintf(w, "Language: %s\n", lang)
			return nil
		},
	}
	cmd.Flags().StringVar(&audioPath, "audio", "", "audio file to transcribe")
	addEngineFlags(cmd)
	return cmd
}
