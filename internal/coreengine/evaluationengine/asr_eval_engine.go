package evaluationengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"speech-eval-toolkit/internal/audio"
	"speech-eval-toolkit/internal/coreengine/metricscalculator"
	"speech-eval-toolkit/internal/coreengine/textnormalizer"
	"speech-eval-toolkit/internal/coreengine/vendoradapters"
	"speech-eval-toolkit/internal/dataset"
	"speech-eval-toolkit/internal/resulttable"
)

// Evaluator runs one ASR engine over audio and scores it against ground
// truth. Items are processed sequentially.
type Evaluator struct {
	Adapter  vendoradapters.ASRAdapter
	Language string
	// OnRecord, when set, is called after every batch item with its position.
	OnRecord func(index, total int, rec resulttable.Record)
}

// New returns an Evaluator for adapter.
func New(adapter vendoradapters.ASRAdapter, language string) *Evaluator {
	return &Evaluator{Adapter: adapter, Language: language}
}

// FileResult is the outcome of a single-file evaluation.
type FileResult struct {
	Format                audio.Format
	GroundTruth           string
	Hypothesis            string
	NormalizedGroundTruth string
	NormalizedHypothesis  string
	WER                   float64
	CER                   float64
	RawResponse           string
	Latency               time.Duration
}

// EvaluateFile validates, transcribes and scores one WAV file. Any failure is
// returned to the caller.
func (e *Evaluator) EvaluateFile(ctx context.Context, wavPath, groundTruth string) (*FileResult, error) {
	format, err := audio.ValidateEvalWAV(wavPath)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	hypothesis, raw, err := e.Adapter.Recognize(ctx, wavPath, e.Language)
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", wavPath, err)
	}
	res := &FileResult{
		Format:      format,
		GroundTruth: groundTruth,
		Hypothesis:  hypothesis,
		RawResponse: raw,
		Latency:     time.Since(start),
	}
	res.NormalizedGroundTruth, res.NormalizedHypothesis = textnormalizer.Pair(groundTruth, hypothesis)

	if res.WER, err = metricscalculator.CalculateWER(res.NormalizedGroundTruth, res.NormalizedHypothesis); err != nil {
		return res, err
	}
	if res.CER, err = metricscalculator.CalculateCER(res.NormalizedGroundTruth, res.NormalizedHypothesis); err != nil {
		return res, err
	}
	return res, nil
}

// RunBatch evaluates walker pairs. Malformed audio is recorded as skipped
// without a transcription call and engine errors are recorded as errors; only
// context cancellation stops the batch, returning the records made so far.
func (e *Evaluator) RunBatch(ctx context.Context, pairs []dataset.Pair) ([]resulttable.Record, error) {
	records := make([]resulttable.Record, 0, len(pairs))
	for i, p := range pairs {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		rec := e.evaluateItem(ctx, filepath.Base(p.AudioPath), p.AudioPath, p.GroundTruth)
		records = append(records, rec)
		e.report(i, len(pairs), rec)
	}
	return records, nil
}

// RunDatasetCSV evaluates dataset CSV entries. Entries whose audio is missing
// are recorded as file_not_found.
func (e *Evaluator) RunDatasetCSV(ctx context.Context, entries []dataset.Entry) ([]resulttable.Record, error) {
	records := make([]resulttable.Record, 0, len(entries))
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		var rec resulttable.Record
		if _, err := os.Stat(entry.AudioPath); err != nil {
			log.Warn().Str("file", entry.AudioPath).Msg("Audio file not found")
			rec = resulttable.Record{
				Filename:    filepath.Base(entry.AudioPath),
				GroundTruth: entry.GroundTruth,
				Status:      resulttable.StatusFileNotFound,
				Error:       err.Error(),
			}
		} else {
			rec = e.evaluateItem(ctx, filepath.Base(entry.AudioPath), entry.AudioPath, entry.GroundTruth)
		}
		records = append(records, rec)
		e.report(i, len(entries), rec)
	}
	return records, nil
}

func (e *Evaluator) evaluateItem(ctx context.Context, name, path, groundTruth string) resulttable.Record {
	rec := resulttable.Record{Filename: name, GroundTruth: groundTruth}

	if _, err := audio.ValidateEvalWAV(path); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Skipping audio with unsupported format")
		rec.Status = resulttable.StatusSkipped
		rec.Error = err.Error()
		return rec
	}

	start := time.Now()
	hypothesis, _, err := e.Adapter.Recognize(ctx, path, e.Language)
	rec.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		log.Error().Err(err).Str("file", path).Str("engine", e.Adapter.Name()).Msg("Transcription failed")
		rec.Status = resulttable.StatusError
		rec.Error = err.Error()
		return rec
	}
	rec.Hypothesis = hypothesis

	ref, hyp := textnormalizer.Pair(groundTruth, hypothesis)
	wer, err := metricscalculator.CalculateWER(ref, hyp)
	if err != nil {
		rec.Status = resulttable.StatusError
		rec.Error = err.Error()
		return rec
	}
	// CER cannot fail once WER succeeded: a non-empty word list has runes.
	cer, _ := metricscalculator.CalculateCER(ref, hyp)

	rec.WER = metricscalculator.FormatRate(wer)
	rec.CER = metricscalculator.FormatRate(cer)
	rec.Status = resulttable.StatusOK
	return rec
}

func (e *Evaluator) report(i, total int, rec resulttable.Record) {
	if e.OnRecord != nil {
		e.OnRecord(i, total, rec)
	}
}

// Summary counts batch outcomes.
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
	// MeanWER is in percentage points; HasMean is false when no item was scored.
	MeanWER float64
	HasMean bool
}

// Summarize tallies records and averages their WER column.
func Summarize(records []resulttable.Record) Summary {
	s := Summary{Processed: len(records)}
	rates := make([]string, 0, len(records))
	for _, r := range records {
		switch {
		case r.Status == resulttable.StatusOK:
			s.Succeeded++
		case r.Status == "" && r.OK():
			// legacy tables carry no status; a parsable wer is a success
			if _, err := metricscalculator.ParseRate(r.WER); err == nil {
				s.Succeeded++
			} else {
				s.Failed++
			}
		case r.Status == resulttable.StatusSkipped:
			s.Skipped++
		default:
			s.Failed++
		}
		rates = append(rates, r.WER)
	}
	agg, err := metricscalculator.AverageRates(rates)
	switch {
	case errors.Is(err, metricscalculator.ErrNoValidValues):
	case err != nil:
		log.Warn().Err(err).Msg("Failed to average WER")
	default:
		s.MeanWER = agg.Mean
		s.HasMean = true
	}
	return s
}
