// Package diarization splits a recording into speaker turns and transcribes
// each turn.
package diarization

import (
	"fmt"
	"os"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
	"github.com/rs/zerolog/log"
)

// Turn is one stretch of a single speaker, in seconds.
type Turn struct {
	Start   float64
	End     float64
	Speaker string
}

// Diarizer labels who speaks when in mono float samples.
type Diarizer interface {
	Diarize(samples []float32) ([]Turn, error)
	SampleRate() int
}

// SherpaConfig points at the pyannote segmentation model and a speaker
// embedding model.
type SherpaConfig struct {
	SegmentationModel   string  `mapstructure:"segmentation_model"`
	EmbeddingModel      string  `mapstructure:"embedding_model"`
	NumThreads          int     `mapstructure:"num_threads"`
	NumSpeakers         int     `mapstructure:"num_speakers"`
	ClusteringThreshold float32 `mapstructure:"clustering_threshold"`
	MinDurationOn       float32 `mapstructure:"min_duration_on"`
	MinDurationOff      float32 `mapstructure:"min_duration_off"`
}

// SherpaDiarizer runs sherpa-onnx offline speaker diarization.
type SherpaDiarizer struct {
	mu sync.Mutex
	sd *sherpa.OfflineSpeakerDiarization
}

// NewSherpaDiarizer loads both models on the CPU provider.
func NewSherpaDiarizer(cfg SherpaConfig) (*SherpaDiarizer, error) {
	for _, p := range []string{cfg.SegmentationModel, cfg.EmbeddingModel} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("diarization model: %w", err)
		}
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 4
	}
	if cfg.ClusteringThreshold <= 0 {
		cfg.ClusteringThreshold = 0.5
	}
	numClusters := -1
	if cfg.NumSpeakers > 0 {
		numClusters = cfg.NumSpeakers
	}

	sd := sherpa.NewOfflineSpeakerDiarization(&sherpa.OfflineSpeakerDiarizationConfig{
		Segmentation: sherpa.OfflineSpeakerSegmentationModelConfig{
			Pyannote:   sherpa.OfflineSpeakerSegmentationPyannoteModelConfig{Model: cfg.SegmentationModel},
			NumThreads: cfg.NumThreads,
			Provider:   "cpu",
		},
		Embedding: sherpa.SpeakerEmbeddingExtractorConfig{
			Model:      cfg.EmbeddingModel,
			NumThreads: cfg.NumThreads,
			Provider:   "cpu",
		},
		Clustering: sherpa.FastClusteringConfig{
			NumClusters: numClusters,
			Threshold:   cfg.ClusteringThreshold,
		},
		MinDurationOn:  cfg.MinDurationOn,
		MinDurationOff: cfg.MinDurationOff,
	})
	if sd == nil {
		return nil, fmt.Errorf("failed to create sherpa-onnx diarizer")
	}
	log.Info().Str("segmentation", cfg.SegmentationModel).Str("embedding", cfg.EmbeddingModel).Msg("Diarization models loaded")
	return &SherpaDiarizer{sd: sd}, nil
}

func (d *SherpaDiarizer) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sd == nil {
		return 16000
	}
	return d.sd.SampleRate()
}

// Diarize returns turns in time order labelled SPEAKER_00, SPEAKER_01, ...
func (d *SherpaDiarizer) Diarize(samples []float32) ([]Turn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sd == nil {
		return nil, fmt.Errorf("diarizer is closed")
	}
	if len(samples) == 0 {
		return nil, nil
	}

	segments := d.sd.Process(samples)
	turns := make([]Turn, 0, len(segments))
	for _, seg := range segments {
		turns = append(turns, Turn{
			Start:   float64(seg.Start),
			End:     float64(seg.End),
			Speaker: SpeakerLabel(seg.Speaker),
		})
	}
	return turns, nil
}

func (d *SherpaDiarizer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sd != nil {
		sherpa.DeleteOfflineSpeakerDiarization(d.sd)
		d.sd = nil
	}
	return nil
}

// SpeakerLabel formats a cluster index the way pyannote names speakers.
func SpeakerLabel(i int) string {
	return fmt.Sprintf("SPEAKER_%02d", i)
}
