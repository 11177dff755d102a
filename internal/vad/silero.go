package vad

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	sileroWindow16k  = 512
	sileroContext16k = 64
	sileroStateSize  = 2 * 1 * 128
)

var (
	ortInitMu   sync.Mutex
	ortInitDone bool
)

// initONNXRuntime sets up the process-wide onnxruntime environment once. The
// shared library comes from ONNXRUNTIME_SHARED_LIBRARY_PATH when set.
func initONNXRuntime() error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()
	if ortInitDone {
		return nil
	}
	if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return err
	}
	ortInitDone = true
	return nil
}

// SileroConfig configures the Silero VAD model.
type SileroConfig struct {
	ModelPath  string  `mapstructure:"model_path"`
	SampleRate int     `mapstructure:"sample_rate"`
	Threshold  float32 `mapstructure:"threshold"`
}

// Silero runs the Silero VAD ONNX model. The LSTM state carries across
// calls, so one instance serves one audio stream.
type Silero struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	sampleRate int
	window     int
	threshold  float32
	state      []float32
	context    []float32
}

// NewSilero loads the model. Only 8 kHz and 16 kHz are supported.
func NewSilero(cfg SileroConfig) (*Silero, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.SampleRate != 8000 && cfg.SampleRate != 16000 {
		return nil, fmt.Errorf("silero vad: sample rate must be 8000 or 16000, got %d", cfg.SampleRate)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("silero vad model: %w", err)
	}
	if err := initONNXRuntime(); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input", "state", "sr"}, []string{"output", "stateN"}, options)
	if err != nil {
		return nil, fmt.Errorf("create silero session: %w", err)
	}

	window, contextSize := sileroWindow16k, sileroContext16k
	if cfg.SampleRate == 8000 {
		window, contextSize = window/2, contextSize/2
	}
	log.Info().Int("sample_rate", cfg.SampleRate).Float32("threshold", cfg.Threshold).Msg("Silero VAD loaded")
	return &Silero{
		session:    session,
		sampleRate: cfg.SampleRate,
		window:     window,
		threshold:  cfg.Threshold,
		state:      make([]float32, sileroStateSize),
		context:    make([]float32, contextSize),
	}, nil
}

// IsSpeech scores block in model-sized windows, zero-padding the tail, and
// reports speech when any window scores above the threshold.
func (s *Silero) IsSpeech(block []float32) (bool, error) {
	speech := false
	for off := 0; off < len(block); off += s.window {
		chunk := block[off:min(off+s.window, len(block))]
		if len(chunk) < s.window {
			padded := make([]float32, s.window)
			copy(padded, chunk)
			chunk = padded
		}
		prob, err := s.Probability(chunk)
		if err != nil {
			return false, err
		}
		if aboveThreshold(prob, s.threshold) {
			speech = true
		}
	}
	return speech, nil
}

// aboveThreshold reports whether a window probability counts as speech. A
// probability equal to the threshold does not.
func aboveThreshold(prob, threshold float32) bool {
	return prob > threshold
}

// Probability runs one window through the model and returns its speech
// probability.
func (s *Silero) Probability(window []float32) (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return 0, fmt.Errorf("silero vad is closed")
	}

	contextSize := len(s.context)
	input := make([]float32, contextSize+len(window))
	copy(input, s.context)
	copy(input[contextSize:], window)
	copy(s.context, input[len(input)-contextSize:])

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, fmt.Errorf("create input tensor: %w", err)
	}
	defer inputTensor.Destroy()
	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), s.state)
	if err != nil {
		return 0, fmt.Errorf("create state tensor: %w", err)
	}
	defer stateTensor.Destroy()
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(s.sampleRate)})
	if err != nil {
		return 0, fmt.Errorf("create sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := s.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs); err != nil {
		return 0, fmt.Errorf("run silero: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	prob, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("unexpected silero output type %T", outputs[0])
	}
	stateN, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("unexpected silero state type %T", outputs[1])
	}
	copy(s.state, stateN.GetData())
	if data := prob.GetData(); len(data) > 0 {
		return data[0], nil
	}
	return 0, nil
}

// Reset clears the recurrent state between unrelated streams.
func (s *Silero) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.state)
	clear(s.context)
}

func (s *Silero) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
