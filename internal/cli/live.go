package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"speech-eval-toolkit/internal/audio"
	"speech-eval-toolkit/internal/coreengine/vendoradapters"
	"speech-eval-toolkit/internal/realtime"
	"speech-eval-toolkit/internal/vad"
)

func addCaptureFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("device", -1, "capture device index, -1 for the system default")
	f.Int("samplerate", audio.EvalSampleRate, "capture sample rate in Hz")
	f.Int("blocksize", 8000, "frames per captured block")
	bindFlag(cmd, "device", "capture.device")
	bindFlag(cmd, "samplerate", "capture.sample_rate")
	bindFlag(cmd, "blocksize", "capture.block_size")
}

func (a *app) captureConfig() audio.CaptureConfig {
	c := a.cfg.Capture
	return audio.CaptureConfig{SampleRate: c.SampleRate, BlockSize: c.BlockSize, Device: c.Device, Buffer: c.Buffer}
}

func printDevices(w io.Writer) error {
	devices, err := audio.ListCaptureDevices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %2d  %s\n", marker, d.Index, d.Name)
	}
	return nil
}

// startSession opens the microphone and the timestamped transcript file.
func (a *app) startSession(w io.Writer) (*realtime.Session, error) {
	capture, err := audio.NewCapture(a.captureConfig())
	if err != nil {
		return nil, err
	}
	session := realtime.NewSession(capture, w)
	path, err := session.OpenTranscript(a.cfg.Capture.TranscriptDir, time.Now())
	if err != nil {
		return nil, err
	}
	log.Info().Str("transcript", path).Int("sample_rate", capture.SampleRate()).Msg("Listening, press Ctrl+C to stop")
	return session, nil
}

func newRealtimeCommand(a *app) *cobra.Command {
	var listDevices bool
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Transcribe the microphone live with a streaming engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if listDevices {
				return printDevices(w)
			}
			cfg := a.cfg.Engine
			if !cmd.Flags().Changed("engine") && !isStreamingEngine(cfg.Engine) {
				log.Info().Str("configured", cfg.Engine).Str("engine", vendoradapters.EngineVoskServer).Msg("Configured engine cannot stream, using vosk server")
				cfg.Engine = vendoradapters.EngineVoskServer
			}
			engine, err := vendoradapters.NewStreamingAdapter(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer vendoradapters.Close(engine)

			session, err := a.startSession(w)
			if err != nil {
				return err
			}
			defer session.Close()
			return ignoreCanceled(session.RunStream(cmd.Context(), engine))
		},
	}
	cmd.Flags().BoolVar(&listDevices, "list-devices", false, "list capture devices and exit")
	addCaptureFlags(cmd)
	addEngineFlags(cmd)
	return cmd
}

func isStreamingEngine(engine string) bool {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case vendoradapters.EngineVosk, vendoradapters.EngineVoskServer, vendoradapters.EngineMock:
		return true
	}
	return false
}

func newListenCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Transcribe the microphone one utterance at a time behind a voice activity gate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			detector, closeDetector, err := a.newDetector()
			if err != nil {
				return err
			}
			defer closeDetector()

			ctx := cmd.Context()
			adapter, err := a.newAdapter(ctx)
			if err != nil {
				return err
			}
			defer vendoradapters.Close(adapter)

			session, err := a.startSession(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer session.Close()
			gate := vad.NewGate(detector, a.cfg.VAD.SilenceBlocks)
			return ignoreCanceled(session.RunUtterances(ctx, gate, adapter, a.cfg.Engine.Language))
		},
	}
	f := cmd.Flags()
	f.String("vad", "energy", "voice activity detector: energy or silero")
	f.Int("silence-blocks", vad.DefaultSilenceBlocks, "silent blocks that end an utterance")
	f.Float64("threshold", vad.DefaultEnergyThreshold, "RMS threshold of the energy detector")
	bindFlag(cmd, "vad", "vad.backend")
	bindFlag(cmd, "silence-blocks", "vad.silence_blocks")
	bindFlag(cmd, "threshold", "vad.energy_threshold")
	addCaptureFlags(cmd)
	addEngineFlags(cmd)
	return cmd
}

func (a *app) newDetector() (vad.Detector, func(), error) {
	switch backend := strings.ToLower(a.cfg.VAD.Backend); backend {
	case "", "energy":
		return vad.Energy{Threshold: a.cfg.VAD.EnergyThreshold}, func() {}, nil
	case "silero":
		cfg := a.cfg.VAD.Silero
		cfg.SampleRate = a.cfg.Capture.SampleRate
		s, err := vad.NewSilero(cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, usageError{fmt.Errorf("unknown vad backend %q, want energy or silero", backend)}
	}
}

func newRecordCommand(a *app) *cobra.Command {
	var output string
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the microphone to a WAV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if duration <= 0 {
				return usageError{fmt.Errorf("--duration must be positive, got %s", duration)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recording for %s...\n", duration)
			got, err := audio.Record(cmd.Context(), a.captureConfig(), duration, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s of audio to %s\n", got.Round(time.Millisecond), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "output.wav", "WAV file to write")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long to record")
	addCaptureFlags(cmd)
	return cmd
}

// ignoreCanceled treats an interrupt as a normal end of a live session.
func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
