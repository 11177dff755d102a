// Package realtime runs live microphone transcription: a capture source
// feeds a bounded channel that a single loop drains into an engine.
package realtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"speech-eval-toolkit/internal/audio"
	"speech-eval-toolkit/internal/coreengine/vendoradapters"
	"speech-eval-toolkit/internal/vad"
)

// flushTimeout bounds transcription of the audio still buffered at shutdown.
const flushTimeout = 30 * time.Second

// Source produces blocks of mono 16-bit samples. Stop must close the channel
// returned by Start. *audio.Capture is the production source.
type Source interface {
	Start() (<-chan []int16, error)
	Stop() error
	SampleRate() int
}

// Session owns one live run: its source, console output and transcript file.
type Session struct {
	source     Source
	out        io.Writer
	transcript *os.File
}

// NewSession returns a session printing results to out.
func NewSession(source Source, out io.Writer) *Session {
	return &Session{source: source, out: out}
}

// OpenTranscript creates transcript_<YYYYmmdd_HHMMSS>.txt under dir; final
// results are appended to it one line each.
func (s *Session) OpenTranscript(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcripts dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("transcript_%s.txt", now.Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open transcript: %w", err)
	}
	s.transcript = f
	return path, nil
}

// Close releases the transcript file.
func (s *Session) Close() error {
	if s.transcript == nil {
		return nil
	}
	err := s.transcript.Close()
	s.transcript = nil
	return err
}

// RunStream feeds every block into a streaming recognizer, printing partial
// hypotheses in place and final ones on their own line. On cancellation the
// source is stopped, blocks already queued are still decoded, and the
// recognizer's last result is flushed.
func (s *Session) RunStream(ctx context.Context, engine vendoradapters.StreamingASRAdapter) error {
	stream, err := engine.NewStream(ctx, s.source.SampleRate())
	if err != nil {
		return fmt.Errorf("open recognizer stream: %w", err)
	}
	defer stream.Close()

	accept := func(block []int16) error {
		res, err := stream.Accept(audio.Int16ToBytes(block))
		if err != nil {
			return err
		}
		switch {
		case res.Final && res.Text != "":
			s.final(res.Text)
		case !res.Final && res.Text != "":
			fmt.Fprintf(s.out, "\rPARTIAL: %s", res.Text)
		}
		return nil
	}

	if err := s.consume(ctx, accept); err != nil {
		return err
	}

	text, err := stream.Finish()
	if err != nil {
		return fmt.Errorf("flush recognizer: %w", err)
	}
	if text = strings.TrimSpace(text); text != "" {
		s.final(text)
	}
	return nil
}

// RunUtterances passes blocks through gate and transcribes every completed
// utterance with engine. A failed utterance is logged and the loop goes on.
func (s *Session) RunUtterances(ctx context.Context, gate *vad.Gate, engine vendoradapters.ASRAdapter, language string) error {
	tmpDir, err := os.MkdirTemp("", "speecheval-utterances-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	n := 0
	transcribe := func(ctx context.Context, utt []int16) {
		n++
		path := filepath.Join(tmpDir, fmt.Sprintf("utterance_%04d.wav", n))
		if err := audio.WriteWAV(path, utt, s.source.SampleRate()); err != nil {
			log.Error().Err(err).Msg("Failed to write utterance")
			return
		}
		defer os.Remove(path)

		text, _, err := engine.Recognize(ctx, path, language)
		if err != nil {
			log.Error().Err(err).Int("utterance", n).Msg("Transcription error")
			return
		}
		if text = strings.TrimSpace(text); text != "" {
			s.final(text)
		}
	}

	err = s.consume(ctx, func(block []int16) error {
		utt, err := gate.Push(block)
		if err != nil {
			return err
		}
		if utt != nil {
			log.Debug().Int("samples", len(utt)).Msg("Utterance complete")
			transcribe(ctx, utt)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if rest := gate.Flush(); rest != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		transcribe(flushCtx, rest)
	}
	return nil
}

// consume drains the source until the context ends or the source closes.
// After cancellation the source is stopped and its remaining blocks are
// still handed to fn.
func (s *Session) consume(ctx context.Context, fn func([]int16) error) error {
	blocks, err := s.source.Start()
	if err != nil {
		return fmt.Errorf("start audio source: %w", err)
	}
	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		if err := s.source.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop audio source")
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			stop()
			for block := range blocks {
				if err := fn(block); err != nil {
					return err
				}
			}
			s.reportDrops()
			return nil
		case block, ok := <-blocks:
			if !ok {
				s.reportDrops()
				return nil
			}
			if err := fn(block); err != nil {
				return err
			}
		}
	}
}

func (s *Session) final(text string) {
	fmt.Fprintf(s.out, "\nFINAL: %s\n", text)
	if s.transcript == nil {
		return
	}
	if _, err := fmt.Fprintln(s.transcript, text); err != nil {
		log.Warn().Err(err).Msg("Failed to append to transcript")
	}
}

func (s *Session) reportDrops() {
	if d, ok := s.source.(interface{ Dropped() uint64 }); ok && d.Dropped() > 0 {
		log.Warn().Uint64("blocks", d.Dropped()).Msg("Audio blocks dropped because processing fell behind")
	}
}
