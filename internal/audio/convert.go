package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/rs/zerolog/log"
)

// Converter backends.
const (
	BackendFFmpeg = "ffmpeg"
	BackendNative = "native"
)

// Converter turns an input audio file into a 16 kHz mono 16-bit WAV.
type Converter interface {
	Convert(ctx context.Context, in, out string) error
}

// NewConverter returns the converter for backend.
func NewConverter(backend string) (Converter, error) {
	switch strings.ToLower(backend) {
	case "", BackendFFmpeg:
		return &FFmpegConverter{Binary: "ffmpeg"}, nil
	case BackendNative:
		return &NativeConverter{}, nil
	default:
		return nil, fmt.Errorf("unknown conversion backend %q (want %s or %s)", backend, BackendFFmpeg, BackendNative)
	}
}

// FFmpegConverter shells out to ffmpeg.
type FFmpegConverter struct {
	Binary string
}

// Convert runs ffmpeg -i in -ac 1 -ar 16000 -sample_fmt s16 -y out.
func (c *FFmpegConverter) Convert(ctx context.Context, in, out string) error {
	bin := c.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-i", in,
		"-ac", "1", "-ar", fmt.Sprint(EvalSampleRate), "-sample_fmt", "s16",
		"-y", out,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// NativeConverter decodes FLAC and MP3 in process, downmixes to mono and
// resamples linearly to 16 kHz.
type NativeConverter struct{}

// Convert decodes in according to its extension and writes out.
func (c *NativeConverter) Convert(ctx context.Context, in, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		samples []float32
		rate    int
		err     error
	)
	switch strings.ToLower(filepath.Ext(in)) {
	case ".flac":
		samples, rate, err = decodeFLAC(in)
	case ".mp3":
		samples, rate, err = decodeMP3(in)
	case ".wav":
		var format Format
		samples, format, err = ReadFloat32(in)
		rate = format.SampleRate
	default:
		return fmt.Errorf("native backend cannot decode %s", filepath.Ext(in))
	}
	if err != nil {
		return err
	}
	return WriteFloat32WAV(out, Resample(samples, rate, EvalSampleRate), EvalSampleRate)
}

func decodeFLAC(path string) ([]float32, int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("parse flac %s: %w", path, err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	scale := float32(int64(1) << (stream.Info.BitsPerSample - 1))
	var samples []float32
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("decode flac frame: %w", err)
		}
		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			var sum float32
			for ch := 0; ch < channels; ch++ {
				sum += float32(frame.Subframes[ch].Samples[i]) / scale
			}
			samples = append(samples, sum/float32(channels))
		}
	}
	return samples, int(stream.Info.SampleRate), nil
}

func decodeMP3(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("open mp3 %s: %w", path, err)
	}
	// go-mp3 always yields interleaved stereo 16-bit little-endian frames.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3 %s: %w", path, err)
	}
	return Downmix(Int16ToFloat32(BytesToInt16(raw)), 2), dec.SampleRate(), nil
}

// ConvertSummary counts the outcome of a tree conversion.
type ConvertSummary struct {
	Converted int
	Failed    int
}

// ConvertTree converts every file below inDir whose extension is in exts
// (default ".flac") into outDir, mirroring the relative directory layout and
// replacing the extension with ".wav". Per-file failures are logged and the
// walk continues; only walk errors and cancellation abort.
func ConvertTree(ctx context.Context, conv Converter, inDir, outDir string, exts ...string) (ConvertSummary, error) {
	if len(exts) == 0 {
		exts = []string{".flac"}
	}
	var summary ConvertSummary
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return summary, fmt.Errorf("create output directory: %w", err)
	}

	err := filepath.WalkDir(inDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !hasExt(path, exts) {
			return nil
		}
		rel, err := filepath.Rel(inDir, path)
		if err != nil {
			return err
		}
		out := filepath.Join(outDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".wav")
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}

		log.Info().Str("from", path).Str("to", out).Msg("Converting")
		if err := conv.Convert(ctx, path, out); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error().Err(err).Str("file", path).Msg("Conversion failed")
			summary.Failed++
			return nil
		}
		summary.Converted++
		return nil
	})
	return summary, err
}

func hasExt(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
