package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConverter struct {
	calls [][2]string
	fail  string
}

func (c *recordingConverter) Convert(_ context.Context, in, out string) error {
	c.calls = append(c.calls, [2]string{in, out})
	if c.fail != "" && strings.HasSuffix(in, c.fail) {
		return errors.New("decoder exploded")
	}
	return os.WriteFile(out, nil, 0o644)
}

func TestConvertTreeMirrorsLayout(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "wav")
	for _, p := range []string{"a/1/x.flac", "a/1/y.FLAC", "a/2/z.flac", "a/2/notes.txt", "bad.flac"} {
		full := filepath.Join(in, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	conv := &recordingConverter{fail: "bad.flac"}
	summary, err := ConvertTree(context.Background(), conv, in, out)
	require.NoError(t, err)
	assert.Equal(t, ConvertSummary{Converted: 3, Failed: 1}, summary)

	assert.FileExists(t, filepath.Join(out, "a", "1", "x.wav"))
	assert.FileExists(t, filepath.Join(out, "a", "1", "y.wav"))
	assert.FileExists(t, filepath.Join(out, "a", "2", "z.wav"))
	assert.NoFileExists(t, filepath.Join(out, "a", "2", "notes.wav"))
}

func TestConvertTreeStopsOnCancel(t *testing.T) {
	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "x.flac"), nil, 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ConvertTree(ctx, &recordingConverter{}, in, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewConverter(t *testing.T) {
	c, err := NewConverter("")
	require.NoError(t, err)
	assert.IsType(t, &FFmpegConverter{}, c)

	c, err = NewConverter("native")
	require.NoError(t, err)
	assert.IsType(t, &NativeConverter{}, c)

	_, err = NewConverter("sox")
	assert.Error(t, err)
}

func TestNativeConverterResamplesWAV(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeTestWAV(t, in, 8000, 2, 16, make([]int, 8000*2))

	out := filepath.Join(dir, "out.wav")
	require.NoError(t, (&NativeConverter{}).Convert(context.Background(), in, out))

	f, err := ValidateEvalWAV(out)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f.Duration.Seconds())
}

func TestNativeConverterUnknownExtension(t *testing.T) {
	err := (&NativeConverter{}).Convert(context.Background(), "clip.ogg", "out.wav")
	assert.Error(t, err)
}
