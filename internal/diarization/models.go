package diarization

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultHubURL is the Hugging Face model hub.
const DefaultHubURL = "https://huggingface.co"

// TokenEnv holds the model hub access token.
const TokenEnv = "HUGGING_FACE_HUB_TOKEN"

// ErrMissingToken is returned before any download when no hub token is set.
var ErrMissingToken = errors.New(TokenEnv + " is not set")

// ModelFile is one file in a hub repository.
type ModelFile struct {
	Repo string
	Path string
}

// LocalName is the file name the model is stored under.
func (m ModelFile) LocalName() string {
	return strings.ReplaceAll(m.Repo, "/", "--") + "--" + filepath.Base(m.Path)
}

// DefaultModels are the segmentation and embedding models NewSherpaDiarizer
// expects, in that order.
var DefaultModels = []ModelFile{
	{Repo: "csukuangfj/sherpa-onnx-pyannote-segmentation-3-0", Path: "model.onnx"},
	{Repo: "csukuangfj/speaker-embedding-models", Path: "3dspeaker_speech_eres2net_base_sv_zh-cn_3dspeaker_16k.onnx"},
}

// FetchModels downloads files into dir and returns their local paths in the
// order given. Files already present are kept.
func FetchModels(ctx context.Context, client *http.Client, hubURL, token, dir string, files []ModelFile) ([]string, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if client == nil {
		client = http.DefaultClient
	}
	if hubURL == "" {
		hubURL = DefaultHubURL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}

	paths := make([]string, 0, len(files))
	for _, m := range files {
		dest := filepath.Join(dir, m.LocalName())
		paths = append(paths, dest)
		if _, err := os.Stat(dest); err == nil {
			log.Debug().Str("file", dest).Msg("Model already present")
			continue
		}
		url := fmt.Sprintf("%s/%s/resolve/main/%s", strings.TrimRight(hubURL, "/"), m.Repo, m.Path)
		if err := download(ctx, client, url, token, dest); err != nil {
			return nil, err
		}
		log.Info().Str("repo", m.Repo).Str("file", dest).Msg("Model downloaded")
	}
	return paths, nil
}

func download(ctx context.Context, client *http.Client, url, token, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
