// Package config loads speecheval settings from an optional YAML file, a
// .env file and SPEECHEVAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"speech-eval-toolkit/internal/auth"
	"speech-eval-toolkit/internal/coreengine/vendoradapters"
	"speech-eval-toolkit/internal/diarization"
	"speech-eval-toolkit/internal/objectstore"
	"speech-eval-toolkit/internal/summarizer"
	"speech-eval-toolkit/internal/vad"
)

// EnvPrefix prefixes every environment override, e.g. SPEECHEVAL_ENGINE_MODEL.
const EnvPrefix = "SPEECHEVAL"

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

type ServerConfig struct {
	Addr       string         `mapstructure:"addr"`
	ResultsDir string         `mapstructure:"results_dir"`
	DatasetCSV string         `mapstructure:"dataset_csv"`
	SessionTTL time.Duration  `mapstructure:"session_ttl"`
	Admin      auth.AdminUser `mapstructure:"admin"`
}

type DiarizationConfig struct {
	diarization.SherpaConfig `mapstructure:",squash"`
	ModelDir                 string `mapstructure:"model_dir"`
	HubURL                   string `mapstructure:"hub_url"`
	HubToken                 string `mapstructure:"hub_token"`
	OutputDir                string `mapstructure:"output_dir"`
}

type VADConfig struct {
	Backend         string           `mapstructure:"backend"` // energy or silero
	EnergyThreshold float64          `mapstructure:"energy_threshold"`
	SilenceBlocks   int              `mapstructure:"silence_blocks"`
	Silero          vad.SileroConfig `mapstructure:"silero"`
}

type CaptureConfig struct {
	SampleRate    int    `mapstructure:"sample_rate"`
	BlockSize     int    `mapstructure:"block_size"`
	Device        int    `mapstructure:"device"`
	Buffer        int    `mapstructure:"buffer"`
	TranscriptDir string `mapstructure:"transcript_dir"`
}

// Config is the full set of settings.
type Config struct {
	Log         LogConfig             `mapstructure:"log"`
	Engine      vendoradapters.Config `mapstructure:"engine"`
	Database    DatabaseConfig        `mapstructure:"database"`
	Storage     objectstore.Config    `mapstructure:"storage"`
	Server      ServerConfig          `mapstructure:"server"`
	Summarizer  summarizer.Config     `mapstructure:"summarizer"`
	Diarization DiarizationConfig     `mapstructure:"diarization"`
	VAD         VADConfig             `mapstructure:"vad"`
	Capture     CaptureConfig         `mapstructure:"capture"`
}

// SetDefaults registers every key so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("engine.engine", vendoradapters.EngineWhisperAPI)
	v.SetDefault("engine.model", "")
	v.SetDefault("engine.language", "en")
	v.SetDefault("engine.api_key", "")
	v.SetDefault("engine.api_secret", "")
	v.SetDefault("engine.endpoint", "")
	v.SetDefault("engine.region", "")
	v.SetDefault("engine.credentials_file", "")
	v.SetDefault("engine.threads", 4)
	v.SetDefault("engine.timeout", 2*time.Minute)
	v.SetDefault("engine.mock_text", "")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrate", true)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.bucket", "speecheval")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.prefix", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.results_dir", "results")
	v.SetDefault("server.dataset_csv", "")
	v.SetDefault("server.session_ttl", time.Hour)
	v.SetDefault("server.admin.username", "")
	v.SetDefault("server.admin.password", "")

	v.SetDefault("summarizer.backend", summarizer.BackendOpenAI)
	v.SetDefault("summarizer.model", "")
	v.SetDefault("summarizer.api_key", "")
	v.SetDefault("summarizer.endpoint", "")
	v.SetDefault("summarizer.max_runes", 4096)
	v.SetDefault("summarizer.max_tokens", 150)
	v.SetDefault("summarizer.timeout", time.Minute)

	v.SetDefault("diarization.segmentation_model", "")
	v.SetDefault("diarization.embedding_model", "")
	v.SetDefault("diarization.num_threads", 4)
	v.SetDefault("diarization.num_speakers", 0)
	v.SetDefault("diarization.clustering_threshold", 0.5)
	v.SetDefault("diarization.min_duration_on", 0.3)
	v.SetDefault("diarization.min_duration_off", 0.5)
	v.SetDefault("diarization.model_dir", "models")
	v.SetDefault("diarization.hub_url", diarization.DefaultHubURL)
	v.SetDefault("diarization.hub_token", "")
	v.SetDefault("diarization.output_dir", ".")

	v.SetDefault("vad.backend", "energy")
	v.SetDefault("vad.energy_threshold", vad.DefaultEnergyThreshold)
	v.SetDefault("vad.silence_blocks", vad.DefaultSilenceBlocks)
	v.SetDefault("vad.silero.model_path", "silero_vad.onnx")
	v.SetDefault("vad.silero.sample_rate", 16000)
	v.SetDefault("vad.silero.threshold", 0.5)

	v.SetDefault("capture.sample_rate", 16000)
	v.SetDefault("capture.block_size", 8000)
	v.SetDefault("capture.device", -1)
	v.SetDefault("capture.buffer", 64)
	v.SetDefault("capture.transcript_dir", "transcripts")
}

// wellKnownEnv maps keys to the provider-specific variables users already
// have set. SPEECHEVAL_* still wins.
var wellKnownEnv = map[string]string{
	"storage.endpoint":          "MINIO_ENDPOINT",
	"storage.access_key_id":     "MINIO_ACCESS_KEY_ID",
	"storage.secret_access_key": "MINIO_SECRET_ACCESS_KEY",
	"storage.bucket":            "MINIO_BUCKET_NAME",
	"storage.use_ssl":           "MINIO_USE_SSL",
	"database.dsn":              "DATABASE_URL",
	"server.admin.username":     "ADMIN_USERNAME",
	"server.admin.password":     "ADMIN_PASSWORD",
	"diarization.hub_token":     diarization.TokenEnv,
}

// Load reads .env (when present), then the config file, then the
// environment. An empty cfgFile searches for speecheval.yaml in the working
// directory and $HOME/.config/speecheval.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range wellKnownEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, err
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("speecheval")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "speecheval"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
