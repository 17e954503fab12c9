// Package config loads backend configuration from a YAML file with
// environment overrides. A .env file in the working directory is honored for
// local development.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	GenAI      GenAIConfig      `yaml:"genai"`
	YouTube    YouTubeConfig    `yaml:"youtube"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

type GenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type YouTubeConfig struct {
	APIKey string `yaml:"api_key"`
}

type TranscriptConfig struct {
	TTLMinutes           int `yaml:"ttl_minutes"`
	MaxFetchesPerMinute  int `yaml:"max_fetches_per_minute"`
	SnippetWindowSeconds int `yaml:"snippet_window_seconds"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		GenAI: GenAIConfig{
			Model: "gemini-2.0-flash",
		},
		Transcript: TranscriptConfig{
			TTLMinutes:           60,
			MaxFetchesPerMinute:  10,
			SnippetWindowSeconds: 20,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "vidtalk-data"
		}
	}
	return filepath.Join(dir, "vidtalk")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "vidtalk", "config.yaml")
}

// Load reads configuration in precedence order: built-in defaults, the YAML
// config file, then VIDTALK_* environment variables. The Gemini API key is
// required; everything else has a usable default.
func Load() (Config, error) {
	return loadFrom(configFilePath())
}

func loadFrom(path string) (Config, error) {
	// Missing .env is the common case outside development.
	_ = godotenv.Load()

	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if cfg.GenAI.APIKey == "" {
		return Config{}, errors.New("missing required config: Gemini API key. Set genai.api_key in the config file or the VIDTALK_GEMINI_API_KEY environment variable")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Token, "VIDTALK_TOKEN")
	setString(&cfg.GenAI.APIKey, "VIDTALK_GEMINI_API_KEY", "GEMINI_API_KEY")
	setString(&cfg.GenAI.Model, "VIDTALK_GENAI_MODEL")
	setString(&cfg.YouTube.APIKey, "VIDTALK_YOUTUBE_API_KEY", "YOUTUBE_API_KEY")
	setString(&cfg.Storage.DataDir, "VIDTALK_DATA_DIR")
	setString(&cfg.Log.Level, "VIDTALK_LOG_LEVEL")
	setInt(&cfg.Server.Port, "VIDTALK_PORT")
	setInt(&cfg.Transcript.TTLMinutes, "VIDTALK_TRANSCRIPT_TTL_MINUTES")
	setInt(&cfg.Transcript.MaxFetchesPerMinute, "VIDTALK_TRANSCRIPT_MAX_FETCHES_PER_MINUTE")
	setInt(&cfg.Transcript.SnippetWindowSeconds, "VIDTALK_SNIPPET_WINDOW_SECONDS")
}

func setString(dst *string, envs ...string) {
	for _, env := range envs {
		if v := os.Getenv(env); v != "" {
			*dst = v
			return
		}
	}
}

func setInt(dst *int, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		fmt.Fprintf(os.Stderr, "[WARN] ignoring %s=%q: not a positive integer\n", env, v)
		return
	}
	*dst = n
}

// LogLevel maps the configured level name onto slog's scale. Unknown names
// fall back to info.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
