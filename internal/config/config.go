package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port    string `envconfig:"PORT" default:"8000"`
	AppName string `envconfig:"APP_NAME" default:"calculator"`
	DataDir string `envconfig:"DATA_DIR" default:"data"`
	GinMode string `envconfig:"GIN_MODE" default:"release"`
	// CORSOrigins is comma separated; empty allows any origin.
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`

	OllamaHost         string        `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	OllamaTimeout      time.Duration `envconfig:"OLLAMA_TIMEOUT" default:"60s"`
	OllamaPullTimeout  time.Duration `envconfig:"OLLAMA_PULL_TIMEOUT" default:"300s"`
	OllamaProbeTimeout time.Duration `envconfig:"OLLAMA_PROBE_TIMEOUT" default:"5s"`

	OpenAIKey     string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	Log
}

type Log struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	File       string `envconfig:"LOG_FILE"`
	MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	MaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"28"`
	Compress   bool   `envconfig:"LOG_COMPRESS" default:"true"`
}

// FromEnv reads the process configuration, loading a .env file first when
// one exists in the working directory.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return c, nil
}

// ConfigFile is the per-app configuration document path.
func (c Config) ConfigFile(app string) string {
	return filepath.Join(c.DataDir, app+"_config.json")
}

// PromptsFile is the per-app prompt library path.
func (c Config) PromptsFile(app string) string {
	return filepath.Join(c.DataDir, app+"_prompts.json")
}
