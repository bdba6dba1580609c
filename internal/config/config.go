package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Storage
	DatabasePath string `yaml:"database_path" validate:"required"`
	FilesDir     string `yaml:"files_dir" validate:"required"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// Resource downloads
	FetchTimeout     time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	FetchRetries     int           `yaml:"fetch_retries" validate:"gte=1,lte=10"`
	MaxDownloadBytes int64         `yaml:"max_download_bytes" validate:"gt=0"`
	UserAgent        string        `yaml:"user_agent" validate:"required"`
	BaseURL          string        `yaml:"base_url" validate:"omitempty,url"`

	// Visibility applied to imported nodes in deployment mode
	PublicVisible      bool `yaml:"public_visible"`
	AuthVisible        bool `yaml:"auth_visible"`
	DeploymentMode     bool `yaml:"deployment_mode"`
	RelativeVisibility bool `yaml:"relative_visibility"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DatabasePath:         "pagetree.db",
		FilesDir:             "files",
		LogLevel:             "info",
		FetchTimeout:         30 * time.Second,
		FetchRetries:         3,
		MaxDownloadBytes:     52428800, // 50MB
		UserAgent:            "pagetree-importer/1.0",
		PDFFallbackPdftotext: true,
	}
}

// Load reads the configuration from the environment.
func Load() Config {
	return applyEnv(Default())
}

// LoadFile reads a YAML configuration file and applies environment
// overrides on top of it. Keys missing from the file keep their defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	cfg.DatabasePath = envOr("DATABASE_PATH", cfg.DatabasePath)
	cfg.FilesDir = envOr("FILES_DIR", cfg.FilesDir)
	cfg.LogLevel = strings.ToLower(envOr("LOG_LEVEL", cfg.LogLevel))

	cfg.FetchTimeout = envDuration("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.FetchRetries = envInt("FETCH_RETRIES", cfg.FetchRetries)
	cfg.MaxDownloadBytes = envInt64("MAX_DOWNLOAD_BYTES", cfg.MaxDownloadBytes)
	cfg.UserAgent = envOr("USER_AGENT", cfg.UserAgent)
	cfg.BaseURL = envOr("BASE_URL", cfg.BaseURL)

	cfg.PublicVisible = envBool("PUBLIC_VISIBLE", cfg.PublicVisible)
	cfg.AuthVisible = envBool("AUTH_VISIBLE", cfg.AuthVisible)
	cfg.DeploymentMode = envBool("DEPLOYMENT_MODE", cfg.DeploymentMode)
	cfg.RelativeVisibility = envBool("RELATIVE_VISIBILITY", cfg.RelativeVisibility)

	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.FetchRetries <= 0 {
		cfg.FetchRetries = 3
	}
	if cfg.MaxDownloadBytes <= 0 {
		cfg.MaxDownloadBytes = 52428800
	}
	return cfg
}

var validate = validator.New()

// Validate reports the first invalid setting using the environment
// variable name a user would change.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%s is invalid: failed %q check", envName(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("validate config: %w", err)
}

var envNames = map[string]string{
	"DatabasePath":     "DATABASE_PATH",
	"FilesDir":         "FILES_DIR",
	"LogLevel":         "LOG_LEVEL",
	"FetchTimeout":     "FETCH_TIMEOUT",
	"FetchRetries":     "FETCH_RETRIES",
	"MaxDownloadBytes": "MAX_DOWNLOAD_BYTES",
	"UserAgent":        "USER_AGENT",
	"BaseURL":          "BASE_URL",
}

func envName(field string) string {
	if n, ok := envNames[field]; ok {
		return n
	}
	return field
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
