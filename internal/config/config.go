// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrS3RegionRequired is returned when an S3 bucket is configured
	// without a region.
	ErrS3RegionRequired = errors.New("config: VIDSHEET_S3_REGION is required when VIDSHEET_S3_BUCKET is set")
	// ErrInvalidTimeout is returned when a timeout is negative.
	ErrInvalidTimeout = errors.New("config: timeouts must not be negative")
)

// Config holds all configuration for the application. Command-line flags
// cover per-run options (grid shape, focus, backend); the environment covers
// the machine-level concerns below.
type Config struct {
	// External tool paths. Empty values resolve via PATH.
	MPVPath       string `env:"VIDSHEET_MPV_PATH, default=mpv" json:"mpv_path"`
	MPlayerPath   string `env:"VIDSHEET_MPLAYER_PATH, default=mplayer" json:"mplayer_path"`
	MIdentifyPath string `env:"VIDSHEET_MIDENTIFY_PATH, default=midentify" json:"midentify_path"`
	ConvertPath   string `env:"VIDSHEET_CONVERT_PATH, default=convert" json:"convert_path"`
	MontagePath   string `env:"VIDSHEET_MONTAGE_PATH, default=montage" json:"montage_path"`

	// MPVExtraArgs is appended to the engine command line, tokenized
	// shell-style.
	MPVExtraArgs string `env:"VIDSHEET_MPV_EXTRA_ARGS" json:"mpv_extra_args,omitempty"`

	// Storage settings
	TempDir string `env:"VIDSHEET_TEMP_DIR" json:"temp_dir,omitempty"`

	// Timeouts
	LoadTimeout    time.Duration `env:"VIDSHEET_LOAD_TIMEOUT, default=30s" json:"load_timeout"`
	CaptureTimeout time.Duration `env:"VIDSHEET_CAPTURE_TIMEOUT, default=30s" json:"capture_timeout"`

	// Optional S3 settings
	S3Bucket           string `env:"VIDSHEET_S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"VIDSHEET_S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"VIDSHEET_S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3KeyPrefix        string `env:"VIDSHEET_S3_KEY_PREFIX" json:"s3_key_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"VIDSHEET_LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"VIDSHEET_LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 publishing is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks the cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	if c.LoadTimeout < 0 || c.CaptureTimeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{MPVPath: %s, MPlayerPath: %s, ConvertPath: %s, MontagePath: %s, TempDir: %s, LoadTimeout: %s, CaptureTimeout: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.MPVPath,
		c.MPlayerPath,
		c.ConvertPath,
		c.MontagePath,
		c.TempDir,
		c.LoadTimeout,
		c.CaptureTimeout,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
