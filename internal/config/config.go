// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1..65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrModelPathRequired is returned when a model artifact path is empty.
	ErrModelPathRequired = errors.New("config: CNN_MODEL_PATH and MLP_MODEL_PATH are required")
	// ErrInvalidUploadLimit is returned when MAX_UPLOAD_MB is not positive.
	ErrInvalidUploadLimit = errors.New("config: MAX_UPLOAD_MB must be positive")
	// ErrIncompleteS3 is returned when only one of MODEL_S3_BUCKET and S3_REGION is set.
	ErrIncompleteS3 = errors.New("config: MODEL_S3_BUCKET and S3_REGION must be set together")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port        int   `env:"PORT, default=8080" json:"port"`
	MaxUploadMB int64 `env:"MAX_UPLOAD_MB, default=200" json:"max_upload_mb"`

	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins"`

	// Model settings
	CNNModelPath string `env:"CNN_MODEL_PATH, default=models/cnn.msgpack" json:"cnn_model_path"`
	MLPModelPath string `env:"MLP_MODEL_PATH, default=models/mlp.msgpack" json:"mlp_model_path"`
	ModelsStrict bool   `env:"MODELS_STRICT, default=true" json:"models_strict"`

	// Decoding settings
	TempDir        string `env:"TEMP_DIR, default=/tmp/emotion" json:"temp_dir"`
	FFmpegFallback bool   `env:"FFMPEG_FALLBACK, default=false" json:"ffmpeg_fallback"`
	FFmpegPath     string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`

	// Optional S3 artifact store
	S3Bucket           string `env:"MODEL_S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Observability
	MetricsEnabled bool   `env:"METRICS_ENABLED, default=true" json:"metrics_enabled"`
	LogFormat      string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel       string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if model artifacts are served from S3.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks limits and model locations.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.MaxUploadMB <= 0 {
		return ErrInvalidUploadLimit
	}
	if strings.TrimSpace(c.CNNModelPath) == "" || strings.TrimSpace(c.MLPModelPath) == "" {
		return ErrModelPathRequired
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return ErrIncompleteS3
	}
	return nil
}

// NewLogger creates a structured logger writing to stdout.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger with an explicit destination. The CLI logs to
// stderr so stdout stays machine-readable.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, MaxUploadMB: %d, CNNModelPath: %s, MLPModelPath: %s, ModelsStrict: %t, TempDir: %s, FFmpegFallback: %t, FFmpegPath: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, MetricsEnabled: %t, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.MaxUploadMB,
		c.CNNModelPath,
		c.MLPModelPath,
		c.ModelsStrict,
		c.TempDir,
		c.FFmpegFallback,
		c.FFmpegPath,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		c.MetricsEnabled,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
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
