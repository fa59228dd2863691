// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrGeminiAPIKeyRequired is returned when GEMINI_API_KEY is not set.
	ErrGeminiAPIKeyRequired = errors.New("config: GEMINI_API_KEY is required")
	// ErrInvalidAmount is returned when a credit amount is not a non-negative integer.
	ErrInvalidAmount = errors.New("config: invalid credit amount")
	// ErrInvalidPollInterval is returned when POLL_INTERVAL is not positive.
	ErrInvalidPollInterval = errors.New("config: POLL_INTERVAL must be positive")
)

// Amount is a non-negative arbitrary-precision credit amount.
type Amount struct {
	v *big.Int
}

// EnvDecode implements envconfig.Decoder.
func (a *Amount) EnvDecode(val string) error {
	n, ok := new(big.Int).SetString(strings.TrimSpace(val), 10)
	if !ok || n.Sign() < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, val)
	}
	a.v = n
	return nil
}

// Int returns a copy of the amount, zero when unset.
func (a Amount) Int() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

// String returns the decimal form of the amount.
func (a Amount) String() string {
	return a.Int().String()
}

// NewAmount builds an Amount from an int64.
func NewAmount(n int64) Amount {
	return Amount{v: big.NewInt(n)}
}

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port            int           `env:"PORT, default=8080" json:"port"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=30s" json:"shutdown_timeout"`

	// Gemini settings
	GeminiAPIKey       string        `env:"GEMINI_API_KEY, required" json:"-"` // Masked in JSON
	GeminiBaseURL      string        `env:"GEMINI_BASE_URL, default=https://generativelanguage.googleapis.com/v1beta" json:"gemini_base_url"`
	TextModel          string        `env:"TEXT_MODEL, default=gemini-2.5-flash" json:"text_model"`
	VideoModel         string        `env:"VIDEO_MODEL, default=veo-2.0-generate-001" json:"video_model"`
	HTTPTimeout        time.Duration `env:"HTTP_TIMEOUT, default=5m" json:"http_timeout"`
	BreakerMaxFailures uint32        `env:"GEMINI_BREAKER_FAILURES, default=5" json:"gemini_breaker_failures"`
	BreakerOpenTimeout time.Duration `env:"GEMINI_BREAKER_TIMEOUT, default=30s" json:"gemini_breaker_timeout"`

	// Credit settings
	TextCost       Amount `env:"TEXT_COST, default=100" json:"-"`
	VideoCost      Amount `env:"VIDEO_COST, default=10000" json:"-"`
	InitialBalance Amount `env:"INITIAL_BALANCE, default=20000" json:"-"`

	// Video polling settings
	PollInterval    time.Duration `env:"POLL_INTERVAL, default=10s" json:"poll_interval"`
	MaxPollDuration time.Duration `env:"MAX_POLL_DURATION, default=15m" json:"max_poll_duration"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/flowcredits" json:"temp_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	return load(envconfig.OsLookuper())
}

func load(l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "GEMINI_API_KEY") {
			return nil, ErrGeminiAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return ErrGeminiAPIKeyRequired
	}
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stdout)
}

func (c *Config) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, GeminiBaseURL: %s, TextModel: %s, VideoModel: %s, TextCost: %s, VideoCost: %s, InitialBalance: %s, PollInterval: %s, MaxPollDuration: %s, TempDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.GeminiBaseURL,
		c.TextModel,
		c.VideoModel,
		c.TextCost,
		c.VideoCost,
		c.InitialBalance,
		c.PollInterval,
		c.MaxPollDuration,
		c.TempDir,
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
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
