// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Chat providers.
const (
	ChatProviderOpenAI = "openai"
	ChatProviderGemini = "gemini"
	ChatProviderNone   = "none"
)

// Config holds all application configuration.
type Config struct {
	Port           string `mapstructure:"PORT"`
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	FrontendURL    string `mapstructure:"FRONTEND_URL"`
	// DatabaseURL is a SQLite file path or a postgres:// DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	SessionIdleTimeout time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
	SweepInterval      time.Duration `mapstructure:"SWEEP_INTERVAL"`
	RecentTurns        int           `mapstructure:"RECENT_TURNS"`
	MaxMessageLength   int           `mapstructure:"MAX_MESSAGE_LENGTH"`
	MaxImageBytes      int           `mapstructure:"MAX_IMAGE_BYTES"`
	RateLimitPerMinute int           `mapstructure:"RATE_LIMIT_PER_MINUTE"`

	Vision    VisionConfig    `mapstructure:",squash"`
	Chat      ChatConfig      `mapstructure:",squash"`
	Lookup    LookupConfig    `mapstructure:",squash"`
	Telemetry TelemetryConfig `mapstructure:",squash"`
}

// VisionConfig controls the image analysis provider chain.
type VisionConfig struct {
	MaxWorkers     int           `mapstructure:"MAX_IMAGE_WORKERS"`
	ProbeTimeout   time.Duration `mapstructure:"PROBE_TIMEOUT"`
	ConnectTimeout time.Duration `mapstructure:"CONNECT_TIMEOUT"`
	ReadTimeout    time.Duration `mapstructure:"READ_TIMEOUT"`
	VQAEnabled     bool          `mapstructure:"VQA_ENABLED"`
	VQAURL         string        `mapstructure:"VQA_URL"`
	HFToken        string        `mapstructure:"HF_API_TOKEN"`
	HFModelURL     string        `mapstructure:"HF_MODEL_URL"`
}

// ChatConfig selects and configures the conversational provider.
type ChatConfig struct {
	Provider     string        `mapstructure:"CHAT_PROVIDER"`
	APIURL       string        `mapstructure:"CHAT_API_URL"`
	APIKey       string        `mapstructure:"CHAT_API_KEY"`
	Model        string        `mapstructure:"CHAT_MODEL"`
	Timeout      time.Duration `mapstructure:"CHAT_TIMEOUT"`
	GeminiAPIKey string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel  string        `mapstructure:"GEMINI_MODEL"`
}

// LookupConfig controls the nearby-clinic lookup.
type LookupConfig struct {
	NominatimEnabled bool    `mapstructure:"NOMINATIM_ENABLED"`
	NominatimURL     string  `mapstructure:"NOMINATIM_URL"`
	RadiusKm         float64 `mapstructure:"LOOKUP_RADIUS_KM"`
}

// TelemetryConfig points the OTLP exporters at a collector. Empty disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

var defaults = map[string]any{
	"PORT":                        "8080",
	"GRPC_HEALTH_ADDR":            ":9090",
	"FRONTEND_URL":                "",
	"DATABASE_URL":                "./data/vetcheck.db",
	"LOG_LEVEL":                   "info",
	"SESSION_IDLE_TIMEOUT":        "30m",
	"SWEEP_INTERVAL":              "1h",
	"RECENT_TURNS":                5,
	"MAX_MESSAGE_LENGTH":          2000,
	"MAX_IMAGE_BYTES":             5 << 20,
	"RATE_LIMIT_PER_MINUTE":       20,
	"MAX_IMAGE_WORKERS":           5,
	"PROBE_TIMEOUT":               "5s",
	"CONNECT_TIMEOUT":             "10s",
	"READ_TIMEOUT":                "25s",
	"VQA_ENABLED":                 true,
	"VQA_URL":                     "http://127.0.0.1:5000",
	"HF_API_TOKEN":                "",
	"HF_MODEL_URL":                "https://api-inference.huggingface.co/models/microsoft/resnet-50",
	"CHAT_PROVIDER":               ChatProviderNone,
	"CHAT_API_URL":                "https://api.openai.com/v1/chat/completions",
	"CHAT_API_KEY":                "",
	"CHAT_MODEL":                  "gpt-4o-mini",
	"CHAT_TIMEOUT":                "30s",
	"GEMINI_API_KEY":              "",
	"GEMINI_MODEL":                "gemini-2.5-flash",
	"NOMINATIM_ENABLED":           false,
	"NOMINATIM_URL":               "https://nominatim.openstreetmap.org",
	"LOOKUP_RADIUS_KM":            50.0,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": false,
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	cfg.Chat.Provider = strings.ToLower(strings.TrimSpace(cfg.Chat.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL cannot be empty"))
	}
	positiveDurations := map[string]time.Duration{
		"SESSION_IDLE_TIMEOUT": c.SessionIdleTimeout,
		"SWEEP_INTERVAL":       c.SweepInterval,
		"PROBE_TIMEOUT":        c.Vision.ProbeTimeout,
		"CONNECT_TIMEOUT":      c.Vision.ConnectTimeout,
		"READ_TIMEOUT":         c.Vision.ReadTimeout,
		"CHAT_TIMEOUT":         c.Chat.Timeout,
	}
	for name, d := range positiveDurations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", name))
		}
	}
	positiveInts := map[string]int{
		"RECENT_TURNS":       c.RecentTurns,
		"MAX_MESSAGE_LENGTH": c.MaxMessageLength,
		"MAX_IMAGE_BYTES":    c.MaxImageBytes,
		"MAX_IMAGE_WORKERS":  c.Vision.MaxWorkers,
	}
	for name, n := range positiveInts {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", name))
		}
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be >= 0"))
	}
	if c.Lookup.RadiusKm <= 0 {
		errs = append(errs, errors.New("LOOKUP_RADIUS_KM must be > 0"))
	}
	switch c.Chat.Provider {
	case ChatProviderNone, "":
	case ChatProviderOpenAI:
		if c.Chat.APIURL == "" {
			errs = append(errs, errors.New("CHAT_API_URL is required for CHAT_PROVIDER=openai"))
		}
	case ChatProviderGemini:
		if c.Chat.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for CHAT_PROVIDER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CHAT_PROVIDER %q", c.Chat.Provider))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// UsesPostgres reports whether DatabaseURL is a Postgres DSN.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}
