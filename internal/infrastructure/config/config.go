package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	LangSmith LangSmithConfig
	Governor  GovernorConfig
	Features  FeaturesConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LangSmithConfig holds the remote trace store settings.
// APIKey and Project are checked when a query is made, not at load time.
type LangSmithConfig struct {
	APIKey   string `envconfig:"LANGSMITH_API_KEY"`
	Project  string `envconfig:"LANGSMITH_PROJECT"`
	Endpoint string `envconfig:"LANGSMITH_ENDPOINT" default:"https://api.smith.langchain.com/api/v1"`
	PageSize int    `envconfig:"LANGSMITH_PAGE_SIZE" default:"100"`
}

// GovernorConfig holds cache, throttle and retry settings for outbound calls.
type GovernorConfig struct {
	CacheTTL       time.Duration `envconfig:"GOVERNOR_CACHE_TTL" default:"30s"`
	Spacing        time.Duration `envconfig:"GOVERNOR_SPACING" default:"200ms"`
	InitialBackoff time.Duration `envconfig:"GOVERNOR_INITIAL_BACKOFF" default:"1s"`
	MaxBackoff     time.Duration `envconfig:"GOVERNOR_MAX_BACKOFF" default:"30s"`
	MaxRetries     int           `envconfig:"GOVERNOR_MAX_RETRIES" default:"3"`
	Timeout        time.Duration `envconfig:"GOVERNOR_TIMEOUT" default:"30s"`
}

// FeaturesConfig points at optional feature registry files.
type FeaturesConfig struct {
	Path string `envconfig:"FEATURES_PATH"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		LangSmith: LangSmithConfig{
			Endpoint: "https://api.smith.langchain.com/api/v1",
			PageSize: 100,
		},
		Governor: GovernorConfig{
			CacheTTL:       30 * time.Second,
			Spacing:        200 * time.Millisecond,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			MaxRetries:     3,
			Timeout:        30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}
