package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv            string `env:"APP_ENV" default:"development"`
	Port              string `env:"PORT" default:"8080"`
	AppURL            string `env:"APP_URL" default:"http://localhost:8080"`
	AllowedOrigins    string `env:"ALLOWED_ORIGINS"` // comma-separated, in addition to APP_URL
	DatabaseURL       string `env:"DATABASE_URL"`
	RedisURL          string `env:"REDIS_URL"`
	SessionSecret     string `env:"SESSION_SECRET"`
	EventIngestSecret string `env:"EVENT_INGEST_SECRET"`
	LogLevel          string `env:"LOG_LEVEL" default:"info"`
	LogFormat         string `env:"LOG_FORMAT" default:"text"`

	LongPollIdleTimeout   time.Duration `env:"LONGPOLL_IDLE_TIMEOUT" default:"30s"`
	LongPollResumeGrace   time.Duration `env:"LONGPOLL_RESUME_GRACE" default:"60s"`
	WSWriteTimeout        time.Duration `env:"WS_WRITE_TIMEOUT" default:"5s"`
	WSPingInterval        time.Duration `env:"WS_PING_INTERVAL" default:"30s"`
	SettingsLookupTimeout time.Duration `env:"SETTINGS_LOOKUP_TIMEOUT" default:"2s"`
	SessionMaxAge         time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days

	MaxConnectionsPerUser int     `env:"MAX_CONNECTIONS_PER_USER" default:"32"`
	EventRateLimit        float64 `env:"EVENT_RATE_LIMIT" default:"50"`
	EventRateBurst        int     `env:"EVENT_RATE_BURST" default:"100"`
}

// ExtraOrigins lists the browser origins besides APP_URL that may open sockets.
func (c *Config) ExtraOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// IsDevelopment relaxes origin checks and cookie security for local work.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}
	if len(cfg.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters")
	}

	if cfg.EventIngestSecret == "" {
		return errors.New("EVENT_INGEST_SECRET is required")
	}
	if len(cfg.EventIngestSecret) < 16 || len(cfg.EventIngestSecret) > 128 {
		return errors.New("EVENT_INGEST_SECRET must be between 16 and 128 characters")
	}

	positive := map[string]time.Duration{
		"LONGPOLL_IDLE_TIMEOUT":   cfg.LongPollIdleTimeout,
		"LONGPOLL_RESUME_GRACE":   cfg.LongPollResumeGrace,
		"WS_WRITE_TIMEOUT":        cfg.WSWriteTimeout,
		"WS_PING_INTERVAL":        cfg.WSPingInterval,
		"SETTINGS_LOOKUP_TIMEOUT": cfg.SettingsLookupTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.MaxConnectionsPerUser < 1 {
		return errors.New("MAX_CONNECTIONS_PER_USER must be at least 1")
	}
	if cfg.EventRateLimit <= 0 || cfg.EventRateBurst < 1 {
		return errors.New("EVENT_RATE_LIMIT and EVENT_RATE_BURST must be positive")
	}

	return nil
}
