// Package config loads bot configuration from the environment, with an
// optional .env file for development convenience.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds everything the bot needs to run.
//
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
//	required: Must be provided (no default)
type Config struct {
	// Bot identities
	SchedulerToken string `env:"SCHEDULER_BOT_TOKEN,required"`
	PlayToken      string `env:"PLAY_BOT_TOKEN,required"`

	// Storage
	DBPath string `env:"DB_PATH" envDefault:"svoyak.db"`

	// Routing identities
	ManagerID  int64 `env:"MANAGER_ID" envDefault:"80788292"`
	DummyID    int64 `env:"DUMMY_ID" envDefault:"412313351"`
	MainChatID int64 `env:"MAIN_CHAT_ID" envDefault:"-1001053502877"`

	// Observability
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9091"`
	NATSURL     string `env:"NATS_URL"` // empty disables event publishing

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from a .env file and environment variables.
// Priority: ENV vars > .env file > defaults.
//
// Optional logger parameter for structured logging. If nil, loading is
// silent until the caller has a logger.
func Load(logger *zerolog.Logger) (*Config, error) {
	// .env file is optional; in production the environment carries
	// everything directly.
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.SchedulerToken == c.PlayToken {
		return fmt.Errorf("SCHEDULER_BOT_TOKEN and PLAY_BOT_TOKEN must be distinct bots")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.ManagerID == 0 {
		return fmt.Errorf("MANAGER_ID must be a real Telegram user id")
	}
	if c.MetricsAddr == "" {
		return fmt.Errorf("METRICS_ADDR is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}
	return nil
}

// LogConfig logs the loaded configuration without leaking tokens.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("db_path", c.DBPath).
		Int64("manager_id", c.ManagerID).
		Int64("dummy_id", c.DummyID).
		Int64("main_chat_id", c.MainChatID).
		Str("metrics_addr", c.MetricsAddr).
		Str("nats_url", c.NATSURL).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Configuration loaded")
}
