package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration. Values come from the environment
// (optionally seeded from a .env file); every field has a default so the
// server runs with no configuration at all.
type Config struct {
	// Listener
	Port         int           `env:"CHAT_PORT" envDefault:"8080"`
	WriteTimeout time.Duration `env:"CHAT_WRITE_TIMEOUT" envDefault:"5s"`

	// Abuse controls
	MaxConnectionsPerSecond int           `env:"CHAT_MAX_CONNECTIONS_PER_SECOND" envDefault:"50"`
	MaxMessagesPerMinute    int           `env:"CHAT_MAX_MESSAGES_PER_MINUTE" envDefault:"60"`
	MaxTotalConnections     int           `env:"CHAT_MAX_TOTAL_CONNECTIONS" envDefault:"1000"`
	ConnectionTimeout       time.Duration `env:"CHAT_CONNECTION_TIMEOUT" envDefault:"300s"`
	HeartbeatInterval       time.Duration `env:"CHAT_HEARTBEAT_INTERVAL" envDefault:"30s"`

	// Message store
	MaxMessagesPerRoom int    `env:"CHAT_MAX_MESSAGES_PER_ROOM" envDefault:"100"`
	MaxFileSizeMB      int    `env:"CHAT_MAX_FILE_SIZE_MB" envDefault:"10"`
	LogDirectory       string `env:"CHAT_LOG_DIRECTORY" envDefault:"./chat_logs"`
	EnablePersistence  bool   `env:"CHAT_ENABLE_PERSISTENCE" envDefault:"true"`

	// Optional surfaces; empty disables them
	OpsAddr string `env:"CHAT_OPS_ADDR" envDefault:""`
	NATSURL string `env:"CHAT_NATS_URL" envDefault:""`

	// Logging
	LogLevel  string `env:"CHAT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CHAT_LOG_FORMAT" envDefault:"pretty"`
}

// Load reads configuration from the environment. A .env file is applied
// first when present; real environment variables win over it.
func Load() (*Config, error) {
	// Missing .env is fine; deployments use plain environment variables.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("CHAT_PORT must be 1-65535, got %d", c.Port)
	}
	if c.MaxConnectionsPerSecond < 1 {
		return fmt.Errorf("CHAT_MAX_CONNECTIONS_PER_SECOND must be > 0, got %d", c.MaxConnectionsPerSecond)
	}
	if c.MaxMessagesPerMinute < 1 {
		return fmt.Errorf("CHAT_MAX_MESSAGES_PER_MINUTE must be > 0, got %d", c.MaxMessagesPerMinute)
	}
	if c.MaxTotalConnections < 1 {
		return fmt.Errorf("CHAT_MAX_TOTAL_CONNECTIONS must be > 0, got %d", c.MaxTotalConnections)
	}
	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("CHAT_CONNECTION_TIMEOUT must be > 0, got %v", c.ConnectionTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("CHAT_WRITE_TIMEOUT must be > 0, got %v", c.WriteTimeout)
	}
	if c.MaxMessagesPerRoom < 1 {
		return fmt.Errorf("CHAT_MAX_MESSAGES_PER_ROOM must be > 0, got %d", c.MaxMessagesPerRoom)
	}
	if c.MaxFileSizeMB < 1 {
		return fmt.Errorf("CHAT_MAX_FILE_SIZE_MB must be > 0, got %d", c.MaxFileSizeMB)
	}
	if c.EnablePersistence && c.LogDirectory == "" {
		return fmt.Errorf("CHAT_LOG_DIRECTORY is required when persistence is enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("CHAT_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("CHAT_LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// MaxFileSizeBytes returns the log rotation threshold in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// LogConfig writes the effective configuration as one structured event.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Int("port", c.Port).
		Dur("write_timeout", c.WriteTimeout).
		Int("max_connections_per_second", c.MaxConnectionsPerSecond).
		Int("max_messages_per_minute", c.MaxMessagesPerMinute).
		Int("max_total_connections", c.MaxTotalConnections).
		Dur("connection_timeout", c.ConnectionTimeout).
		Int("max_messages_per_room", c.MaxMessagesPerRoom).
		Int("max_file_size_mb", c.MaxFileSizeMB).
		Str("log_directory", c.LogDirectory).
		Bool("persistence", c.EnablePersistence).
		Str("ops_addr", c.OpsAddr).
		Str("nats_url", c.NATSURL).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
