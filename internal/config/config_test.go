package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 50, cfg.MaxConnectionsPerSecond)
	assert.Equal(t, 60, cfg.MaxMessagesPerMinute)
	assert.Equal(t, 1000, cfg.MaxTotalConnections)
	assert.Equal(t, 300*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, 100, cfg.MaxMessagesPerRoom)
	assert.Equal(t, 10, cfg.MaxFileSizeMB)
	assert.Equal(t, "./chat_logs", cfg.LogDirectory)
	assert.True(t, cfg.EnablePersistence)
	assert.Empty(t, cfg.OpsAddr)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CHAT_PORT", "9000")
	t.Setenv("CHAT_MAX_MESSAGES_PER_MINUTE", "5")
	t.Setenv("CHAT_CONNECTION_TIMEOUT", "45s")
	t.Setenv("CHAT_ENABLE_PERSISTENCE", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 5, cfg.MaxMessagesPerMinute)
	assert.Equal(t, 45*time.Second, cfg.ConnectionTimeout)
	assert.False(t, cfg.EnablePersistence)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"zero connection rate", func(c *Config) { c.MaxConnectionsPerSecond = 0 }},
		{"zero message rate", func(c *Config) { c.MaxMessagesPerMinute = 0 }},
		{"zero connection cap", func(c *Config) { c.MaxTotalConnections = 0 }},
		{"zero timeout", func(c *Config) { c.ConnectionTimeout = 0 }},
		{"zero room cap", func(c *Config) { c.MaxMessagesPerRoom = 0 }},
		{"zero file size", func(c *Config) { c.MaxFileSizeMB = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"persistence without directory", func(c *Config) { c.LogDirectory = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMaxFileSizeBytes(t *testing.T) {
	cfg := &Config{MaxFileSizeMB: 10}
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileSizeBytes())
}

func TestLogConfigDumpsEveryKnob(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	var buf bytes.Buffer
	cfg.LogConfig(zerolog.New(&buf))

	out := buf.String()
	assert.Contains(t, out, `"port":8080`)
	assert.Contains(t, out, `"max_messages_per_minute":60`)
	assert.Contains(t, out, `"log_directory":"./chat_logs"`)
	assert.Contains(t, out, "configuration loaded")
}
