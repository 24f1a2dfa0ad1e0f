package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewAppliesLevel(t *testing.T) {
	logger := New("warn", "json")
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestNewFallsBackToInfo(t *testing.T) {
	logger := New("nonsense", "json")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
