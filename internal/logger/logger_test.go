package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewUsesConfiguredLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, New("production", "warn").GetLevel())
	assert.Equal(t, zerolog.ErrorLevel, New("development", "error").GetLevel())
}

func TestNewFallsBackToDebug(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, New("production", "").GetLevel())
	assert.Equal(t, zerolog.DebugLevel, New("production", "loud").GetLevel())
}
