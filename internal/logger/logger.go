package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process logger. environment and level come from config;
// an unparsable level falls back to debug.
func New(environment, level string) zerolog.Logger {
	// For Google Cloud Logging, the level field name should be "severity".
	// This allows Cloud Logging to automatically parse the log level.
	zerolog.LevelFieldName = "severity"

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Use ConsoleWriter for local development for more readable logs.
	if environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.DebugLevel
	}
	return logger.Level(lvl)
}
