package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Setup configures the root zerolog logger and returns it. All components
// derive their own sub-logger via With().Str("component", ...).
func Setup(level string, console bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
