// Package logger configures the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitWithOptions initializes the logger with the specified options.
// If logFile is empty, logs go to stderr so command output on stdout stays
// clean. If pretty is true, uses ConsoleWriter for human-readable output
// (only valid when logFile is empty).
// Log level can be configured via LOG_LEVEL environment variable (trace, debug, info, warn, error, off).
func InitWithOptions(logFile string, pretty bool) (zerolog.Logger, error) {
	return initWithLevel(logFile, pretty, os.Getenv("LOG_LEVEL"), os.Stderr)
}

func initWithLevel(logFile string, pretty bool, levelName string, stderr io.Writer) (zerolog.Logger, error) {
	level := parseLogLevel(levelName)

	var output io.Writer
	switch {
	case logFile != "":
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		output = file
	case pretty:
		output = zerolog.ConsoleWriter{Out: stderr}
	default:
		output = stderr
	}

	log := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	if logFile != "" {
		log.Debug().Str("path", logFile).Str("level", level.String()).Msg("Logger initialized")
	} else {
		log.Debug().Bool("pretty", pretty).Str("level", level.String()).Msg("Logger initialized")
	}
	return log, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
