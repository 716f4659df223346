package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Options controls where and how claw writes its logs.
type Options struct {
	// File is the log file path. Empty means stdout.
	File string
	// Pretty selects zerolog's ConsoleWriter. Only valid when File is empty.
	Pretty bool
	// Level overrides LOG_LEVEL when non-empty.
	Level string
}

// New builds the process logger. Log level comes from opts.Level or the
// LOG_LEVEL environment variable (trace, debug, info, warn, error).
func New(opts Options) (zerolog.Logger, error) {
	if opts.File != "" && opts.Pretty {
		return zerolog.Logger{}, fmt.Errorf("log file and pretty output are mutually exclusive")
	}

	levelName := opts.Level
	if levelName == "" {
		levelName = os.Getenv("LOG_LEVEL")
	}
	level := parseLogLevel(levelName)

	var output io.Writer
	switch {
	case opts.File != "":
		//nolint:gosec // G304: operator-supplied log path
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		output = file
	case opts.Pretty:
		output = zerolog.ConsoleWriter{Out: os.Stdout}
	default:
		output = os.Stdout
	}

	log := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	event := log.Info().Str("log_level", level.String())
	if opts.File != "" {
		event = event.Str("path", opts.File)
	} else {
		event = event.Str("output", "stdout").Bool("pretty", opts.Pretty)
	}
	event.Msg("Logger initialized")

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
	default:
		return zerolog.InfoLevel
	}
}
