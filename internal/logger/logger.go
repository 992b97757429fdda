package logger

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Config holds logging configuration. It mirrors config.LoggingConfig to
// avoid a circular import; callers populate it from their config fields.
type Config struct {
	Level      string
	Output     string // stdout (default) or file
	FilePath   string
	MaxSizeMB  int
	MaxFiles   int
	MaxAgeDays int
	Compress   bool
}

type contextKey string

const loggerKey contextKey = "logger"

// New creates a zerolog.Logger with the specified level and JSON output.
// If the level string is invalid, it defaults to info.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// NewFromConfig creates a zerolog.Logger from a Config, selecting the output
// writer based on cfg.Output: "file" writes to a rotating file, anything else
// writes to stdout.
func NewFromConfig(cfg Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var writer io.Writer
	switch cfg.Output {
	case "file":
		writer = NewFileWriter(FileConfig{
			Path:       cfg.FilePath,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxFiles:   cfg.MaxFiles,
			MaxAgeDays: cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	default:
		writer = os.Stdout
	}

	return zerolog.New(writer).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from the context. If no logger is found,
// a default info-level logger is returned.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return l
	}
	return New("info")
}
