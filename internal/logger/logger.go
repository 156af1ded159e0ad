package logger

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options describes where and how verbosely the process logs.
// It mirrors config.LoggingConfig so this package stays import-free of config.
type Options struct {
	Level     string
	Output    string // stdout (default), console, file
	FilePath  string
	MaxSizeMB int
	MaxFiles  int
}

type contextKey string

const (
	loggerKey        contextKey = "logger"
	correlationIDKey contextKey = "correlation_id"
)

// New creates a JSON zerolog.Logger on stdout. Unknown levels fall back to info.
func New(level string) zerolog.Logger {
	return build(os.Stdout, level)
}

// NewWithOptions picks the writer from opts.Output:
//   - "file": size-rotated file via lumberjack
//   - "console": human-readable output for local development
//   - anything else: JSON on stdout
func NewWithOptions(opts Options) zerolog.Logger {
	var w io.Writer
	switch opts.Output {
	case "file":
		w = NewFileWriter(FileConfig{
			Path:      opts.FilePath,
			MaxSizeMB: opts.MaxSizeMB,
			MaxFiles:  opts.MaxFiles,
		})
	case "console":
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	default:
		w = os.Stdout
	}
	return build(w, opts.Level)
}

func build(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithCorrelationID stores a correlation ID in the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext returns the correlation ID or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns the context's logger, falling back to an info-level
// stdout logger, with the correlation ID attached when one is present.
func FromContext(ctx context.Context) zerolog.Logger {
	log, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		log = New("info")
	}

	if id := CorrelationIDFromContext(ctx); id != "" {
		log = log.With().Str("correlation_id", id).Logger()
	}
	return log
}

// NewCorrelationID generates a new UUID-based correlation ID.
func NewCorrelationID() string {
	return uuid.New().String()
}
