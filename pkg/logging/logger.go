package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	// RequestIDKey is the key used to store request IDs in context
	RequestIDKey contextKey = "request_id"
)

// Config defines logging configuration
type Config struct {
	// Level is the logging level (debug, info, warn, error)
	Level string
	// Pretty determines if logs should be formatted for human readability
	Pretty bool
	// Output is where logs are written (defaults to os.Stderr)
	Output io.Writer
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures global logging based on the provided config
func Setup(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// WithRequestID returns a context carrying id. An empty id is replaced by
// a fresh uuid.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID returns the request id stored in ctx, if any
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RequestIDKey).(string)
	return id, ok && id != ""
}

// FromContext extracts a logger with request context
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return log.Logger
	}
	if requestID, ok := RequestID(ctx); ok {
		return log.With().Str("request_id", requestID).Logger()
	}
	return log.Logger
}

// Track logs the start of operation at debug level and returns a function
// that logs its completion with duration, at error level when err is set.
//
//	done := logging.Track(ctx, "submit_limit_order")
//	defer func() { done(err) }()
func Track(ctx context.Context, operation string) func(err error) {
	start := time.Now()
	logger := FromContext(ctx).With().Str("operation", operation).Logger()
	logger.Debug().Msg("Request received")

	return func(err error) {
		duration := time.Since(start)
		event := logger.Debug()
		if err != nil {
			event = logger.Error().Err(err)
		}
		event.Dur("duration", duration).Msg("Request completed")
	}
}
