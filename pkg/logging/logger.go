package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	// ProductIDKey is the key used to store product IDs in context
	ProductIDKey contextKey = "product_id"
	// SessionIDKey is the key used to store feed session IDs in context
	SessionIDKey contextKey = "session_id"
)

// Config defines logging configuration
type Config struct {
	// Level is the logging level (debug, info, warn, error)
	Level string
	// Pretty determines if logs should be formatted for human readability
	Pretty bool
	// Output is where logs are written (defaults to os.Stdout)
	Output io.Writer
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Pretty: false,
		Output: os.Stdout,
	}
}

// Setup configures global logging based on the provided config
func Setup(cfg Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Set up pretty logging if enabled
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	// Set global logger
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// WithProduct stores a product ID on the context for FromContext to pick up
func WithProduct(ctx context.Context, productID string) context.Context {
	return context.WithValue(ctx, ProductIDKey, productID)
}

// WithSession stores a feed session ID on the context
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// FromContext extracts a logger carrying whatever feed context is present
func FromContext(ctx context.Context) zerolog.Logger {
	logCtx := log.With()
	if productID, ok := ctx.Value(ProductIDKey).(string); ok {
		logCtx = logCtx.Str("product_id", productID)
	}
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		logCtx = logCtx.Str("session_id", sessionID)
	}
	return logCtx.Logger()
}
