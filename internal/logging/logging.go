// Package logging provides a configured slog logger with:
// - TTY detection for human-readable vs JSON output
// - LOG_FORMAT env var override (text/json)
// - LOG_LEVEL env var (debug/info/warn/error)
// - Context-based request, video and client extraction for filtering
// - Dynamic filter-based logging via slog-logfilter library
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	logfilter "github.com/jmylchreest/slog-logfilter"
	"github.com/mattn/go-isatty"
)

// ContextKey is a type for context keys used in logging.
type ContextKey string

const (
	// RequestIDKey is the context key for request ID.
	RequestIDKey ContextKey = "log_request_id"
	// VideoIDKey is the context key for the video being resolved.
	VideoIDKey ContextKey = "log_video_id"
	// ClientIDKey is the context key for the caller's address (for filtering only - NOT logged due to PII).
	ClientIDKey ContextKey = "log_client_id"
)

// WithRequestID adds a request ID to the context for logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithVideoID adds a video ID to the context for logging.
func WithVideoID(ctx context.Context, videoID string) context.Context {
	return context.WithValue(ctx, VideoIDKey, videoID)
}

// WithClientID adds a client ID to the context.
// Note: clientID is used for filter matching only - NOT logged due to PII concerns.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, ClientIDKey, clientID)
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// GetVideoID extracts the video ID from context.
func GetVideoID(ctx context.Context) string {
	return stringValue(ctx, VideoIDKey)
}

// GetClientID extracts the client ID from context.
func GetClientID(ctx context.Context) string {
	return stringValue(ctx, ClientIDKey)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FromContext returns a logger with requestID and videoID from context added as attributes.
// Note: clientID is NOT included in logs (PII) - only used for filter matching.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}

	var attrs []any
	if requestID := GetRequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	if videoID := GetVideoID(ctx); videoID != "" {
		attrs = append(attrs, "video_id", videoID)
	}
	if len(attrs) == 0 {
		return logger
	}

	return logger.With(attrs...)
}

// registerContextExtractors registers the context extractors for filtering.
func registerContextExtractors() {
	extractors := map[string]ContextKey{
		"request_id": RequestIDKey,
		"video_id":   VideoIDKey,
		"client_id":  ClientIDKey, // filtering only, NOT logged (PII)
	}
	for name, key := range extractors {
		logfilter.RegisterContextExtractor(name, func(ctx context.Context) (string, bool) {
			s := stringValue(ctx, key)
			return s, s != ""
		})
	}
}

// New creates a new configured logger using slog-logfilter.
// Format is determined by:
// 1. LOG_FORMAT env var (text/json)
// 2. TTY detection (text for TTY, JSON otherwise)
// Level is determined by LOG_LEVEL env var (debug/info/warn/error, default: info)
func New() *slog.Logger {
	logFormat := os.Getenv("LOG_FORMAT")
	format := "json"
	if logFormat == "text" || (logFormat == "" && isatty.IsTerminal(os.Stdout.Fd())) {
		format = "text"
	}

	level := parseLogLevel(os.Getenv("LOG_LEVEL"))

	registerContextExtractors()

	return logfilter.New(
		logfilter.WithLevel(level),
		logfilter.WithFormat(format),
		logfilter.WithOutput(os.Stdout),
		logfilter.WithSource(true),
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault creates a new logger and sets it as the default slog logger.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

// LoadFilters reads a JSON array of filters from path and replaces the
// active set. It returns the total and currently active filter counts.
func LoadFilters(path string) (total, active int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("reading log filters: %w", err)
	}

	var filters []logfilter.LogFilter
	if err := json.Unmarshal(data, &filters); err != nil {
		return 0, 0, fmt.Errorf("parsing log filters %s: %w", path, err)
	}

	logfilter.SetFilters(filters)
	for _, f := range filters {
		if f.IsActive() {
			active++
		}
	}
	return len(filters), active, nil
}
