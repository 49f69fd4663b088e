package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// NewStructuredLogger creates a JSON logger writing to w.
func NewStructuredLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// ParseLevel maps debug|info|warn|error to a slog level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// LogError logs err with structured context. A nil logger is ignored.
func LogError(logger *slog.Logger, message string, err error, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	args := make([]any, 0, len(attrs)+1)
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	for _, attr := range attrs {
		args = append(args, attr)
	}
	logger.Error(message, args...)
}

// LogOperation logs a completed operation at info level.
func LogOperation(logger *slog.Logger, operation string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		// zero durations are noise
		if attr.Key == "duration" && attr.Value.Kind() == slog.KindDuration && attr.Value.Duration() == 0 {
			continue
		}
		args = append(args, attr)
	}
	logger.Info(operation, args...)
}

// SafeCloseWithLogging closes a resource and logs the error, if any.
func SafeCloseWithLogging(closer io.Closer, logger *slog.Logger, operation string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		LogError(logger, "failed to close resource", err,
			slog.String("operation", operation),
			slog.String("component", "resource_management"))
	}
}

// Fatal logs err and returns it wrapped with message, for callers that exit.
func Fatal(logger *slog.Logger, message string, err error) error {
	LogError(logger, message, err)
	return fmt.Errorf("%s: %w", message, err)
}
