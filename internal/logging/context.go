package logging

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger attaches logger to ctx so code running on behalf of a caller
// logs where the caller does.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached to ctx, or fallback when there is
// none. The component field is applied to the context logger only; fallback
// loggers are expected to carry their own.
func FromContext(ctx context.Context, fallback *slog.Logger, component string) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			if component != "" {
				return logger.With(FieldComponent, component)
			}
			return logger
		}
	}
	if fallback == nil {
		return NewNop()
	}
	return fallback
}
