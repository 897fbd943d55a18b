package util

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type loggerKeyType struct{}

var loggerKey = loggerKeyType{}

// WithRequest returns l enriched with the request method, path and, when
// known, the authenticated user.
func WithRequest(l *zap.Logger, r *http.Request, user string) *zap.Logger {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if user != "" {
		fields = append(fields, zap.String("user", user))
	}
	return l.With(fields...)
}

// ContextWithLogger stores the request logger in context for downstream handlers.
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext retrieves a request logger from context when available.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return nil
	}

	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}

	return nil
}

// LoggerOr returns the request logger stored in r's context, or fallback
// scoped to r when none was attached.
func LoggerOr(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if l := FromContext(r.Context()); l != nil {
		return l
	}
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return WithRequest(fallback, r, "")
}
