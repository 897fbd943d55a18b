package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithRequestAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	req := httptest.NewRequest(http.MethodPost, "/submit?x=1", nil)

	WithRequest(zap.New(core), req, "alice").Info("hello")

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["method"] != "POST" || fields["path"] != "/submit" || fields["user"] != "alice" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestWithRequestOmitsAnonymousUser(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	req := httptest.NewRequest(http.MethodGet, "/oembed", nil)

	WithRequest(zap.New(core), req, "").Info("hello")

	if _, ok := logs.All()[0].ContextMap()["user"]; ok {
		t.Fatalf("expected no user field for anonymous request")
	}
}

func TestContextWithLoggerRoundTrip(t *testing.T) {
	t.Run("stores and retrieves logger", func(t *testing.T) {
		l := zap.NewNop()
		ctx := ContextWithLogger(context.Background(), l)
		if FromContext(ctx) != l {
			t.Fatalf("expected to retrieve same logger from context")
		}
	})

	t.Run("returns nil when logger absent", func(t *testing.T) {
		if FromContext(context.Background()) != nil {
			t.Fatalf("expected background context without logger to return nil")
		}
	})

	t.Run("ignores non-logger values", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), loggerKey, "not-a-logger")
		if FromContext(ctx) != nil {
			t.Fatalf("expected non-logger value to return nil")
		}
	})
}

func TestLoggerOrFallsBack(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	req := httptest.NewRequest(http.MethodGet, "/u/alice/m/sunset/", nil)

	LoggerOr(req, zap.New(core)).Info("fallback")
	if logs.Len() != 1 || logs.All()[0].ContextMap()["path"] != "/u/alice/m/sunset/" {
		t.Fatalf("expected fallback logger scoped to request, got %v", logs.All())
	}

	stored := zap.NewNop()
	req = req.WithContext(ContextWithLogger(req.Context(), stored))
	if LoggerOr(req, zap.New(core)) != stored {
		t.Fatalf("expected stored logger to win")
	}
}
