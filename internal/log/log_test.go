package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{
		Component: ComponentLedger,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestLoggerAddsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf).WithComponent(ComponentWorker)

	logger.InfoContext(context.Background(), "hello", FieldOwnerID, 7)

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=worker") {
		t.Errorf("unexpected output: %s", out)
	}
	if !strings.Contains(out, "owner_id=7") {
		t.Errorf("missing owner_id: %s", out)
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf))
	req := httptest.NewRequest("GET", "/api/entries?category=Food", nil)

	sl.LogHTTPEnd(context.Background(), req, 503, 12, "10.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("5xx should log at error: %s", buf.String())
	}

	buf.Reset()
	sl.LogError(context.Background(), "publish failed", errors.New("boom"), ComponentLedger, OpPublish, nil)
	if !strings.Contains(buf.String(), "error=boom") || !strings.Contains(buf.String(), "operation=publish") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Errorf("component = %q", got.Component())
	}
}
