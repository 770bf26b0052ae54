package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	sonic "github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/trace"
)

func TestLogger_JSONFieldsAndLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Options{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	logger.Debug("hidden", "k", "v")
	logger.With("component", "picks_fetcher").Warn("fetch failed", "manager_id", int64(42), "error", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got=%d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := sonic.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "fetch failed" || entry["level"] != "WARN" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["component"] != "picks_fetcher" || entry["error"] != "boom" {
		t.Fatalf("missing fields: %v", entry)
	}
	if got, _ := entry["manager_id"].(float64); got != 42 {
		t.Fatalf("unexpected manager_id: %v", entry["manager_id"])
	}
}

func TestLogger_TraceFieldsFromContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Options{Level: LevelDebug, Output: &buf})

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.InfoContext(ctx, "traced")
	if !strings.Contains(buf.String(), `"trace_id":"0102030405060708090a0b0c0d0e0f10"`) {
		t.Fatalf("expected trace id in log line: %s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	if ParseFormat(" Console ") != FormatConsole {
		t.Fatalf("expected console format")
	}
	if ParseFormat("unknown") != FormatJSON {
		t.Fatalf("expected json fallback")
	}
}
