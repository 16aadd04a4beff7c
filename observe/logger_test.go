package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	l.Debug(ctx, "debug msg")
	l.Info(ctx, "info msg")
	l.Warn(ctx, "warn msg")
	l.Error(ctx, "error msg")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines at warn level, got %d", len(lines))
	}
	if lines[0]["level"] != "warn" || lines[1]["level"] != "error" {
		t.Errorf("unexpected levels: %v, %v", lines[0]["level"], lines[1]["level"])
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("info", &buf)

	l.Info(context.Background(), "lookup served",
		Field{Key: "cache_type", Value: "venue"},
		Field{Key: "outcome", Value: "exact_hit"},
	)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["cache_type"] != "venue" {
		t.Errorf("cache_type = %v", lines[0]["cache_type"])
	}
	if lines[0]["msg"] != "lookup served" {
		t.Errorf("msg = %v", lines[0]["msg"])
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("info", &buf)

	l.Info(context.Background(), "provider call",
		Field{Key: "api_key", Value: "sk-sensitive"},
		Field{Key: "provider", Value: "alpha"},
	)

	lines := decodeLines(t, &buf)
	if lines[0]["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v, want redacted", lines[0]["api_key"])
	}
	if lines[0]["provider"] != "alpha" {
		t.Errorf("provider = %v, should not be redacted", lines[0]["provider"])
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("info", &buf).WithComponent("store")

	l.Info(context.Background(), "entry evicted")

	lines := decodeLines(t, &buf)
	if lines[0]["component"] != "store" {
		t.Errorf("component = %v, want store", lines[0]["component"])
	}
}

func TestLogger_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("info", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Info(context.Background(), "concurrent entry")
			}
		}()
	}
	wg.Wait()

	// Every line must still be valid JSON.
	lines := decodeLines(t, &buf)
	if len(lines) != 20*50 {
		t.Errorf("expected %d lines, got %d", 20*50, len(lines))
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	// Must not panic and WithComponent must still return a usable logger.
	l.WithComponent("x").Info(context.Background(), "dropped")
}
