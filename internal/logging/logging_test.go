package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFieldsAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	log.With(String("component", "tracker")).Warn(ctx, "model vanished", Int("model_id", 7), Err(errors.New("gone")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "model vanished" {
		t.Fatalf("msg = %v, want %q", rec["msg"], "model vanished")
	}
	if rec["level"] != "WARN" {
		t.Fatalf("level = %v, want WARN", rec["level"])
	}
	if rec["component"] != "tracker" {
		t.Fatalf("component = %v, want tracker", rec["component"])
	}
	if rec["model_id"] != float64(7) {
		t.Fatalf("model_id = %v, want 7", rec["model_id"])
	}
	if rec["error"] != "gone" {
		t.Fatalf("error = %v, want gone", rec["error"])
	}
	if rec["request_id"] != "req-1" {
		t.Fatalf("request_id = %v, want req-1", rec["request_id"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %q", buf.String())
	}
	log.Error(context.Background(), "kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("error line missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEnsureRequestIDKeepsExisting(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" {
		t.Fatalf("EnsureRequestID returned empty id")
	}
	ctx2, id2 := EnsureRequestID(ctx)
	if id2 != id {
		t.Fatalf("second EnsureRequestID = %q, want %q", id2, id)
	}
	if RequestIDFromContext(ctx2) != id {
		t.Fatalf("RequestIDFromContext = %q, want %q", RequestIDFromContext(ctx2), id)
	}
}

func TestOrNoop(t *testing.T) {
	if OrNoop(nil) == nil {
		t.Fatalf("OrNoop(nil) returned nil")
	}
	l := Noop()
	l.Info(context.Background(), "ignored")
}
