package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerWritesFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int("n", 3), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if m["message"] != "hello" {
		t.Fatalf("message = %v, want hello", m["message"])
	}
	if m["comp"] != "test" {
		t.Fatalf("comp = %v, want test", m["comp"])
	}
	if m["n"] != float64(3) {
		t.Fatalf("n = %v, want 3", m["n"])
	}
	if m["error"] == nil && m["err"] == nil {
		t.Fatalf("expected error field, got %v", m)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatalf("debug should be disabled at warn level")
	}
	log.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	log.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatalf("Nop logger should not be zero")
	}
}

func TestFormatNotifyJSON(t *testing.T) {
	t.Parallel()
	got := formatNotifyJSON([]byte(`{"level":"warn","message":"task failed","task":"abc","time":"x"}`))
	if !strings.HasPrefix(got, "[WARN] task failed") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, "- task=abc") {
		t.Fatalf("missing field: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time should be omitted: %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" WARNING ", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, LevelInfo); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// NewConsole sets zerolog globals, so this test stays serial.
func TestNewConsoleLevel(t *testing.T) {
	log := NewConsole("warn")
	if log.IsZero() {
		t.Fatalf("console logger is zero")
	}
	if log.Enabled(LevelInfo) || !log.Enabled(LevelWarn) {
		t.Fatalf("console logger ignores its level")
	}
}
