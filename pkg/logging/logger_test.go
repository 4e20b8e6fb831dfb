package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q): Expected %v, got %v", tt.in, tt.want, got)
		}
	}
	if ValidLevel("bogus") || !ValidLevel("warning") {
		t.Error("Unexpected ValidLevel result")
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", "json", &buf)
	logger.Debug("hidden")
	logger.Info("ensemble_completed", "trajectories", 50)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", lines[0], err)
	}
	if entry["msg"] != "ensemble_completed" || entry["trajectories"] != float64(50) {
		t.Errorf("Unexpected entry %v", entry)
	}
}

func TestNewLoggerTraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", "text", &buf)
	logger.Log(context.Background(), LevelTrace, "step")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("Expected TRACE label, got %q", buf.String())
	}
}
