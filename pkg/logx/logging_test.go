package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func decodeLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &m); err != nil {
		t.Fatalf("Unmarshal(%q) = %v", b, err)
	}
	return m
}

func TestWriterFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "engine"))
	log.Info("frame", Int("n", 3), Bool("late", true), Duration("took", 2*time.Millisecond))

	m := decodeLine(t, buf.Bytes())
	if m["message"] != "frame" || m["comp"] != "engine" || m["n"] != float64(3) || m["late"] != true {
		t.Fatalf("line = %v", m)
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q, want logging_test.go:N", c)
	}
}

func TestLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("wrote %q below level", buf.String())
	}
	if log.Enabled(LevelInfo) || !log.Enabled(LevelError) {
		t.Fatal("Enabled does not follow the level")
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestNopAndZero(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() || Nop().IsZero() {
		t.Fatal("IsZero mismatch")
	}
	zero.Info("dropped")
	Nop().Error("dropped")
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
		{"loud", LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, LevelInfo); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marquee.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("to file", String("k", "v"))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile = %v", err)
	}
	if m := decodeLine(t, b); m["message"] != "to file" || m["k"] != "v" {
		t.Fatalf("line = %v", m)
	}
}
