package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_LevelAndFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{level: "debug", want: zerolog.DebugLevel},
		{level: "warn", want: zerolog.WarnLevel},
		{level: "", want: zerolog.InfoLevel},
		{level: "chatty", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		logger := New(Options{Level: tt.level, Writer: &bytes.Buffer{}})
		if got := logger.GetLevel(); got != tt.want {
			t.Fatalf("level(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestComponent_AddsField(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := Component(New(Options{Service: "snapvault", Writer: &buf}), "backup")
	logger.Info().Msg("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["service"] != "snapvault" || rec["component"] != "backup" || rec["message"] != "hello" {
		t.Fatalf("record = %v", rec)
	}
	if _, ok := rec["time"]; !ok {
		t.Fatalf("record missing timestamp: %v", rec)
	}
}

func TestRotatingFile_CreatesDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "app.log")
	w, err := RotatingFile(path)
	if err != nil {
		t.Fatalf("RotatingFile: %v", err)
	}
	defer w.Close()
	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.Filename != path {
		t.Fatalf("Filename = %s, want %s", w.Filename, path)
	}
}
