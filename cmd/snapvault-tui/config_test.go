package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/tinytelemetry/snapvault/internal/model"
)

func TestLoadCLIConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	cfg, err := loadCLIConfig("", nil)
	if err != nil {
		t.Fatalf("loadCLIConfig: %v", err)
	}
	if cfg.UpdateInterval != model.DefaultUpdateInterval {
		t.Errorf("UpdateInterval = %v", cfg.UpdateInterval)
	}
	if cfg.SocketPath != "/run/user/1000/snapvault/snapvault.sock" {
		t.Errorf("SocketPath = %q", cfg.SocketPath)
	}
}

func TestLoadCLIConfig_FileAndFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("update-interval: 2s\nsocket-path: /tmp/from-file.sock\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("snapvault-tui", flag.ContinueOnError)
	fs.String("socket-path", "", "")
	if err := fs.Parse([]string{"--socket-path", "/tmp/flag.sock"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadCLIConfig(path, fs)
	if err != nil {
		t.Fatalf("loadCLIConfig: %v", err)
	}
	if cfg.UpdateInterval != 2*time.Second {
		t.Errorf("UpdateInterval = %v", cfg.UpdateInterval)
	}
	if cfg.SocketPath != "/tmp/flag.sock" {
		t.Errorf("SocketPath = %q, flag should win", cfg.SocketPath)
	}
}
