package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("snapvault", flag.ContinueOnError)
	registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := loadConfig("", newFlags(t))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.APIAddr != "127.0.0.1:3000" {
		t.Errorf("APIAddr = %q", cfg.APIAddr)
	}
	if cfg.DBPath != filepath.Join(home, ".local", "share", "snapvault", "history.duckdb") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.StartDelay != 5*time.Second || cfg.CleanupDelay != 10*time.Second {
		t.Errorf("delays = %v/%v", cfg.StartDelay, cfg.CleanupDelay)
	}
	if cfg.Interval != 0 || cfg.SourceDir != "" || !cfg.APIEnabled {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ConfigPath != "" {
		t.Errorf("ConfigPath = %q, want empty when no file exists", cfg.ConfigPath)
	}
}

func TestLoadConfig_FileEnvAndFlags(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SNAPVAULT_ARCHIVE_TAG", "FromEnv")

	path := filepath.Join(t.TempDir(), "config.yml")
	body := []byte(`
source-dir: ~/apps/demo
start-delay: 2s
history-retention: 7
api-port: 3900
archive-tag: FromFile
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path, newFlags(t, "--api-port", "4100", "--interval", "1h"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.SourceDir != filepath.Join(home, "apps", "demo") {
		t.Errorf("SourceDir = %q, want expanded home path", cfg.SourceDir)
	}
	if cfg.StartDelay != 2*time.Second || cfg.HistoryRetention != 7 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.ArchiveTag != "FromEnv" {
		t.Errorf("ArchiveTag = %q, env should beat the file", cfg.ArchiveTag)
	}
	if cfg.APIPort != 4100 || cfg.APIAddr != "127.0.0.1:4100" {
		t.Errorf("api = %d %q, flag should beat the file", cfg.APIPort, cfg.APIAddr)
	}
	if cfg.Interval != time.Hour {
		t.Errorf("Interval = %v", cfg.Interval)
	}
	if cfg.ConfigPath != path {
		t.Errorf("ConfigPath = %q, want %q", cfg.ConfigPath, path)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"port", "SNAPVAULT_API_PORT", "70000"},
		{"parents", "SNAPVAULT_SOURCE_PARENTS", "-1"},
		{"retention", "SNAPVAULT_HISTORY_RETENTION", "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			if _, err := loadConfig("", newFlags(t)); err == nil {
				t.Fatalf("expected error for %s=%s", tt.env, tt.val)
			}
		})
	}
}

func TestShortenPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if got := shortenPath(filepath.Join(home, "Documents", "b")); got != filepath.Join("~", "Documents", "b") {
		t.Errorf("shortenPath = %q", got)
	}
	if got := shortenPath("/srv/data"); got != "/srv/data" {
		t.Errorf("shortenPath = %q", got)
	}
}
