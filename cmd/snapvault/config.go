package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/snapvault/internal/model"
	"github.com/tinytelemetry/snapvault/internal/settings"
	"github.com/tinytelemetry/snapvault/internal/socketrpc"
)

const (
	defaultBindHost         = "127.0.0.1"
	defaultAPIPort          = 3000
	defaultHistoryRetention = 90 // days, 0 = keep forever
	defaultQueryTimeout     = 10 * time.Second
	defaultStartDelay       = model.DefaultStartDelay
	defaultCleanupDelay     = model.DefaultCleanupDelay
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	SettingsPath     string        `mapstructure:"settings-path"`
	SocketPath       string        `mapstructure:"socket-path"`
	APIEnabled       bool          `mapstructure:"api-enabled"`
	APIPort          int           `mapstructure:"api-port"`
	APIAddr          string        `mapstructure:"api-addr"`
	DBPath           string        `mapstructure:"db-path"`
	HistoryRetention int           `mapstructure:"history-retention"`
	QueryTimeout     time.Duration `mapstructure:"query-timeout"`
	SourceDir        string        `mapstructure:"source-dir"`
	SourceParents    int           `mapstructure:"source-parents"`
	TempDir          string        `mapstructure:"temp-dir"`
	ArchiveTag       string        `mapstructure:"archive-tag"`
	StartDelay       time.Duration `mapstructure:"start-delay"`
	CleanupDelay     time.Duration `mapstructure:"cleanup-delay"`
	Interval         time.Duration `mapstructure:"interval"`
	LogLevel         string        `mapstructure:"log-level"`
	LogFile          string        `mapstructure:"log-file"`
	ConfigPath       string        `mapstructure:"-"` // not from config file
}

// registerFlags declares the daemon flags that map onto config keys.
func registerFlags(fs *flag.FlagSet) {
	fs.String("source-dir", "", "directory to back up (default: the directory holding the executable)")
	fs.Int("source-parents", 0, "levels above the executable directory to use as the source")
	fs.String("settings-path", "", "user settings file (default is $HOME/.config/snapvault/settings.yml)")
	fs.String("socket-path", "", "unix socket for the TUI")
	fs.Bool("api-enabled", true, "serve the HTTP API")
	fs.Int("api-port", defaultAPIPort, "HTTP API port")
	fs.Duration("interval", 0, "also back up periodically (0 disables)")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
}

func loadConfig(configPath string, fs *flag.FlagSet) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SNAPVAULT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("settings-path", settings.DefaultPath())
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("db-path", filepath.Join(home, ".local", "share", "snapvault", "history.duckdb"))
	v.SetDefault("history-retention", defaultHistoryRetention)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("source-dir", "")
	v.SetDefault("source-parents", 0)
	v.SetDefault("temp-dir", "")
	v.SetDefault("archive-tag", "")
	v.SetDefault("start-delay", defaultStartDelay)
	v.SetDefault("cleanup-delay", defaultCleanupDelay)
	v.SetDefault("interval", time.Duration(0))
	v.SetDefault("log-level", "info")
	v.SetDefault("log-file", "")

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return cfg, fmt.Errorf("binding flags: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "snapvault", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	} else {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.SourceParents < 0 {
		return cfg, fmt.Errorf("invalid source-parents: %d", cfg.SourceParents)
	}
	if cfg.HistoryRetention < 0 {
		return cfg, fmt.Errorf("invalid history-retention: %d", cfg.HistoryRetention)
	}

	for _, p := range []*string{&cfg.DBPath, &cfg.SettingsPath, &cfg.SourceDir, &cfg.TempDir, &cfg.LogFile} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}
