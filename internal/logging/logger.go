package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/juju/lumberjack/v2"
	"github.com/rs/zerolog"
)

// Options configures a process logger.
type Options struct {
	Level   string
	Service string
	Writer  io.Writer // nil writes to stderr
}

// New creates a structured zerolog.Logger. Unknown levels fall back to info.
func New(opts Options) zerolog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	ctx := zerolog.New(w).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// Component derives a sub-logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// RotatingFile returns a size-rotated writer at path, creating its directory.
func RotatingFile(path string) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 5,
		Compress:   true,
	}, nil
}

// DefaultRuntimeLogPath returns ~/.local/state/<app>/<app>.log.
func DefaultRuntimeLogPath(app string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", app, app+".log"), nil
}
