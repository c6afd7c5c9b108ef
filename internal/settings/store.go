// Package settings persists the user-facing backup settings and notifies
// subscribers when they change.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/snapvault/internal/model"
)

var validate = validator.New()

// ErrInvalid wraps validation failures from Update.
var ErrInvalid = errors.New("settings: invalid")

// Defaults returns the settings used when no file exists yet.
func Defaults() model.Settings {
	target := "SnapvaultBackups"
	if home, err := os.UserHomeDir(); err == nil {
		target = filepath.Join(home, "Documents", "SnapvaultBackups")
	}
	return model.Settings{
		Enabled:        false,
		TargetPath:     target,
		RetentionLimit: model.DefaultRetentionLimit,
		LogEnabled:     false,
	}
}

// DefaultPath returns ~/.config/snapvault/settings.yml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "settings.yml"
	}
	return filepath.Join(home, ".config", "snapvault", "settings.yml")
}

// Store is a file-backed model.SettingsEditor.
type Store struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	cur       model.Settings
	listeners []func(model.Settings)
}

var _ model.SettingsEditor = (*Store)(nil)

// Open loads settings from path. A missing file yields defaults; the file is
// written on the first Update.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings: empty path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	def := Defaults()
	v.SetDefault("enabled", def.Enabled)
	v.SetDefault("target-path", def.TargetPath)
	v.SetDefault("retention-limit", def.RetentionLimit)
	v.SetDefault("log-enabled", def.LogEnabled)

	s := &Store{path: path, v: v}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// OnChange registers fn to run after every applied change.
func (s *Store) OnChange(fn func(model.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Update applies fn to a copy of the current settings, normalizes and
// validates it, saves it and notifies listeners.
func (s *Store) Update(fn func(*model.Settings)) (model.Settings, error) {
	s.mu.Lock()
	next := s.cur
	fn(&next)
	normalize(&next)
	if err := validate.Struct(next); err != nil {
		s.mu.Unlock()
		return s.Snapshot(), fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := save(s.path, next); err != nil {
		s.mu.Unlock()
		return s.Snapshot(), err
	}
	changed := next != s.cur
	s.cur = next
	listeners := s.listeners
	s.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l(next)
		}
	}
	return next, nil
}

// Watch picks up edits made to the file by other processes.
func (s *Store) Watch() {
	s.v.OnConfigChange(func(fsnotify.Event) {
		_ = s.reload()
	})
	s.v.WatchConfig()
}

func (s *Store) reload() error {
	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("settings: read %s: %w", s.path, err)
		}
	}
	var next model.Settings
	if err := s.v.Unmarshal(&next); err != nil {
		return fmt.Errorf("settings: decode %s: %w", s.path, err)
	}
	normalize(&next)
	if next.TargetPath == "" {
		next.TargetPath = Defaults().TargetPath
	}

	s.mu.Lock()
	changed := next != s.cur
	s.cur = next
	listeners := s.listeners
	s.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l(next)
		}
	}
	return nil
}

// normalize clamps the retention limit and expands a leading ~.
func normalize(st *model.Settings) {
	if st.RetentionLimit < 1 {
		st.RetentionLimit = 1
	}
	st.TargetPath = strings.TrimSpace(st.TargetPath)
	if strings.HasPrefix(st.TargetPath, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			st.TargetPath = filepath.Join(home, st.TargetPath[2:])
		}
	}
}

func save(path string, st model.Settings) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("settings: create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("settings: replace: %w", err)
	}
	return nil
}
