// Package settings manages the user-editable credentials file. The file is
// plain JSON so it can be edited out-of-band; a watcher picks up external
// edits and pushes them to subscribers.
package settings

import (
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	domainerrors "github.com/trophydeck/trophydeck-server/internal/errors"
	"github.com/trophydeck/trophydeck-server/internal/validation"
)

// FileName is the settings file name inside the data directory.
const FileName = "settings.json"

// Settings holds the Steam credentials. Both fields may be empty; operations
// that need them fail with a credentials error at call time.
type Settings struct {
	APIKey string `json:"api_key" validate:"omitempty,len=32,hexadecimal"`
	UserID string `json:"user_id" validate:"omitempty,len=17,numeric"`
}

// Configured reports whether both credentials are present.
func (s Settings) Configured() bool {
	return s.APIKey != "" && s.UserID != ""
}

// Service loads, persists and broadcasts settings changes.
type Service struct {
	path      string
	logger    *slog.Logger
	validator *validation.Validator

	mu      sync.RWMutex
	current Settings

	subMu       sync.Mutex
	subscribers []func(Settings)
}

// NewService loads the settings file at dir/FileName, creating an empty one
// when missing.
func NewService(dir string, logger *slog.Logger, validator *validation.Validator) (*Service, error) {
	s := &Service{
		path:      filepath.Join(dir, FileName),
		logger:    logger,
		validator: validator,
	}

	loaded, err := s.readFile()
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		if err := s.writeFile(Settings{}); err != nil {
			return nil, fmt.Errorf("create settings file: %w", err)
		}
		logger.Info("created empty settings file", "path", s.path)
		loaded = Settings{}
	}

	s.current = loaded
	return s, nil
}

// Path returns the absolute settings file path.
func (s *Service) Path() string {
	return s.path
}

// Get returns the current settings.
func (s *Service) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Save validates, persists and broadcasts new settings.
func (s *Service) Save(settings Settings) error {
	if err := s.validator.Validate(settings); err != nil {
		return err
	}

	s.mu.Lock()
	if settings == s.current {
		s.mu.Unlock()
		return nil
	}
	if err := s.writeFile(settings); err != nil {
		s.mu.Unlock()
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to persist settings")
	}
	s.current = settings
	s.mu.Unlock()

	s.logger.Info("settings saved", "configured", settings.Configured())
	s.notify(settings)
	return nil
}

// OnChange registers a callback invoked after every effective settings
// change, whether via Save or an external file edit.
func (s *Service) OnChange(fn func(Settings)) {
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.subMu.Unlock()
}

// Reload re-reads the file, typically after an external edit. A file whose
// content matches the in-memory state is a no-op, which also absorbs the
// watcher events our own Save triggers.
func (s *Service) Reload() error {
	loaded, err := s.readFile()
	if err != nil {
		return fmt.Errorf("reload settings: %w", err)
	}

	if err := s.validator.Validate(loaded); err != nil {
		s.logger.Warn("ignoring invalid settings file edit", "error", err)
		return nil
	}

	s.mu.Lock()
	if loaded == s.current {
		s.mu.Unlock()
		return nil
	}
	s.current = loaded
	s.mu.Unlock()

	s.logger.Info("settings reloaded from disk", "configured", loaded.Configured())
	s.notify(loaded)
	return nil
}

func (s *Service) notify(settings Settings) {
	s.subMu.Lock()
	subs := make([]func(Settings), len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(settings)
	}
}

func (s *Service) readFile() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Settings{}, err
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		return Settings{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return loaded, nil
}

// writeFile persists atomically via a temp file rename so a crash mid-write
// never leaves a torn settings file.
func (s *Service) writeFile(settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
