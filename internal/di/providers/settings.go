package providers

import (
	"context"
	"os"

	"github.com/samber/do/v2"

	"github.com/trophydeck/trophydeck-server/internal/config"
	"github.com/trophydeck/trophydeck-server/internal/logger"
	"github.com/trophydeck/trophydeck-server/internal/settings"
	"github.com/trophydeck/trophydeck-server/internal/validation"
)

// ProvideSettingsService provides the persisted credential settings.
func ProvideSettingsService(i do.Injector) (*settings.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	validator := do.MustInvoke[*validation.Validator](i)

	if err := os.MkdirAll(cfg.Data.BasePath, 0o755); err != nil {
		return nil, err
	}

	svc, err := settings.NewService(cfg.Data.BasePath, log.Logger, validator)
	if err != nil {
		return nil, err
	}

	log.Info("Settings loaded",
		"path", svc.Path(),
		"configured", svc.Get().Configured(),
	)

	return svc, nil
}

// SettingsWatcherHandle wraps the settings file watcher with its context for
// lifecycle management.
type SettingsWatcherHandle struct {
	*settings.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SettingsWatcherHandle) Shutdown() error {
	h.cancel()
	return h.Stop()
}

// ProvideSettingsWatcher provides the watcher that picks up external edits to
// the settings file.
func ProvideSettingsWatcher(i do.Injector) (*SettingsWatcherHandle, error) {
	svc := do.MustInvoke[*settings.Service](i)
	log := do.MustInvoke[*logger.Logger](i)

	watcher, err := settings.NewWatcher(svc, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	watcher.Start(ctx)

	log.Info("Settings watcher started", "path", svc.Path())

	return &SettingsWatcherHandle{Watcher: watcher, cancel: cancel}, nil
}
