package providers

import (
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/trophydeck/trophydeck-server/internal/config"
	"github.com/trophydeck/trophydeck-server/internal/logger"
	"github.com/trophydeck/trophydeck-server/internal/store"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the disk cache store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Data.BasePath, "db")
	db, err := store.New(dbPath, log.Logger, store.Options{
		MetadataTTL: cfg.Client.MetadataTTL,
		ProgressTTL: cfg.Aggregator.ProgressTTL,
	})
	if err != nil {
		return nil, err
	}

	log.Info("Disk cache initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}
