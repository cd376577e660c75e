package providers

import (
	"github.com/samber/do/v2"

	"github.com/trophydeck/trophydeck-server/internal/config"
	"github.com/trophydeck/trophydeck-server/internal/logger"
	"github.com/trophydeck/trophydeck-server/internal/service"
	"github.com/trophydeck/trophydeck-server/internal/settings"
)

// ProvideAchievementService provides the per-game achievement service.
func ProvideAchievementService(i do.Injector) (*service.AchievementService, error) {
	clientHandle := do.MustInvoke[*SteamClientHandle](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAchievementService(clientHandle.Client, cfg.Aggregator.MaxConcurrentGames, log.Logger), nil
}

// ProvideProgressService provides the library-wide progress aggregator.
func ProvideProgressService(i do.Injector) (*service.ProgressService, error) {
	clientHandle := do.MustInvoke[*SteamClientHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	settingsService := do.MustInvoke[*settings.Service](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	_, userID := resolveCredentials(cfg, settingsService.Get())

	return service.NewProgressService(
		clientHandle.Client,
		clientHandle.Client,
		storeHandle.Store,
		service.ProgressOptions{
			UserID:             userID,
			MaxConcurrentGames: cfg.Aggregator.MaxConcurrentGames,
			SafetyTimeout:      cfg.Aggregator.SafetyTimeout,
			GameCountTolerance: cfg.Aggregator.GameCountTolerance,
		},
		log.Logger,
	), nil
}
