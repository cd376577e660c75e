package providers

import (
	"github.com/samber/do/v2"

	"github.com/trophydeck/trophydeck-server/internal/config"
	"github.com/trophydeck/trophydeck-server/internal/logger"
	"github.com/trophydeck/trophydeck-server/internal/settings"
	"github.com/trophydeck/trophydeck-server/internal/steam"
)

// SteamClientHandle wraps the Steam client with shutdown capability.
type SteamClientHandle struct {
	*steam.Client
}

// Shutdown implements do.Shutdownable.
func (h *SteamClientHandle) Shutdown() error {
	h.Client.Shutdown()
	return nil
}

// resolveCredentials returns the active Steam credentials: the settings file
// wins, environment configuration is the fallback for fresh installs.
func resolveCredentials(cfg *config.Config, current settings.Settings) (apiKey, userID string) {
	apiKey = current.APIKey
	userID = current.UserID
	if apiKey == "" {
		apiKey = cfg.Steam.APIKey
	}
	if userID == "" {
		userID = cfg.Steam.UserID
	}
	return apiKey, userID
}

// ProvideSteamClient provides the rate-limited Steam Web API client, backed
// by the disk store for app metadata.
func ProvideSteamClient(i do.Injector) (*SteamClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	settingsService := do.MustInvoke[*settings.Service](i)

	apiKey, userID := resolveCredentials(cfg, settingsService.Get())

	client := steam.New(steam.Options{
		APIKey: apiKey,
		UserID: userID,

		MaxConcurrentRequests: cfg.Client.MaxConcurrentRequests,
		RequestsPerSecond:     cfg.Client.RequestsPerSecond,
		RequestTimeout:        cfg.Client.RequestTimeout,
		ConnectTimeout:        cfg.Client.ConnectTimeout,

		AchievementTTL:       cfg.Client.AchievementTTL,
		SchemaTTL:            cfg.Client.SchemaTTL,
		AchievementCacheSize: cfg.Client.AchievementCacheSize,
		SchemaCacheSize:      cfg.Client.SchemaCacheSize,

		MetadataCache: storeHandle.Store,
	}, log.Logger)

	log.Info("Steam client initialized",
		"max_requests", cfg.Client.MaxConcurrentRequests,
		"requests_per_second", cfg.Client.RequestsPerSecond,
		"credentials_configured", apiKey != "" && userID != "",
	)

	return &SteamClientHandle{Client: client}, nil
}
