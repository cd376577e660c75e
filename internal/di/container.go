// Package di provides dependency injection configuration for the TrophyDeck server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/trophydeck/trophydeck-server/internal/config"
	"github.com/trophydeck/trophydeck-server/internal/di/providers"
	"github.com/trophydeck/trophydeck-server/internal/logger"
	"github.com/trophydeck/trophydeck-server/internal/service"
	"github.com/trophydeck/trophydeck-server/internal/settings"
	"github.com/trophydeck/trophydeck-server/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideValidator)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)

	// Settings layer
	do.Provide(injector, providers.ProvideSettingsService)
	do.Provide(injector, providers.ProvideSettingsWatcher)

	// Steam layer
	do.Provide(injector, providers.ProvideSteamClient)

	// Business services
	do.Provide(injector, providers.ProvideAchievementService)
	do.Provide(injector, providers.ProvideProgressService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*settings.Service](injector)
	_ = do.MustInvoke[*providers.SettingsWatcherHandle](injector)
	_ = do.MustInvoke[*providers.SteamClientHandle](injector)

	// Business services
	_ = do.MustInvoke[*service.AchievementService](injector)
	_ = do.MustInvoke[*service.ProgressService](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
