package providers

import (
	"context"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/trophydeck/trophydeck-server/internal/api"
	"github.com/trophydeck/trophydeck-server/internal/config"
	"github.com/trophydeck/trophydeck-server/internal/logger"
	"github.com/trophydeck/trophydeck-server/internal/service"
	"github.com/trophydeck/trophydeck-server/internal/settings"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	clientHandle := do.MustInvoke[*SteamClientHandle](i)
	settingsService := do.MustInvoke[*settings.Service](i)

	achievementService := do.MustInvoke[*service.AchievementService](i)
	progressService := do.MustInvoke[*service.ProgressService](i)

	// New credentials retire everything fetched under the old ones: the
	// client swap clears its in-memory caches, the user swap drops the
	// persisted aggregate.
	settingsService.OnChange(func(s settings.Settings) {
		clientHandle.SetCredentials(s.APIKey, s.UserID)
		progressService.SetUser(context.Background(), s.UserID)
	})

	services := &api.Services{
		Achievements: achievementService,
		Progress:     progressService,
		Settings:     settingsService,
	}

	handler := api.NewServer(services, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv}, nil
}
