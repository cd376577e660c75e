// Package service holds the application services: per-game achievement
// lookups and the single-flight library-wide progress aggregator.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/trophydeck/trophydeck-server/internal/domain"
	domainerrors "github.com/trophydeck/trophydeck-server/internal/errors"
	"github.com/trophydeck/trophydeck-server/internal/steam"
)

// recentGamesWindow is how many recently played games feed the unlock feed.
const recentGamesWindow = 10

// AchievementClient is the remote-data surface AchievementService consumes.
type AchievementClient interface {
	FetchGameAchievements(ctx context.Context, gameID int64) (*domain.GameAchievementSummary, error)
	ListOwnedGames(ctx context.Context) ([]domain.OwnedGame, error)
	ListRecentlyPlayed(ctx context.Context, count int) ([]domain.OwnedGame, error)
	Invalidate(gameID int64)
}

// AchievementService exposes per-game achievement data and the recent-unlock
// feed to the API layer.
type AchievementService struct {
	client AchievementClient
	logger *slog.Logger
	fanout int64
}

// NewAchievementService creates a new achievement service. fanout bounds how
// many per-game pipelines the recent-unlock feed runs concurrently; values
// below one fall back to one.
func NewAchievementService(client AchievementClient, fanout int, logger *slog.Logger) *AchievementService {
	if fanout < 1 {
		fanout = 1
	}
	return &AchievementService{
		client: client,
		logger: logger,
		fanout: int64(fanout),
	}
}

// GetAchievements returns the achievement summary for one game.
func (s *AchievementService) GetAchievements(ctx context.Context, gameID int64) (*domain.GameAchievementSummary, error) {
	if gameID <= 0 {
		return nil, domainerrors.Validation("game_id must be positive")
	}

	summary, err := s.client.FetchGameAchievements(ctx, gameID)
	if err != nil {
		return nil, mapClientError(err, false)
	}
	return summary, nil
}

// GetUserGames returns owned games that can have achievement data, most
// played first.
func (s *AchievementService) GetUserGames(ctx context.Context) ([]domain.OwnedGame, error) {
	owned, err := s.client.ListOwnedGames(ctx)
	if err != nil {
		return nil, mapClientError(err, true)
	}

	games := make([]domain.OwnedGame, 0, len(owned))
	for _, g := range owned {
		if g.HasCommunityStats {
			games = append(games, g)
		}
	}

	slices.SortFunc(games, func(a, b domain.OwnedGame) int {
		return b.PlaytimeMinutes - a.PlaytimeMinutes
	})

	return games, nil
}

// GetRecentAchievements returns the latest unlocks across recently played
// games, newest first, at most limit entries. Games that fail to fetch or
// have no achievements are skipped.
func (s *AchievementService) GetRecentAchievements(ctx context.Context, limit int) ([]domain.RecentUnlock, error) {
	if limit <= 0 {
		limit = 10
	}

	recent, err := s.client.ListRecentlyPlayed(ctx, recentGamesWindow)
	if err != nil {
		return nil, mapClientError(err, true)
	}

	sem := semaphore.NewWeighted(s.fanout)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		unlocks []domain.RecentUnlock
	)

	for _, game := range recent {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(game domain.OwnedGame) {
			defer wg.Done()
			defer sem.Release(1)

			summary, err := s.client.FetchGameAchievements(ctx, game.ID)
			if err != nil {
				s.logger.Debug("skipping game in recent feed", "game_id", game.ID, "error", err)
				return
			}

			var found []domain.RecentUnlock
			for _, rec := range summary.Records {
				if rec.Unlocked && rec.UnlockTime != nil {
					found = append(found, domain.RecentUnlock{
						GameID:   game.ID,
						GameName: game.Name,
						Record:   rec,
					})
				}
			}
			if len(found) == 0 {
				return
			}

			mu.Lock()
			unlocks = append(unlocks, found...)
			mu.Unlock()
		}(game)
	}

	wg.Wait()

	slices.SortFunc(unlocks, func(a, b domain.RecentUnlock) int {
		switch {
		case *b.Record.UnlockTime > *a.Record.UnlockTime:
			return 1
		case *b.Record.UnlockTime < *a.Record.UnlockTime:
			return -1
		default:
			return 0
		}
	})

	if len(unlocks) > limit {
		unlocks = unlocks[:limit]
	}
	if unlocks == nil {
		unlocks = []domain.RecentUnlock{}
	}
	return unlocks, nil
}

// InvalidateCache clears the client's in-memory caches for one game, or all
// of them when gameID is zero.
func (s *AchievementService) InvalidateCache(gameID int64) {
	s.client.Invalidate(gameID)
}

// mapClientError translates steam-client sentinels into coded domain errors.
// Catalog-level operations report CatalogUnavailable instead of
// RemoteUnavailable so a failed recomputation is distinguishable from a
// failed single-game fetch.
func mapClientError(err error, catalog bool) error {
	switch {
	case errors.Is(err, steam.ErrMissingCredentials):
		return domainerrors.MissingCredentials("Steam API key or user ID not configured")
	case errors.Is(err, steam.ErrRateLimited):
		return domainerrors.RateLimited("rate limited by Steam, retry later")
	case errors.Is(err, steam.ErrShutdown):
		return domainerrors.Internal("client is shut down")
	case catalog:
		return domainerrors.CatalogUnavailable("failed to fetch game catalog").WithCause(err)
	default:
		return domainerrors.RemoteUnavailable("failed to fetch achievement data").WithCause(err)
	}
}
