package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/trophydeck/trophydeck-server/internal/domain"
)

func (s *Server) registerGameRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listGames",
		Method:      http.MethodGet,
		Path:        "/api/v1/games",
		Summary:     "List owned games",
		Description: "Returns owned games that can have achievement data, most played first",
		Tags:        []string{"Games"},
	}, s.handleListGames)

	huma.Register(s.api, huma.Operation{
		OperationID: "getGameAchievements",
		Method:      http.MethodGet,
		Path:        "/api/v1/games/{id}/achievements",
		Summary:     "Get game achievements",
		Description: "Returns the achievement summary for one game, cached for a few minutes",
		Tags:        []string{"Games"},
	}, s.handleGetGameAchievements)

	huma.Register(s.api, huma.Operation{
		OperationID: "getRecentAchievements",
		Method:      http.MethodGet,
		Path:        "/api/v1/achievements/recent",
		Summary:     "Get recent achievements",
		Description: "Returns the latest unlocks across recently played games, newest first",
		Tags:        []string{"Games"},
	}, s.handleGetRecentAchievements)

	huma.Register(s.api, huma.Operation{
		OperationID: "invalidateCache",
		Method:      http.MethodPost,
		Path:        "/api/v1/cache/invalidate",
		Summary:     "Invalidate caches",
		Description: "Clears the in-memory achievement caches for one game, or everything including the persisted aggregate when no game is given",
		Tags:        []string{"Cache"},
	}, s.handleInvalidateCache)
}

// === DTOs ===

// ListGamesResponse contains the owned-game list.
type ListGamesResponse struct {
	Games []domain.OwnedGame `json:"games" doc:"Owned games with community stats, most played first"`
}

// ListGamesOutput wraps the game list for Huma.
type ListGamesOutput struct {
	Body ListGamesResponse
}

// GetGameAchievementsInput contains parameters for a per-game lookup.
type GetGameAchievementsInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Steam app ID"`
}

// GameAchievementsOutput wraps the achievement summary for Huma.
type GameAchievementsOutput struct {
	Body domain.GameAchievementSummary
}

// RecentAchievementsInput contains parameters for the recent-unlock feed.
type RecentAchievementsInput struct {
	Limit int `query:"limit" default:"10" minimum:"1" maximum:"50" doc:"Maximum number of unlocks"`
}

// RecentAchievementsResponse contains the recent-unlock feed.
type RecentAchievementsResponse struct {
	Unlocks []domain.RecentUnlock `json:"unlocks" doc:"Recent unlocks, newest first"`
}

// RecentAchievementsOutput wraps the feed for Huma.
type RecentAchievementsOutput struct {
	Body RecentAchievementsResponse
}

// InvalidateCacheRequest is the request body for cache invalidation.
type InvalidateCacheRequest struct {
	GameID int64 `json:"game_id,omitempty" minimum:"0" doc:"Steam app ID; zero or absent clears everything"`
}

// InvalidateCacheInput wraps the invalidation request for Huma.
type InvalidateCacheInput struct {
	Body InvalidateCacheRequest
}

// InvalidateCacheResponse reports the invalidation outcome.
type InvalidateCacheResponse struct {
	Cleared bool `json:"cleared" doc:"Whether the caches were cleared"`
}

// InvalidateCacheOutput wraps the invalidation response for Huma.
type InvalidateCacheOutput struct {
	Body InvalidateCacheResponse
}

// === Handlers ===

func (s *Server) handleListGames(ctx context.Context, _ *struct{}) (*ListGamesOutput, error) {
	games, err := s.services.Achievements.GetUserGames(ctx)
	if err != nil {
		return nil, err
	}
	return &ListGamesOutput{Body: ListGamesResponse{Games: games}}, nil
}

func (s *Server) handleGetGameAchievements(ctx context.Context, input *GetGameAchievementsInput) (*GameAchievementsOutput, error) {
	summary, err := s.services.Achievements.GetAchievements(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &GameAchievementsOutput{Body: *summary}, nil
}

func (s *Server) handleGetRecentAchievements(ctx context.Context, input *RecentAchievementsInput) (*RecentAchievementsOutput, error) {
	unlocks, err := s.services.Achievements.GetRecentAchievements(ctx, input.Limit)
	if err != nil {
		return nil, err
	}
	return &RecentAchievementsOutput{Body: RecentAchievementsResponse{Unlocks: unlocks}}, nil
}

func (s *Server) handleInvalidateCache(ctx context.Context, input *InvalidateCacheInput) (*InvalidateCacheOutput, error) {
	s.services.Achievements.InvalidateCache(input.Body.GameID)

	// A full wipe also drops the persisted aggregate so the next progress
	// call recomputes from scratch.
	if input.Body.GameID == 0 {
		if err := s.services.Progress.InvalidateProgress(ctx); err != nil {
			return nil, err
		}
	}

	return &InvalidateCacheOutput{Body: InvalidateCacheResponse{Cleared: true}}, nil
}
