package api

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trophydeck/trophydeck-server/internal/domain"
	"github.com/trophydeck/trophydeck-server/internal/service"
	"github.com/trophydeck/trophydeck-server/internal/settings"
	"github.com/trophydeck/trophydeck-server/internal/store"
	"github.com/trophydeck/trophydeck-server/internal/validation"
)

// fakeSteam backs both the achievement service and the aggregator in tests.
type fakeSteam struct {
	summaries   map[int64]*domain.GameAchievementSummary
	owned       []domain.OwnedGame
	fetchErr    error
	invalidated []int64
}

func (f *fakeSteam) FetchGameAchievements(_ context.Context, gameID int64) (*domain.GameAchievementSummary, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if s, ok := f.summaries[gameID]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no summary for game %d", gameID)
}

func (f *fakeSteam) FetchGameMetadata(_ context.Context, gameID int64) (*domain.GameMetadata, error) {
	return domain.FallbackMetadata(gameID), nil
}

func (f *fakeSteam) ListOwnedGames(context.Context) ([]domain.OwnedGame, error) {
	return f.owned, nil
}

func (f *fakeSteam) ListRecentlyPlayed(context.Context, int) ([]domain.OwnedGame, error) {
	return f.owned, nil
}

func (f *fakeSteam) Invalidate(gameID int64) {
	f.invalidated = append(f.invalidated, gameID)
}

// fakeProgressStore is an in-memory ProgressStore.
type fakeProgressStore struct {
	cached *store.CachedProgress
}

func (f *fakeProgressStore) GetCachedProgress(context.Context, string) (*store.CachedProgress, error) {
	return f.cached, nil
}

func (f *fakeProgressStore) SetCachedProgress(_ context.Context, _ string, progress *domain.OverallProgress, snapshotID string) error {
	f.cached = &store.CachedProgress{Progress: progress, FetchedAt: time.Now(), SnapshotID: snapshotID}
	return nil
}

func (f *fakeProgressStore) DeleteCachedProgress(context.Context, string) error {
	f.cached = nil
	return nil
}

type testServer struct {
	*Server
	api   humatest.TestAPI
	steam *fakeSteam
	store *fakeProgressStore
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	steam := &fakeSteam{
		summaries: map[int64]*domain.GameAchievementSummary{
			620: {GameID: 620, Total: 51, Unlocked: 51, Percentage: 100},
			440: {GameID: 440, Total: 10, Unlocked: 5, Percentage: 50},
		},
		owned: []domain.OwnedGame{
			{ID: 620, Name: "Portal 2", HasCommunityStats: true, PlaytimeMinutes: 840},
			{ID: 440, Name: "Team Fortress 2", HasCommunityStats: true, PlaytimeMinutes: 12000},
			{ID: 10, Name: "Counter-Strike", HasCommunityStats: false, PlaytimeMinutes: 5},
		},
	}
	progressStore := &fakeProgressStore{}

	settingsService, err := settings.NewService(t.TempDir(), logger, validation.New())
	require.NoError(t, err)

	services := &Services{
		Achievements: service.NewAchievementService(steam, 4, logger),
		Progress: service.NewProgressService(steam, steam, progressStore, service.ProgressOptions{
			UserID:             "76561198000000000",
			MaxConcurrentGames: 4,
			SafetyTimeout:      time.Minute,
			GameCountTolerance: 5,
		}, logger),
		Settings: settingsService,
	}

	s := NewServer(services, logger)

	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.api),
		steam:  steam,
		store:  progressStore,
	}
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.False(t, body.Configured)
}

func TestListGames(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/games")
	require.Equal(t, http.StatusOK, resp.Code)

	var body ListGamesResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Games, 2, "games without stats are filtered")
	assert.Equal(t, int64(440), body.Games[0].ID, "most played first")
}

func TestGetGameAchievements(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/games/620/achievements")
	require.Equal(t, http.StatusOK, resp.Code)

	var body domain.GameAchievementSummary
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 51, body.Total)
}

func TestGetGameAchievements_RemoteFailure(t *testing.T) {
	ts := setupTestServer(t)
	ts.steam.fetchErr = fmt.Errorf("connection refused")

	resp := ts.api.Get("/api/v1/games/620/achievements")
	assert.Equal(t, http.StatusBadGateway, resp.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &apiErr))
	assert.Equal(t, "REMOTE_UNAVAILABLE", apiErr.Code)
}

func TestGetOverallProgress(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/progress")
	require.Equal(t, http.StatusOK, resp.Code)

	var body domain.OverallProgress
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 3, body.TotalGames)
	assert.Equal(t, 61, body.TotalAchievements)
	assert.Equal(t, 1, body.PerfectGamesCount)
}

func TestInvalidateCache(t *testing.T) {
	ts := setupTestServer(t)

	// Warm the aggregate cache first.
	resp := ts.api.Get("/api/v1/progress")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, ts.store.cached)

	resp = ts.api.Post("/api/v1/cache/invalidate", map[string]any{})
	require.Equal(t, http.StatusOK, resp.Code)

	var body InvalidateCacheResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.True(t, body.Cleared)
	assert.Equal(t, []int64{0}, ts.steam.invalidated)
	assert.Nil(t, ts.store.cached, "full wipe drops the persisted aggregate")
}

func TestInvalidateCache_SingleGame(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/progress")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Post("/api/v1/cache/invalidate", map[string]any{"game_id": 620})
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, []int64{620}, ts.steam.invalidated)
	assert.NotNil(t, ts.store.cached, "per-game invalidation keeps the aggregate")
}

func TestSettingsRoundTrip(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/settings")
	require.Equal(t, http.StatusOK, resp.Code)

	var body SettingsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.False(t, body.KeyConfigured)

	resp = ts.api.Put("/api/v1/settings", map[string]any{
		"api_key": "0123456789abcdef0123456789abcdef",
		"user_id": "76561198000000000",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.True(t, body.KeyConfigured)
	assert.Equal(t, "76561198000000000", body.UserID)
}

func TestSaveSettings_Invalid(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Put("/api/v1/settings", map[string]any{
		"api_key": "too-short",
		"user_id": "not-numeric",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &apiErr))
	assert.Equal(t, "VALIDATION", apiErr.Code)
}

func TestRecentAchievements(t *testing.T) {
	ts := setupTestServer(t)

	unlockTime := int64(1700000000)
	ts.steam.summaries[440].Records = []domain.AchievementRecord{
		{APIName: "TF2_ACH", Unlocked: true, UnlockTime: &unlockTime},
	}

	resp := ts.api.Get("/api/v1/achievements/recent?limit=5")
	require.Equal(t, http.StatusOK, resp.Code)

	var body RecentAchievementsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Unlocks, 1)
	assert.Equal(t, "TF2_ACH", body.Unlocks[0].Record.APIName)
}
