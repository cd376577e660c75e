package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trophydeck/trophydeck-server/internal/domain"
	domainerrors "github.com/trophydeck/trophydeck-server/internal/errors"
	"github.com/trophydeck/trophydeck-server/internal/store"
)

const testUserID = "76561198000000000"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeCatalog serves a fixed game list or a fixed error.
type fakeCatalog struct {
	games []domain.OwnedGame
	err   error
	calls atomic.Int64
}

func (f *fakeCatalog) ListOwnedGames(context.Context) ([]domain.OwnedGame, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.games, nil
}

// fakeFetcher returns canned summaries per game. A nil summary entry makes
// that game's fetch fail. Optional block gates every fetch for concurrency
// tests.
type fakeFetcher struct {
	summaries map[int64]*domain.GameAchievementSummary
	metadata  map[int64]*domain.GameMetadata
	block     chan struct{}
	fetches   atomic.Int64
}

func (f *fakeFetcher) FetchGameAchievements(ctx context.Context, gameID int64) (*domain.GameAchievementSummary, error) {
	f.fetches.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	summary, ok := f.summaries[gameID]
	if !ok || summary == nil {
		return nil, fmt.Errorf("fetch failed for game %d", gameID)
	}
	return summary, nil
}

func (f *fakeFetcher) FetchGameMetadata(_ context.Context, gameID int64) (*domain.GameMetadata, error) {
	if md, ok := f.metadata[gameID]; ok {
		return md, nil
	}
	return nil, fmt.Errorf("no metadata for game %d", gameID)
}

// fakeStore is an in-memory ProgressStore.
type fakeStore struct {
	mu     sync.Mutex
	cached *store.CachedProgress
	setErr error
}

func (f *fakeStore) GetCachedProgress(context.Context, string) (*store.CachedProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached, nil
}

func (f *fakeStore) SetCachedProgress(_ context.Context, _ string, progress *domain.OverallProgress, snapshotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.cached = &store.CachedProgress{
		Progress:   progress,
		FetchedAt:  time.Now(),
		SnapshotID: snapshotID,
	}
	return nil
}

func (f *fakeStore) DeleteCachedProgress(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = nil
	return nil
}

func summaryFor(gameID int64, total, unlocked int) *domain.GameAchievementSummary {
	return &domain.GameAchievementSummary{
		GameID:     gameID,
		Total:      total,
		Unlocked:   unlocked,
		Percentage: domain.CompletionPercent(unlocked, total),
	}
}

func gamesWithStats(n int) []domain.OwnedGame {
	games := make([]domain.OwnedGame, 0, n)
	for i := 1; i <= n; i++ {
		games = append(games, domain.OwnedGame{
			ID:                int64(i),
			Name:              fmt.Sprintf("Game %d", i),
			HasCommunityStats: true,
		})
	}
	return games
}

func newProgressService(catalog GameCatalogProvider, fetcher AchievementFetcher, st ProgressStore) *ProgressService {
	return NewProgressService(catalog, fetcher, st, ProgressOptions{
		UserID:             testUserID,
		MaxConcurrentGames: 4,
		SafetyTimeout:      time.Minute,
		GameCountTolerance: 5,
	}, testLogger())
}

func TestComputeProgress_EndToEnd(t *testing.T) {
	games := []domain.OwnedGame{
		{ID: 1, Name: "Perfect Game", HasCommunityStats: true},
		{ID: 2, Name: "Half Done", HasCommunityStats: true},
		{ID: 3, Name: "No Achievements", HasCommunityStats: true},
	}
	fetcher := &fakeFetcher{
		summaries: map[int64]*domain.GameAchievementSummary{
			1: summaryFor(1, 10, 10),
			2: summaryFor(2, 20, 5),
			3: summaryFor(3, 0, 0),
		},
		metadata: map[int64]*domain.GameMetadata{
			1: {ID: 1, Name: "Perfect Game", HeaderImage: "http://img/1.jpg"},
		},
	}

	svc := newProgressService(&fakeCatalog{games: games}, fetcher, &fakeStore{})

	progress, err := svc.ComputeProgress(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 3, progress.TotalGames)
	assert.Equal(t, 2, progress.GamesWithAchievements)
	assert.Equal(t, 30, progress.TotalAchievements)
	assert.Equal(t, 15, progress.UnlockedAchievements)
	assert.Equal(t, 50.0, progress.AverageCompletion)
	assert.Equal(t, 1, progress.PerfectGamesCount)
	assert.Equal(t, 3, progress.ProcessedGames)
	assert.NotZero(t, progress.LastUpdated)

	require.Len(t, progress.PerfectGames, 1)
	assert.Equal(t, int64(1), progress.PerfectGames[0].GameID)
	assert.Equal(t, 10, progress.PerfectGames[0].AchievementCount)
	assert.Equal(t, "http://img/1.jpg", progress.PerfectGames[0].HeaderImage)
}

func TestComputeProgress_PartialFailure(t *testing.T) {
	games := gamesWithStats(10)
	summaries := make(map[int64]*domain.GameAchievementSummary, 10)
	for i := int64(1); i <= 10; i++ {
		if i == 7 {
			summaries[i] = nil // game #7 fails
			continue
		}
		summaries[i] = summaryFor(i, 10, 5)
	}

	svc := newProgressService(&fakeCatalog{games: games}, &fakeFetcher{summaries: summaries}, &fakeStore{})

	progress, err := svc.ComputeProgress(context.Background(), false)
	require.NoError(t, err, "one bad game must not fail the computation")

	assert.Equal(t, 9, progress.ProcessedGames)
	assert.Equal(t, 10, progress.TotalGames)
	assert.Equal(t, 90, progress.TotalAchievements)
}

func TestComputeProgress_SingleFlight(t *testing.T) {
	games := gamesWithStats(3)
	fetcher := &fakeFetcher{
		summaries: map[int64]*domain.GameAchievementSummary{
			1: summaryFor(1, 5, 1),
			2: summaryFor(2, 5, 2),
			3: summaryFor(3, 5, 3),
		},
		block: make(chan struct{}),
	}

	svc := newProgressService(&fakeCatalog{games: games}, fetcher, &fakeStore{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.ComputeProgress(context.Background(), false)
		firstDone <- err
	}()

	// Wait until the first computation is inside the fan-out.
	require.Eventually(t, func() bool {
		return fetcher.fetches.Load() > 0
	}, 2*time.Second, 5*time.Millisecond)

	// Concurrent caller with no cache yet gets an explicit retry-later.
	_, err := svc.ComputeProgress(context.Background(), false)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrComputationInProgress))

	close(fetcher.block)
	require.NoError(t, <-firstDone)

	// Exactly one fan-out across both callers: one fetch per candidate game.
	assert.Equal(t, int64(len(games)), fetcher.fetches.Load())
}

func TestComputeProgress_SingleFlightServesCache(t *testing.T) {
	games := gamesWithStats(2)
	fetcher := &fakeFetcher{
		summaries: map[int64]*domain.GameAchievementSummary{
			1: summaryFor(1, 5, 1),
			2: summaryFor(2, 5, 2),
		},
		block: make(chan struct{}),
	}

	st := &fakeStore{cached: &store.CachedProgress{
		Progress:  &domain.OverallProgress{TotalGames: 2, PerfectGames: []domain.PerfectGame{}},
		FetchedAt: time.Now(),
	}}
	svc := newProgressService(&fakeCatalog{games: games}, fetcher, st)

	firstDone := make(chan struct{})
	go func() {
		// Force bypasses the drift check so the fan-out actually runs.
		svc.ComputeProgress(context.Background(), true)
		close(firstDone)
	}()

	require.Eventually(t, func() bool {
		return fetcher.fetches.Load() > 0
	}, 2*time.Second, 5*time.Millisecond)

	got, err := svc.ComputeProgress(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalGames, "contending caller must get the cached aggregate")

	close(fetcher.block)
	<-firstDone
}

func TestComputeProgress_StalenessTolerance(t *testing.T) {
	cachedProgress := &domain.OverallProgress{
		TotalGames:        50,
		TotalAchievements: 100,
		PerfectGames:      []domain.PerfectGame{},
	}

	tests := []struct {
		name          string
		liveGames     int
		wantRecompute bool
	}{
		{"drift within tolerance", 52, false},
		{"drift beyond tolerance", 60, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			games := gamesWithStats(tt.liveGames)
			summaries := make(map[int64]*domain.GameAchievementSummary, tt.liveGames)
			for i := int64(1); i <= int64(tt.liveGames); i++ {
				summaries[i] = summaryFor(i, 2, 1)
			}
			fetcher := &fakeFetcher{summaries: summaries}

			st := &fakeStore{cached: &store.CachedProgress{
				Progress:  cachedProgress,
				FetchedAt: time.Now().Add(-time.Hour),
			}}
			svc := newProgressService(&fakeCatalog{games: games}, fetcher, st)

			got, err := svc.ComputeProgress(context.Background(), false)
			require.NoError(t, err)

			if tt.wantRecompute {
				assert.Equal(t, tt.liveGames, got.TotalGames)
				assert.Positive(t, fetcher.fetches.Load())
			} else {
				assert.Equal(t, 50, got.TotalGames, "cache must be returned unchanged")
				assert.Zero(t, fetcher.fetches.Load(), "no fan-out on a valid cache hit")
			}
		})
	}
}

func TestComputeProgress_ForceBypassesCache(t *testing.T) {
	games := gamesWithStats(1)
	fetcher := &fakeFetcher{
		summaries: map[int64]*domain.GameAchievementSummary{1: summaryFor(1, 4, 4)},
		metadata:  map[int64]*domain.GameMetadata{1: {ID: 1, Name: "Game 1"}},
	}

	st := &fakeStore{cached: &store.CachedProgress{
		Progress:  &domain.OverallProgress{TotalGames: 1, PerfectGames: []domain.PerfectGame{}},
		FetchedAt: time.Now(),
	}}
	svc := newProgressService(&fakeCatalog{games: games}, fetcher, st)

	got, err := svc.ComputeProgress(context.Background(), true)
	require.NoError(t, err)

	assert.Positive(t, fetcher.fetches.Load())
	assert.Equal(t, 1, got.PerfectGamesCount)
}

func TestComputeProgress_CatalogFailure(t *testing.T) {
	svc := newProgressService(&fakeCatalog{err: fmt.Errorf("steam is down")}, &fakeFetcher{}, &fakeStore{})

	_, err := svc.ComputeProgress(context.Background(), false)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrCatalogUnavailable))
}

func TestComputeProgress_CatalogFailureWithCache(t *testing.T) {
	st := &fakeStore{cached: &store.CachedProgress{
		Progress:  &domain.OverallProgress{TotalGames: 7, PerfectGames: []domain.PerfectGame{}},
		FetchedAt: time.Now(),
	}}
	svc := newProgressService(&fakeCatalog{err: fmt.Errorf("steam is down")}, &fakeFetcher{}, st)

	// Without the live game count the cached aggregate cannot be vouched
	// for, so the failure surfaces even though the cache is fresh.
	_, err := svc.ComputeProgress(context.Background(), false)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrCatalogUnavailable))
	assert.NotNil(t, st.cached, "the cached aggregate is left untouched")
}

func TestComputeProgress_PersistFailureStillReturnsResult(t *testing.T) {
	games := gamesWithStats(1)
	fetcher := &fakeFetcher{
		summaries: map[int64]*domain.GameAchievementSummary{1: summaryFor(1, 3, 1)},
	}

	st := &fakeStore{setErr: fmt.Errorf("disk full")}
	svc := newProgressService(&fakeCatalog{games: games}, fetcher, st)

	got, err := svc.ComputeProgress(context.Background(), false)
	require.NoError(t, err, "a persist failure must not discard the computation")
	assert.Equal(t, 3, got.TotalAchievements)
}

func TestComputeProgress_PerfectGameMetadataFailure(t *testing.T) {
	games := gamesWithStats(1)
	fetcher := &fakeFetcher{
		summaries: map[int64]*domain.GameAchievementSummary{1: summaryFor(1, 5, 5)},
		// no metadata: lookup fails
	}

	svc := newProgressService(&fakeCatalog{games: games}, fetcher, &fakeStore{})

	got, err := svc.ComputeProgress(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, got.PerfectGames, 1)
	assert.Equal(t, "Game 1", got.PerfectGames[0].Name)
	assert.Empty(t, got.PerfectGames[0].HeaderImage, "metadata failure records the entry with an empty image")
}

func TestComputeProgress_SkipsGamesWithoutStats(t *testing.T) {
	games := []domain.OwnedGame{
		{ID: 1, Name: "Has Stats", HasCommunityStats: true},
		{ID: 2, Name: "No Stats", HasCommunityStats: false},
	}
	fetcher := &fakeFetcher{
		summaries: map[int64]*domain.GameAchievementSummary{
			1: summaryFor(1, 4, 2),
			2: summaryFor(2, 4, 2),
		},
	}

	svc := newProgressService(&fakeCatalog{games: games}, fetcher, &fakeStore{})

	got, err := svc.ComputeProgress(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, got.TotalGames, "filtered games still count toward total_games")
	assert.Equal(t, 1, got.ProcessedGames)
	assert.Equal(t, int64(1), fetcher.fetches.Load(), "no remote call for games without community stats")
}

func TestComputeProgress_BoundsFanOut(t *testing.T) {
	const bound = 2
	games := gamesWithStats(8)
	summaries := make(map[int64]*domain.GameAchievementSummary, 8)
	for i := int64(1); i <= 8; i++ {
		summaries[i] = summaryFor(i, 2, 1)
	}

	var inFlight, maxInFlight atomic.Int64
	fetcher := &countingFetcher{
		inner:       &fakeFetcher{summaries: summaries},
		inFlight:    &inFlight,
		maxInFlight: &maxInFlight,
	}

	svc := NewProgressService(&fakeCatalog{games: games}, fetcher, &fakeStore{}, ProgressOptions{
		UserID:             testUserID,
		MaxConcurrentGames: bound,
		SafetyTimeout:      time.Minute,
		GameCountTolerance: 5,
	}, testLogger())

	_, err := svc.ComputeProgress(context.Background(), false)
	require.NoError(t, err)
	assert.LessOrEqual(t, maxInFlight.Load(), int64(bound))
}

// countingFetcher tracks concurrent FetchGameAchievements calls.
type countingFetcher struct {
	inner       *fakeFetcher
	inFlight    *atomic.Int64
	maxInFlight *atomic.Int64
}

func (c *countingFetcher) FetchGameAchievements(ctx context.Context, gameID int64) (*domain.GameAchievementSummary, error) {
	cur := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		maxSeen := c.maxInFlight.Load()
		if cur <= maxSeen || c.maxInFlight.CompareAndSwap(maxSeen, cur) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return c.inner.FetchGameAchievements(ctx, gameID)
}

func (c *countingFetcher) FetchGameMetadata(ctx context.Context, gameID int64) (*domain.GameMetadata, error) {
	return c.inner.FetchGameMetadata(ctx, gameID)
}

func TestSetUser_DropsPreviousAggregate(t *testing.T) {
	st := &fakeStore{cached: &store.CachedProgress{
		Progress:  &domain.OverallProgress{TotalGames: 5, PerfectGames: []domain.PerfectGame{}},
		FetchedAt: time.Now(),
	}}
	svc := newProgressService(&fakeCatalog{}, &fakeFetcher{}, st)

	svc.SetUser(context.Background(), "76561198000000001")

	cached, err := st.GetCachedProgress(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestSafetyTimeout_RecoversWedgedState(t *testing.T) {
	games := gamesWithStats(1)
	fetcher := &fakeFetcher{
		summaries: map[int64]*domain.GameAchievementSummary{1: summaryFor(1, 2, 1)},
	}

	svc := NewProgressService(&fakeCatalog{games: games}, fetcher, &fakeStore{}, ProgressOptions{
		UserID:             testUserID,
		MaxConcurrentGames: 2,
		SafetyTimeout:      10 * time.Millisecond,
		GameCountTolerance: 5,
	}, testLogger())

	// Wedge the state machine as an abandoned computation would.
	require.True(t, svc.tryBeginCompute())
	time.Sleep(20 * time.Millisecond)

	got, err := svc.ComputeProgress(context.Background(), false)
	require.NoError(t, err, "safety timeout must allow a fresh computation to take over")
	assert.Equal(t, 1, got.TotalGames)
}
