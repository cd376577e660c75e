package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/trophydeck/trophydeck-server/internal/domain"
	domainerrors "github.com/trophydeck/trophydeck-server/internal/errors"
	"github.com/trophydeck/trophydeck-server/internal/id"
	"github.com/trophydeck/trophydeck-server/internal/store"
)

const (
	defaultMaxConcurrentGames = 4
	defaultSafetyTimeout      = 5 * time.Minute
	defaultGameCountTolerance = 5
)

// GameCatalogProvider supplies the owned-game catalog. The production
// implementation is the Steam client; tests use fakes.
type GameCatalogProvider interface {
	ListOwnedGames(ctx context.Context) ([]domain.OwnedGame, error)
}

// AchievementFetcher is the per-game data surface the aggregator fans out
// over.
type AchievementFetcher interface {
	FetchGameAchievements(ctx context.Context, gameID int64) (*domain.GameAchievementSummary, error)
	FetchGameMetadata(ctx context.Context, gameID int64) (*domain.GameMetadata, error)
}

// ProgressStore persists the computed aggregate between runs.
type ProgressStore interface {
	GetCachedProgress(ctx context.Context, userID string) (*store.CachedProgress, error)
	SetCachedProgress(ctx context.Context, userID string, progress *domain.OverallProgress, snapshotID string) error
	DeleteCachedProgress(ctx context.Context, userID string) error
}

// computeState is the aggregator's single-flight state.
type computeState int

const (
	stateIdle computeState = iota
	stateComputing
)

// ProgressOptions tunes the aggregator. Zero values fall back to defaults.
type ProgressOptions struct {
	UserID string

	// MaxConcurrentGames bounds logical per-game pipelines, independent of
	// the client's raw-request permit pool.
	MaxConcurrentGames int

	// SafetyTimeout forces the state back to idle if a computation appears
	// stuck, so a hung sub-fetch cannot wedge the engine permanently.
	SafetyTimeout time.Duration

	// GameCountTolerance is the allowed drift between the cached total_games
	// and the live catalog before a cached aggregate is considered stale.
	GameCountTolerance int
}

// ProgressService computes the library-wide achievement aggregate under a
// single-flight guard: at most one full recomputation runs at a time, and
// concurrent callers share the cache or get an explicit retry-later error.
type ProgressService struct {
	catalog GameCatalogProvider
	fetcher AchievementFetcher
	store   ProgressStore
	logger  *slog.Logger

	maxConcurrentGames int64
	safetyTimeout      time.Duration
	gameCountTolerance int

	mu        sync.Mutex
	state     computeState
	startedAt time.Time
	userID    string
}

// NewProgressService creates a new progress aggregator.
func NewProgressService(catalog GameCatalogProvider, fetcher AchievementFetcher, progressStore ProgressStore, opts ProgressOptions, logger *slog.Logger) *ProgressService {
	if opts.MaxConcurrentGames <= 0 {
		opts.MaxConcurrentGames = defaultMaxConcurrentGames
	}
	if opts.SafetyTimeout <= 0 {
		opts.SafetyTimeout = defaultSafetyTimeout
	}
	if opts.GameCountTolerance < 0 {
		opts.GameCountTolerance = defaultGameCountTolerance
	}

	return &ProgressService{
		catalog:            catalog,
		fetcher:            fetcher,
		store:              progressStore,
		logger:             logger,
		maxConcurrentGames: int64(opts.MaxConcurrentGames),
		safetyTimeout:      opts.SafetyTimeout,
		gameCountTolerance: opts.GameCountTolerance,
		userID:             opts.UserID,
	}
}

// SetUser switches the aggregator to a different user and drops the previous
// user's cached aggregate.
func (s *ProgressService) SetUser(ctx context.Context, userID string) {
	s.mu.Lock()
	previous := s.userID
	s.userID = userID
	s.mu.Unlock()

	if previous != "" && previous != userID {
		if err := s.store.DeleteCachedProgress(ctx, previous); err != nil {
			s.logger.Warn("failed to drop previous user's aggregate", "error", err)
		}
	}
}

func (s *ProgressService) currentUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// InvalidateProgress deletes the persisted aggregate so the next call
// recomputes from scratch.
func (s *ProgressService) InvalidateProgress(ctx context.Context) error {
	return s.store.DeleteCachedProgress(ctx, s.currentUser())
}

// tryBeginCompute attempts the Idle -> Computing transition. A computation
// older than the safety timeout is treated as abandoned and taken over.
func (s *ProgressService) tryBeginCompute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateComputing && time.Since(s.startedAt) < s.safetyTimeout {
		return false
	}
	if s.state == stateComputing {
		s.logger.Warn("previous computation exceeded safety timeout, taking over",
			"started_at", s.startedAt)
	}
	s.state = stateComputing
	s.startedAt = time.Now()
	return true
}

func (s *ProgressService) endCompute() {
	s.mu.Lock()
	s.state = stateIdle
	s.mu.Unlock()
}

// ComputeProgress returns the library-wide aggregate. Without force it serves
// a cached aggregate that is inside its TTL and whose recorded game count is
// within tolerance of the live catalog. When another computation is already
// running, callers get the cache if one exists, else ComputationInProgress.
func (s *ProgressService) ComputeProgress(ctx context.Context, force bool) (*domain.OverallProgress, error) {
	userID := s.currentUser()

	var cached *store.CachedProgress
	if !force {
		var err error
		cached, err = s.store.GetCachedProgress(ctx, userID)
		if err != nil {
			s.logger.Warn("aggregate cache read failed", "error", err)
		}
	}

	if !s.tryBeginCompute() {
		if cached != nil {
			s.logger.Debug("computation in progress, serving cached aggregate")
			return cached.Progress, nil
		}
		if force {
			// Forced callers are single-flighted too; without a cache there
			// is nothing to hand them but a retry-later.
			if c, err := s.store.GetCachedProgress(ctx, userID); err == nil && c != nil {
				return c.Progress, nil
			}
		}
		return nil, domainerrors.ComputationInProgress("progress computation already running, retry shortly")
	}
	defer s.endCompute()

	// Catalog fetch doubles as the staleness probe: the live game count
	// decides whether a TTL-valid cache can still be trusted. Without it the
	// cache cannot be vouched for either, so a catalog failure aborts the
	// request and leaves any cached aggregate untouched.
	games, err := s.catalog.ListOwnedGames(ctx)
	if err != nil {
		return nil, mapClientError(err, true)
	}

	if cached != nil && s.withinTolerance(cached.Progress.TotalGames, len(games)) {
		return cached.Progress, nil
	}

	runID := uuid.NewString()
	progress := s.aggregate(ctx, runID, games)

	if err := progress.Normalize(); err != nil {
		// Can only happen if the merge itself is broken.
		return nil, domainerrors.Internal("computed aggregate failed validation").WithCause(err)
	}

	// A persist failure must not discard a successful computation.
	snapshotID := id.MustGenerate("snap")
	if err := s.store.SetCachedProgress(ctx, userID, progress, snapshotID); err != nil {
		s.logger.Error("failed to persist aggregate", "run_id", runID, "error", err)
	}

	return progress, nil
}

func (s *ProgressService) withinTolerance(cachedTotal, liveTotal int) bool {
	drift := liveTotal - cachedTotal
	if drift < 0 {
		drift = -drift
	}
	return drift <= s.gameCountTolerance
}

// aggregate fans out per-game fetches over the candidate games and merges the
// results. Per-game failures are logged and absorbed; they reduce
// processed_games but never fail the computation.
func (s *ProgressService) aggregate(ctx context.Context, runID string, games []domain.OwnedGame) *domain.OverallProgress {
	candidates := make([]domain.OwnedGame, 0, len(games))
	for _, g := range games {
		if g.HasCommunityStats {
			candidates = append(candidates, g)
		}
	}

	s.logger.Info("computing overall progress",
		"run_id", runID,
		"total_games", len(games),
		"candidates", len(candidates),
	)

	type gameResult struct {
		game    domain.OwnedGame
		summary *domain.GameAchievementSummary
	}

	sem := semaphore.NewWeighted(s.maxConcurrentGames)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []gameResult
	)

	for _, game := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			s.logger.Warn("fan-out cancelled", "run_id", runID, "error", err)
			break
		}

		wg.Add(1)
		go func(game domain.OwnedGame) {
			defer wg.Done()
			defer sem.Release(1)

			summary, err := s.fetcher.FetchGameAchievements(ctx, game.ID)
			if err != nil {
				s.logger.Warn("per-game fetch failed",
					"run_id", runID, "game_id", game.ID, "error", err)
				return
			}

			mu.Lock()
			results = append(results, gameResult{game: game, summary: summary})
			mu.Unlock()
		}(game)
	}

	wg.Wait()

	progress := &domain.OverallProgress{
		TotalGames:  len(games),
		LastUpdated: time.Now().Unix(),
	}

	for _, r := range results {
		progress.ProcessedGames++
		if r.summary.Total == 0 {
			continue
		}

		progress.GamesWithAchievements++
		progress.TotalAchievements += r.summary.Total
		progress.UnlockedAchievements += r.summary.Unlocked

		if r.summary.Perfect() {
			progress.PerfectGames = append(progress.PerfectGames, s.perfectGameEntry(ctx, r.game, r.summary))
		}
	}

	progress.AverageCompletion = domain.CompletionPercent(progress.UnlockedAchievements, progress.TotalAchievements)
	if progress.PerfectGames == nil {
		progress.PerfectGames = []domain.PerfectGame{}
	}
	progress.PerfectGamesCount = len(progress.PerfectGames)

	s.logger.Info("overall progress computed",
		"run_id", runID,
		"processed", progress.ProcessedGames,
		"with_achievements", progress.GamesWithAchievements,
		"unlocked", progress.UnlockedAchievements,
		"total", progress.TotalAchievements,
		"perfect", progress.PerfectGamesCount,
	)

	return progress
}

// perfectGameEntry enriches a perfect game with display metadata. Best-effort:
// a metadata failure records the entry with an empty header image.
func (s *ProgressService) perfectGameEntry(ctx context.Context, game domain.OwnedGame, summary *domain.GameAchievementSummary) domain.PerfectGame {
	entry := domain.PerfectGame{
		GameID:           game.ID,
		Name:             game.Name,
		AchievementCount: summary.Total,
	}

	md, err := s.fetcher.FetchGameMetadata(ctx, game.ID)
	if err != nil {
		s.logger.Debug("metadata lookup for perfect game failed", "game_id", game.ID, "error", err)
		return entry
	}
	entry.HeaderImage = md.HeaderImage
	if entry.Name == "" {
		entry.Name = md.Name
	}

	return entry
}
