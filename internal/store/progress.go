package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/trophydeck/trophydeck-server/internal/domain"
)

const progressOverallPrefix = "progress:overall:"

// CachedProgress wraps a computed aggregate with cache info. SnapshotID
// identifies the computation run that produced it, for log correlation.
type CachedProgress struct {
	Progress   *domain.OverallProgress `json:"progress"`
	FetchedAt  time.Time               `json:"fetched_at"`
	SnapshotID string                  `json:"snapshot_id"`
}

func progressKey(userID string) []byte {
	return fmt.Appendf(nil, "%s%s", progressOverallPrefix, userID)
}

// GetCachedProgress retrieves the cached aggregate for a user.
// Returns nil, nil if not found or expired.
func (s *Store) GetCachedProgress(ctx context.Context, userID string) (*CachedProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cached CachedProgress
	err := s.get(progressKey(userID), &cached)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached progress: %w", err)
	}

	if time.Since(cached.FetchedAt) > s.progressTTL {
		return nil, nil // Treat as cache miss
	}

	// A document that fails normalization is corrupt; drop it rather than
	// serve garbage.
	if cached.Progress == nil || cached.Progress.Normalize() != nil {
		if s.logger != nil {
			s.logger.Warn("discarding corrupt cached progress", "user_id", userID)
		}
		if delErr := s.delete(progressKey(userID)); delErr != nil {
			return nil, fmt.Errorf("delete corrupt progress: %w", delErr)
		}
		return nil, nil
	}

	return &cached, nil
}

// SetCachedProgress stores a computed aggregate for a user.
func (s *Store) SetCachedProgress(ctx context.Context, userID string, progress *domain.OverallProgress, snapshotID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cached := CachedProgress{
		Progress:   progress,
		FetchedAt:  time.Now(),
		SnapshotID: snapshotID,
	}

	if err := s.set(progressKey(userID), cached); err != nil {
		return fmt.Errorf("set cached progress: %w", err)
	}
	return nil
}

// DeleteCachedProgress removes the cached aggregate for a user. Idempotent.
func (s *Store) DeleteCachedProgress(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.delete(progressKey(userID))
}
