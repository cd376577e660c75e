package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/trophydeck/trophydeck-server/internal/domain"
)

const metadataAppPrefix = "metadata:app:"

// CachedMetadata wraps fetched game metadata with cache info.
type CachedMetadata struct {
	Metadata  *domain.GameMetadata `json:"metadata"`
	FetchedAt time.Time            `json:"fetched_at"`
}

func metadataKey(gameID int64) []byte {
	return fmt.Appendf(nil, "%s%d", metadataAppPrefix, gameID)
}

// GetCachedMetadata retrieves cached game metadata.
// Returns nil, nil if not found or expired.
func (s *Store) GetCachedMetadata(ctx context.Context, gameID int64) (*domain.GameMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cached CachedMetadata
	err := s.get(metadataKey(gameID), &cached)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached metadata: %w", err)
	}

	if time.Since(cached.FetchedAt) > s.metadataTTL {
		return nil, nil // Treat as cache miss
	}

	return cached.Metadata, nil
}

// SetCachedMetadata stores game metadata in cache.
func (s *Store) SetCachedMetadata(ctx context.Context, gameID int64, md *domain.GameMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cached := CachedMetadata{
		Metadata:  md,
		FetchedAt: time.Now(),
	}

	if err := s.set(metadataKey(gameID), cached); err != nil {
		return fmt.Errorf("set cached metadata: %w", err)
	}
	return nil
}

// DeleteCachedMetadata removes cached game metadata. Idempotent.
func (s *Store) DeleteCachedMetadata(ctx context.Context, gameID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.delete(metadataKey(gameID))
}
