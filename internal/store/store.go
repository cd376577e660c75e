// Package store persists aggregation results and slow-changing game metadata
// in a Badger database. Cached documents carry their fetch timestamp; expiry
// is evaluated lazily on read, so a stale document simply reads as a miss.
package store

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	// Metadata barely changes; progress is rebuilt on demand anyway.
	defaultMetadataTTL = 24 * time.Hour
	defaultProgressTTL = 24 * time.Hour
)

// Options tunes cache durations. Zero values fall back to defaults.
type Options struct {
	MetadataTTL time.Duration
	ProgressTTL time.Duration
}

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	metadataTTL time.Duration
	progressTTL time.Duration
}

// New opens (or creates) the database at path.
func New(path string, logger *slog.Logger, opts Options) (*Store, error) {
	if opts.MetadataTTL <= 0 {
		opts.MetadataTTL = defaultMetadataTTL
	}
	if opts.ProgressTTL <= 0 {
		opts.ProgressTTL = defaultProgressTTL
	}

	badgerOpts := badger.DefaultOptions(path)
	badgerOpts.Logger = nil            // Disable Badger's internal logging
	badgerOpts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	badgerOpts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return &Store{
		db:          db,
		logger:      logger,
		metadataTTL: opts.MetadataTTL,
		progressTTL: opts.ProgressTTL,
	}, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// Helper methods for database operations.

// get retrieves a value by key. Returns badger.ErrKeyNotFound on a miss.
func (s *Store) get(key []byte, dest any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
}

// set stores a value by key.
func (s *Store) set(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// delete removes a key. Missing keys are not an error.
func (s *Store) delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
