// Package badger keeps the watchlist in an embedded BadgerHold database.
package badger

import (
	"fmt"
	"os"

	"github.com/timshannon/badgerhold/v4"

	"github.com/mileslinfeng/MilesRI/internal/common"
)

// watchlistVlogSize bounds each value log file; the watchlist holds at most
// a few hundred small records
const watchlistVlogSize = 16 << 20

// Store owns the BadgerHold handle for the watchlist directory.
type Store struct {
	db     *badgerhold.Store
	path   string
	logger *common.Logger
}

// NewStore opens the watchlist database under dir, creating it if needed.
// Badger holds a directory lock, so a second process on the same dir fails here.
func NewStore(logger *common.Logger, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create watchlist directory %s: %w", dir, err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil
	options.Options = options.Options.WithValueLogFileSize(watchlistVlogSize)

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open watchlist database %s: %w", dir, err)
	}

	logger.Debug().Str("path", dir).Msg("Watchlist database opened")
	return &Store{db: db, path: dir, logger: logger}, nil
}

// Path returns the database directory
func (s *Store) Path() string {
	return s.path
}

// Close flushes and releases the database. Safe to call more than once.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("failed to close watchlist database: %w", err)
	}
	s.logger.Debug().Str("path", s.path).Msg("Watchlist database closed")
	return nil
}
