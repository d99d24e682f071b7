// Package storage provides the top-level StorageManager that coordinates
// the 2 storage areas: the earnings file cache and the watchlist database.
package storage

import (
	"fmt"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/storage/badger"
	"github.com/mileslinfeng/MilesRI/internal/storage/earningsfs"
)

// Manager implements interfaces.StorageManager using 2 storage areas.
type Manager struct {
	cache     *earningsfs.Store
	watchDB   *badger.Store
	watchlist interfaces.WatchlistStorage
	logger    *common.Logger
}

// NewManager creates a new StorageManager with the 2 storage areas.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	cacheStore, err := earningsfs.NewStore(logger, config.Storage.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}

	watchDB, err := badger.NewStore(logger, config.Storage.Watchlist.Path)
	if err != nil {
		cacheStore.Close()
		return nil, fmt.Errorf("failed to create watchlist store: %w", err)
	}

	logger.Info().
		Str("cache", config.Storage.Cache.Path).
		Str("watchlist", config.Storage.Watchlist.Path).
		Msg("Storage manager initialized (2 areas)")

	return &Manager{
		cache:     cacheStore,
		watchDB:   watchDB,
		watchlist: badger.NewWatchlistStorage(watchDB, logger),
		logger:    logger,
	}, nil
}

func (m *Manager) EarningsCacheStorage() interfaces.EarningsCacheStorage {
	return m.cache.EarningsCacheStorage()
}

func (m *Manager) RegistryStorage() interfaces.RegistryStorage {
	return m.cache.RegistryStorage()
}

func (m *Manager) WatchlistStorage() interfaces.WatchlistStorage {
	return m.watchlist
}

func (m *Manager) DataPath() string {
	return m.cache.DataPath()
}

func (m *Manager) Close() error {
	var firstErr error
	if err := m.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.watchDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
