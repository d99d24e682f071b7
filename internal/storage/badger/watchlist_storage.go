package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/timshannon/badgerhold/v4"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

type watchlistStorage struct {
	store  *Store
	logger *common.Logger
}

// NewWatchlistStorage creates a new WatchlistStorage backed by BadgerHold.
// Items are keyed by symbol.
func NewWatchlistStorage(store *Store, logger *common.Logger) interfaces.WatchlistStorage {
	return &watchlistStorage{store: store, logger: logger}
}

// ListItems returns items oldest first.
func (s *watchlistStorage) ListItems(_ context.Context) ([]models.WatchlistItem, error) {
	var items []models.WatchlistItem
	if err := s.store.db.Find(&items, nil); err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].Symbol < items[j].Symbol
		}
		return items[i].AddedAt.Before(items[j].AddedAt)
	})
	return items, nil
}

func (s *watchlistStorage) GetItem(_ context.Context, symbol string) (*models.WatchlistItem, error) {
	var item models.WatchlistItem
	if err := s.store.db.Get(symbol, &item); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("watchlist item '%s': %w", symbol, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get watchlist item '%s': %w", symbol, err)
	}
	return &item, nil
}

func (s *watchlistStorage) SaveItem(_ context.Context, item *models.WatchlistItem) error {
	if err := s.store.db.Upsert(item.Symbol, item); err != nil {
		return fmt.Errorf("failed to save watchlist item: %w", err)
	}
	s.logger.Debug().Str("symbol", item.Symbol).Msg("Watchlist item saved")
	return nil
}

func (s *watchlistStorage) DeleteItem(_ context.Context, symbol string) error {
	err := s.store.db.Delete(symbol, models.WatchlistItem{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete watchlist item '%s': %w", symbol, err)
	}
	s.logger.Debug().Str("symbol", symbol).Msg("Watchlist item deleted")
	return nil
}
