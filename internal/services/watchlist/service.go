// Package watchlist manages the set of tracked symbols and notifies
// listeners when it changes
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

// Compile-time interface check
var _ interfaces.WatchlistService = (*Service)(nil)

// Service implements WatchlistService
type Service struct {
	storage interfaces.WatchlistStorage
	logger  *common.Logger
	now     func() time.Time

	mu        sync.Mutex // serializes read-modify-write on the store
	listenMu  sync.RWMutex
	listeners map[int]interfaces.WatchlistListener
	nextID    int
}

// NewService creates a new watchlist service
func NewService(storage interfaces.WatchlistStorage, logger *common.Logger) *Service {
	return &Service{
		storage:   storage,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]interfaces.WatchlistListener),
	}
}

// List returns the tracked items, oldest first
func (s *Service) List(ctx context.Context) ([]models.WatchlistItem, error) {
	items, err := s.storage.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	if items == nil {
		items = []models.WatchlistItem{}
	}
	return items, nil
}

// Symbols returns the tracked symbols, oldest first
func (s *Service) Symbols(ctx context.Context) ([]string, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(items))
	for _, item := range items {
		symbols = append(symbols, item.Symbol)
	}
	return symbols, nil
}

// Add tracks symbol. Adding a tracked symbol returns the existing item with
// created=false and notifies nobody.
func (s *Service) Add(ctx context.Context, raw string) (*models.WatchlistItem, bool, error) {
	symbol, err := common.NormalizeSymbol(raw)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	existing, err := s.storage.GetItem(ctx, symbol)
	if err == nil {
		s.mu.Unlock()
		return existing, false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		s.mu.Unlock()
		return nil, false, fmt.Errorf("failed to get watchlist item: %w", err)
	}

	item := &models.WatchlistItem{Symbol: symbol, AddedAt: s.now().UTC()}
	if err := s.storage.SaveItem(ctx, item); err != nil {
		s.mu.Unlock()
		return nil, false, fmt.Errorf("failed to save watchlist item: %w", err)
	}
	s.mu.Unlock()

	s.logger.Info().Str("symbol", symbol).Msg("Watchlist item added")
	s.notify(ctx, models.WatchlistEvent{Type: models.WatchlistAdded, Symbol: symbol, At: item.AddedAt})
	return item, true, nil
}

// Remove stops tracking symbol. Returns false when it was not tracked.
func (s *Service) Remove(ctx context.Context, raw string) (bool, error) {
	symbol, err := common.NormalizeSymbol(raw)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	if _, err := s.storage.GetItem(ctx, symbol); err != nil {
		s.mu.Unlock()
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get watchlist item: %w", err)
	}
	if err := s.storage.DeleteItem(ctx, symbol); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("failed to delete watchlist item: %w", err)
	}
	s.mu.Unlock()

	s.logger.Info().Str("symbol", symbol).Msg("Watchlist item removed")
	s.notify(ctx, models.WatchlistEvent{Type: models.WatchlistRemoved, Symbol: symbol, At: s.now().UTC()})
	return true, nil
}

// Subscribe registers listener for add and remove events
func (s *Service) Subscribe(listener interfaces.WatchlistListener) func() {
	s.listenMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.listenMu.Unlock()

	return func() {
		s.listenMu.Lock()
		delete(s.listeners, id)
		s.listenMu.Unlock()
	}
}

func (s *Service) notify(ctx context.Context, event models.WatchlistEvent) {
	s.listenMu.RLock()
	listeners := make([]interfaces.WatchlistListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenMu.RUnlock()

	for _, l := range listeners {
		l.WatchlistChanged(ctx, event)
	}
}
