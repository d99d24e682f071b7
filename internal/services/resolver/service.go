// Package resolver maps tickers to registry identifiers (SEC CIKs)
package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
)

// Service resolves symbols against a lazily loaded registry table. The table
// is loaded from the local snapshot, or fetched remotely once and persisted.
// A failed load leaves the table empty for the life of the process.
type Service struct {
	storage interfaces.RegistryStorage
	source  interfaces.TickerRegistrySource
	logger  *common.Logger

	mu     sync.Mutex
	loaded bool
	table  map[string]string
}

// NewService creates a new resolver
func NewService(storage interfaces.RegistryStorage, source interfaces.TickerRegistrySource, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		source:  source,
		logger:  logger,
	}
}

// Resolve returns the identifier for symbol. A missing identifier is an
// expected outcome, not an error.
func (s *Service) Resolve(ctx context.Context, symbol string) (string, bool) {
	table := s.ensureLoaded(ctx)

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if id, ok := table[symbol]; ok {
		return id, true
	}
	// The registry writes share classes with a dash (BRK-B)
	if strings.Contains(symbol, ".") {
		id, ok := table[strings.ReplaceAll(symbol, ".", "-")]
		return id, ok
	}
	return "", false
}

// Size returns the number of loaded entries
func (s *Service) Size(ctx context.Context) int {
	return len(s.ensureLoaded(ctx))
}

func (s *Service) ensureLoaded(ctx context.Context) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		// One caller's cancellation must not leave the table empty for everyone
		s.table = s.load(context.WithoutCancel(ctx))
		s.loaded = true
	}
	return s.table
}

func (s *Service) load(ctx context.Context) map[string]string {
	snapshot, err := s.storage.LoadRegistry(ctx)
	if err == nil && len(snapshot) > 0 {
		s.logger.Info().Int("tickers", len(snapshot)).Msg("Registry loaded from snapshot")
		return snapshot
	}
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		s.logger.Warn().Err(err).Msg("Registry snapshot unreadable, fetching remote copy")
	}

	if s.source == nil {
		return map[string]string{}
	}

	registry, err := s.source.FetchTickerRegistry(ctx)
	if err != nil || len(registry) == 0 {
		s.logger.Warn().Err(err).Msg("Registry download failed, resolver disabled for this process")
		return map[string]string{}
	}

	if err := s.storage.SaveRegistry(ctx, registry); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist registry snapshot")
	}
	return registry
}

var _ interfaces.SymbolResolver = (*Service)(nil)
