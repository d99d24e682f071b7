package earnings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/metrics"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

// Compile-time interface checks
var (
	_ interfaces.EarningsService   = (*Service)(nil)
	_ interfaces.WatchlistListener = (*Service)(nil)
)

const staleWarning = "Upstream failed; served stale"

// DefaultWarmTimeout bounds a background warm triggered by a watchlist add.
const DefaultWarmTimeout = 60 * time.Second

// UpstreamError reports that reconciliation failed and no stale copy exists.
type UpstreamError struct {
	Symbol string
	Kind   string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is matches common.ErrUpstreamUnavailable whatever the underlying cause.
func (e *UpstreamError) Is(target error) bool {
	return target == common.ErrUpstreamUnavailable
}

// Service implements EarningsService on top of a Reconciler and the cache
type Service struct {
	engine      interfaces.Reconciler
	cache       interfaces.EarningsCache
	logger      *common.Logger
	warmTimeout time.Duration

	warming sync.WaitGroup
}

// NewService creates the summary/history facade
func NewService(engine interfaces.Reconciler, cache interfaces.EarningsCache, logger *common.Logger) *Service {
	return &Service{
		engine:      engine,
		cache:       cache,
		logger:      logger,
		warmTimeout: DefaultWarmTimeout,
	}
}

// served is what one reconciliation run hands back to every caller that
// joined it
type served[T any] struct {
	data   T
	source string
}

// GetSummary returns the latest-quarter view for symbol.
func (s *Service) GetSummary(ctx context.Context, raw string) (*models.SummaryResult, error) {
	symbol, err := common.NormalizeSymbol(raw)
	if err != nil {
		return nil, err
	}

	return s.summary(ctx, symbol, false)
}

// RefreshSummary rebuilds the summary for symbol even when a fresh copy is
// cached. The cached copies stay in place until the rebuild succeeds, so a
// failed refresh still falls back to the stale disk entry.
func (s *Service) RefreshSummary(ctx context.Context, raw string) (*models.SummaryResult, error) {
	symbol, err := common.NormalizeSymbol(raw)
	if err != nil {
		return nil, err
	}
	return s.summary(ctx, symbol, true)
}

func (s *Service) summary(ctx context.Context, symbol string, force bool) (*models.SummaryResult, error) {
	res, warning, err := serve(ctx, s, symbol, common.KindSummary, force, func(ctx context.Context) (*models.Summary, error) {
		return s.engine.BuildSummary(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}

	return &models.SummaryResult{
		OK:      true,
		Data:    res.data,
		Cached:  res.source != models.SourceFresh,
		Source:  res.source,
		Warning: warning,
	}, nil
}

// GetHistory returns up to limit quarters for symbol, newest first. The
// full window is cached once per symbol and sliced per request.
func (s *Service) GetHistory(ctx context.Context, raw string, limit int) (*models.HistoryResult, error) {
	symbol, err := common.NormalizeSymbol(raw)
	if err != nil {
		return nil, err
	}
	limit = common.ClampHistoryLimit(limit)

	res, warning, err := serve(ctx, s, symbol, common.KindHistory, false, func(ctx context.Context) ([]models.HistoryRow, error) {
		return s.engine.BuildHistory(ctx, symbol, common.MaxHistoryLimit)
	})
	if err != nil {
		return nil, err
	}

	rows := res.data
	if rows == nil {
		rows = []models.HistoryRow{}
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	return &models.HistoryResult{
		OK:      true,
		Data:    rows,
		Cached:  res.source != models.SourceFresh,
		Source:  res.source,
		Stats:   ComputeStats(rows),
		Warning: warning,
	}, nil
}

// Invalidate drops every cached kind for symbol from both tiers
func (s *Service) Invalidate(ctx context.Context, raw string) ([]string, error) {
	symbol, err := common.NormalizeSymbol(raw)
	if err != nil {
		return nil, err
	}
	removed, err := s.cache.Invalidate(ctx, symbol)
	if err != nil {
		return removed, fmt.Errorf("failed to invalidate %s: %w", symbol, err)
	}
	if removed == nil {
		removed = []string{}
	}
	return removed, nil
}

// WatchlistChanged invalidates removed symbols and warms the summary of
// added ones in the background.
func (s *Service) WatchlistChanged(ctx context.Context, event models.WatchlistEvent) {
	switch event.Type {
	case models.WatchlistRemoved:
		if _, err := s.Invalidate(ctx, event.Symbol); err != nil {
			s.logger.Warn().Err(err).Str("symbol", event.Symbol).Msg("Failed to invalidate removed watchlist symbol")
		}
	case models.WatchlistAdded:
		s.warming.Add(1)
		go func() {
			defer s.warming.Done()
			warmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.warmTimeout)
			defer cancel()
			if _, err := s.GetSummary(warmCtx, event.Symbol); err != nil {
				s.logger.Warn().Err(err).Str("symbol", event.Symbol).Msg("Watchlist warm failed")
				return
			}
			s.logger.Debug().Str("symbol", event.Symbol).Msg("Watchlist symbol warmed")
		}()
	}
}

// WaitWarm blocks until background warms started by WatchlistChanged finish
func (s *Service) WaitWarm() {
	s.warming.Wait()
}

// serve runs the read-through flow shared by every cached kind: fresh cache,
// then one deduplicated reconciliation, then the stale disk copy. force skips
// only the fresh reads; a successful build overwrites both tiers.
func serve[T any](ctx context.Context, s *Service, symbol, kind string, force bool, build func(context.Context) (T, error)) (served[T], string, error) {
	if !force {
		if data, tier, ok := readFresh[T](ctx, s, symbol, kind); ok {
			return served[T]{data: data, source: tier}, "", nil
		}
	}

	v, joined, err := s.cache.Do(ctx, symbol, kind, func() (interface{}, error) {
		// Another run may have finished between the read above and acquiring the slot
		if !force {
			if data, tier, ok := readFresh[T](ctx, s, symbol, kind); ok {
				return served[T]{data: data, source: tier}, nil
			}
		}

		// The run is shared, so it must outlive the caller that started it
		runCtx := context.WithoutCancel(ctx)
		start := time.Now()
		data, err := build(runCtx)
		metrics.Reconciled(kind, err == nil, time.Since(start))
		if err != nil {
			return nil, err
		}

		if werr := s.cache.Write(runCtx, symbol, kind, data); werr != nil {
			s.logger.Warn().Err(werr).Str("symbol", symbol).Str("kind", kind).Msg("Cache write failed, serving uncached result")
		}
		return served[T]{data: data, source: models.SourceFresh}, nil
	})
	if err == nil {
		res := v.(served[T])
		if joined {
			res.source = models.SourceInflight
		}
		return res, "", nil
	}

	if ctx.Err() != nil {
		return served[T]{}, "", fmt.Errorf("%s %s: %w", symbol, kind, ctx.Err())
	}

	s.logger.Warn().Err(err).Str("symbol", symbol).Str("kind", kind).Msg("Reconciliation failed, trying stale cache")
	if entry, ok := s.cache.ReadStale(ctx, symbol, kind); ok {
		var data T
		if derr := json.Unmarshal(entry.Data, &data); derr == nil {
			return served[T]{data: data, source: models.SourceStaleDisk}, staleWarning, nil
		}
	}

	if !errors.Is(err, common.ErrUpstreamUnavailable) {
		err = fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err)
	}
	return served[T]{}, "", &UpstreamError{Symbol: symbol, Kind: kind, Err: err}
}

func readFresh[T any](ctx context.Context, s *Service, symbol, kind string) (T, string, bool) {
	var data T
	entry, tier, ok := s.cache.Read(ctx, symbol, kind)
	if !ok {
		return data, "", false
	}
	if err := json.Unmarshal(entry.Data, &data); err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Str("kind", kind).Msg("Cached payload undecodable, treating as miss")
		return data, "", false
	}
	return data, tier, true
}
