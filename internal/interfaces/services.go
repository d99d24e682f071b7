package interfaces

import (
	"context"

	"github.com/mileslinfeng/MilesRI/internal/models"
)

// Reconciler merges adapter output into canonical records without persisting them
type Reconciler interface {
	// BuildSummary returns the latest-quarter view
	BuildSummary(ctx context.Context, symbol string) (*models.Summary, error)

	// BuildHistory returns up to limit quarters, newest first
	BuildHistory(ctx context.Context, symbol string, limit int) ([]models.HistoryRow, error)
}

// EarningsCache is the two-tier cache with stale reads and in-flight dedup
type EarningsCache interface {
	// Read returns a fresh entry and the tier it came from
	Read(ctx context.Context, symbol, kind string) (*models.CacheEntry, string, bool)

	// Write stores payload in both tiers, disk first
	Write(ctx context.Context, symbol, kind string, payload interface{}) error

	// ReadStale returns the disk entry regardless of age
	ReadStale(ctx context.Context, symbol, kind string) (*models.CacheEntry, bool)

	// Invalidate removes every kind for the symbol from both tiers
	Invalidate(ctx context.Context, symbol string) ([]string, error)

	// Do runs fn once per concurrent (symbol, kind); joined is true for callers that attached to another's run
	Do(ctx context.Context, symbol, kind string, fn func() (interface{}, error)) (v interface{}, joined bool, err error)
}

// EarningsService is the summary/history facade
type EarningsService interface {
	GetSummary(ctx context.Context, symbol string) (*models.SummaryResult, error)
	GetHistory(ctx context.Context, symbol string, limit int) (*models.HistoryResult, error)
	Invalidate(ctx context.Context, symbol string) ([]string, error)
}

// WatchlistListener receives watchlist changes
type WatchlistListener interface {
	WatchlistChanged(ctx context.Context, event models.WatchlistEvent)
}

// WatchlistService manages the tracked symbols
type WatchlistService interface {
	List(ctx context.Context) ([]models.WatchlistItem, error)
	Symbols(ctx context.Context) ([]string, error)
	Add(ctx context.Context, symbol string) (*models.WatchlistItem, bool, error)
	Remove(ctx context.Context, symbol string) (bool, error)
	Subscribe(listener WatchlistListener) (unsubscribe func())
}

// CalendarService builds the market-wide earnings calendar
type CalendarService interface {
	GetCalendar(ctx context.Context, rangeName string, watchlistOnly bool) (*models.CalendarResult, error)
}

// RefreshService forces a rebuild of one symbol's cached summary
type RefreshService interface {
	// Refresh fails with common.ErrRefreshCooldown inside the per-symbol cooldown
	Refresh(ctx context.Context, symbol string) (*models.SummaryResult, error)
}
