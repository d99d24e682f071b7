// Package interfaces defines service contracts for the earnings server
package interfaces

import (
	"context"
	"time"

	"github.com/mileslinfeng/MilesRI/internal/models"
)

// Source adapters never return errors: a failed call yields a result with
// OK=false and an empty payload.

// NamedSource identifies an adapter in logs and metrics
type NamedSource interface {
	Name() string
}

// EPSSource provides quarterly EPS history
type EPSSource interface {
	NamedSource

	// FetchEPSHistory returns normalized quarterly EPS rows
	FetchEPSHistory(ctx context.Context, symbol string) models.EPSResult
}

// RevenueSource provides a quarterly revenue index
type RevenueSource interface {
	NamedSource

	// FetchRevenueQuarterly returns revenue keyed by fiscal date ending
	FetchRevenueQuarterly(ctx context.Context, symbol string) models.RevenueResult
}

// EarningsDateSource provides the next scheduled report date
type EarningsDateSource interface {
	NamedSource

	// FetchNextEarningsDate returns the nearest future date, else the latest past one
	FetchNextEarningsDate(ctx context.Context, symbol string) models.DateResult
}

// EstimateSource provides a fallback EPS estimate for one fiscal quarter
type EstimateSource interface {
	NamedSource

	// FetchEPSEstimate matches fiscalDate exactly
	FetchEPSEstimate(ctx context.Context, symbol, fiscalDate string) models.EstimateResult
}

// RevenueEstimateSource provides a consensus revenue estimate for one quarter
type RevenueEstimateSource interface {
	NamedSource

	// FetchRevenueEstimate matches fiscalDate exactly
	FetchRevenueEstimate(ctx context.Context, symbol, fiscalDate string) models.EstimateResult
}

// ExtraSource provides sector, price and market cap enrichment
type ExtraSource interface {
	NamedSource

	// FetchExtra returns whichever enrichment fields the provider knows
	FetchExtra(ctx context.Context, symbol string) models.ExtraResult
}

// CalendarSource provides market-wide earnings releases in a date window
type CalendarSource interface {
	NamedSource

	// FetchCalendar returns entries dated within [from, to]
	FetchCalendar(ctx context.Context, from, to time.Time) models.CalendarFetchResult
}

// TickerRegistrySource downloads the full ticker to registry-ID table
type TickerRegistrySource interface {
	// FetchTickerRegistry returns upper-cased tickers mapped to zero-padded IDs
	FetchTickerRegistry(ctx context.Context) (map[string]string, error)
}

// SymbolResolver maps tickers to provider-specific registry identifiers
type SymbolResolver interface {
	// Resolve returns the identifier and whether one is known
	Resolve(ctx context.Context, symbol string) (string, bool)
}
