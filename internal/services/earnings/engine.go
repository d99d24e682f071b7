// Package earnings reconciles multi-source earnings data into canonical
// summaries and histories, and serves them through the two-tier cache
package earnings

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

// Sources lists the adapters for each data kind in priority order
type Sources struct {
	EPS             []interfaces.EPSSource
	Revenue         []interfaces.RevenueSource
	NextDate        []interfaces.EarningsDateSource
	Estimate        []interfaces.EstimateSource
	RevenueEstimate []interfaces.RevenueEstimateSource
}

// Engine implements interfaces.Reconciler. It never persists anything.
type Engine struct {
	sources Sources
	logger  *common.Logger
}

// NewEngine creates a reconciliation engine
func NewEngine(sources Sources, logger *common.Logger) *Engine {
	return &Engine{
		sources: sources,
		logger:  logger,
	}
}

// BuildSummary reconciles the latest reported quarter for symbol. It fails
// only when no EPS source and no date source answered at all.
func (e *Engine) BuildSummary(ctx context.Context, symbol string) (*models.Summary, error) {
	var eps chainResult[models.EPSResult]
	var next chainResult[models.DateResult]

	var g errgroup.Group
	g.Go(func() error {
		eps = e.epsHistory(ctx, symbol)
		return nil
	})
	g.Go(func() error {
		next = e.nextDate(ctx, symbol)
		return nil
	})
	_ = g.Wait()

	if !eps.Answered && !next.Answered {
		return nil, fmt.Errorf("summary %s: %w", symbol, common.ErrUpstreamUnavailable)
	}

	summary := &models.Summary{
		Symbol:           symbol,
		NextEarningsDate: next.Value.Date,
		SignalCode:       models.SignalNeutral,
	}

	rows := sortedRows(eps.Value.Rows)
	if !eps.Found || len(rows) == 0 {
		e.logger.Debug().Str("symbol", symbol).Msg("No EPS rows from any source")
		return summary, nil
	}

	last := rows[0]
	fiscal := last.FiscalDateEnding

	var revenue chainResult[models.RevenueResult]
	var estimate chainResult[models.EstimateResult]
	var revenueEstimate chainResult[models.EstimateResult]

	var fields errgroup.Group
	fields.Go(func() error {
		revenue = e.revenue(ctx, symbol)
		return nil
	})
	if last.EstimatedEPS == nil {
		fields.Go(func() error {
			estimate = e.epsEstimate(ctx, symbol, fiscal)
			return nil
		})
	}
	fields.Go(func() error {
		revenueEstimate = e.revenueEstimate(ctx, symbol, fiscal)
		return nil
	})
	_ = fields.Wait()

	estimated := last.EstimatedEPS
	if estimated == nil && estimate.Found {
		estimated = estimate.Value.Value
	}
	surprise := models.DeriveSurprise(last.SurprisePercent, last.ReportedEPS, estimated)

	reported := revenue.Value.Index.Lookup(fiscal)
	var estimatedRevenue *float64
	if revenueEstimate.Found {
		estimatedRevenue = revenueEstimate.Value.Value
	}

	summary.LastReportDate = last.ReportedDate
	summary.FiscalDateEnding = &fiscal
	summary.ReportedEPS = last.ReportedEPS
	summary.EstimatedEPS = estimated
	summary.Surprise = surprise
	summary.ReportedRevenue = reported
	summary.EstimatedRevenue = estimatedRevenue
	summary.RevenueSurprise = models.DeriveSurprise(nil, reported, estimatedRevenue)
	summary.SignalCode = models.SignalFor(surprise)

	e.logger.Debug().
		Str("symbol", symbol).
		Str("eps_source", eps.Value.Source).
		Str("revenue_source", revenue.Value.Source).
		Str("fiscal", fiscal).
		Str("signal", summary.SignalCode).
		Msg("Summary reconciled")

	return summary, nil
}

// BuildHistory reconciles up to limit quarters, newest first. limit is
// clamped to the supported range. An empty base list yields an empty slice.
func (e *Engine) BuildHistory(ctx context.Context, symbol string, limit int) ([]models.HistoryRow, error) {
	limit = common.ClampHistoryLimit(limit)

	eps := e.epsHistory(ctx, symbol)
	if !eps.Answered {
		return nil, fmt.Errorf("history %s: %w", symbol, common.ErrUpstreamUnavailable)
	}
	if !eps.Found {
		return []models.HistoryRow{}, nil
	}

	rows := sortedRows(eps.Value.Rows)
	if len(rows) > limit {
		rows = rows[:limit]
	}

	// One chain resolution; each row is looked up in the winning index
	revenue := e.revenue(ctx, symbol)

	history := make([]models.HistoryRow, 0, len(rows))
	for _, r := range rows {
		history = append(history, models.HistoryRow{
			FiscalDateEnding: r.FiscalDateEnding,
			ReportedDate:     r.ReportedDate,
			ReportedEPS:      r.ReportedEPS,
			EstimatedEPS:     r.EstimatedEPS,
			Surprise:         r.SurprisePercent,
			Revenue:          revenue.Value.Index.Lookup(r.FiscalDateEnding),
			SignalCode:       models.SignalFor(r.SurprisePercent),
		})
	}
	return history, nil
}

func (e *Engine) epsHistory(ctx context.Context, symbol string) chainResult[models.EPSResult] {
	return firstSuccess(ctx, "eps", e.sources.EPS,
		func(ctx context.Context, s interfaces.EPSSource) models.EPSResult {
			return s.FetchEPSHistory(ctx, symbol)
		},
		func(r models.EPSResult) bool { return len(r.Rows) > 0 },
	)
}

func (e *Engine) revenue(ctx context.Context, symbol string) chainResult[models.RevenueResult] {
	return firstSuccess(ctx, "revenue", e.sources.Revenue,
		func(ctx context.Context, s interfaces.RevenueSource) models.RevenueResult {
			return s.FetchRevenueQuarterly(ctx, symbol)
		},
		func(r models.RevenueResult) bool { return len(r.Index) > 0 },
	)
}

func (e *Engine) nextDate(ctx context.Context, symbol string) chainResult[models.DateResult] {
	return firstSuccess(ctx, "next_date", e.sources.NextDate,
		func(ctx context.Context, s interfaces.EarningsDateSource) models.DateResult {
			return s.FetchNextEarningsDate(ctx, symbol)
		},
		func(r models.DateResult) bool { return r.Date != nil },
	)
}

func (e *Engine) epsEstimate(ctx context.Context, symbol, fiscal string) chainResult[models.EstimateResult] {
	return firstSuccess(ctx, "eps_estimate", e.sources.Estimate,
		func(ctx context.Context, s interfaces.EstimateSource) models.EstimateResult {
			return s.FetchEPSEstimate(ctx, symbol, fiscal)
		},
		func(r models.EstimateResult) bool { return r.Value != nil },
	)
}

func (e *Engine) revenueEstimate(ctx context.Context, symbol, fiscal string) chainResult[models.EstimateResult] {
	return firstSuccess(ctx, "revenue_estimate", e.sources.RevenueEstimate,
		func(ctx context.Context, s interfaces.RevenueEstimateSource) models.EstimateResult {
			return s.FetchRevenueEstimate(ctx, symbol, fiscal)
		},
		func(r models.EstimateResult) bool { return r.Value != nil },
	)
}

// sortedRows orders rows newest first; equal fiscal dates put a row with a
// reported date ahead of one without
func sortedRows(rows []models.EarningsRow) []models.EarningsRow {
	out := make([]models.EarningsRow, 0, len(rows))
	for _, r := range rows {
		if r.FiscalDateEnding != "" {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FiscalDateEnding != out[j].FiscalDateEnding {
			return out[i].FiscalDateEnding > out[j].FiscalDateEnding
		}
		return out[i].ReportedDate != nil && out[j].ReportedDate == nil
	})
	return out
}

var _ interfaces.Reconciler = (*Engine)(nil)
