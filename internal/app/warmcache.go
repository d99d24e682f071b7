package app

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
)

// warmConcurrency bounds how many symbols are reconciled at once
const warmConcurrency = 4

// warmCache pre-fetches the summary and history of every watchlist symbol so
// the first user query is served from cache.
func warmCache(ctx context.Context, watchlistService interfaces.WatchlistService, earningsService interfaces.EarningsService, logger *common.Logger) {
	if os.Getenv("EARNINGS_WARM_CACHE") == "off" {
		logger.Info().Msg("Warm cache: disabled via EARNINGS_WARM_CACHE=off")
		return
	}

	start := time.Now()

	symbols, err := watchlistService.Symbols(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Warm cache: failed to read watchlist")
		return
	}
	if len(symbols) == 0 {
		logger.Info().Msg("Warm cache: watchlist empty, skipping")
		return
	}

	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			_, sErr := earningsService.GetSummary(gctx, symbol)
			_, hErr := earningsService.GetHistory(gctx, symbol, 0)
			if sErr != nil || hErr != nil {
				failed.Add(1)
				logger.Warn().
					AnErr("summary", sErr).
					AnErr("history", hErr).
					Str("symbol", symbol).
					Msg("Warm cache: symbol failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().
		Int("symbols", len(symbols)).
		Int32("failed", failed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("Warm cache: complete")
}
