package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
)

// warmJobTimeout bounds one scheduled warm run
const warmJobTimeout = 10 * time.Minute

// startScheduler runs the watchlist warm-cache on a cron schedule (with a
// seconds field). Overlapping runs are skipped.
func startScheduler(spec string, watchlistService interfaces.WatchlistService, earningsService interfaces.EarningsService, logger *common.Logger) (*cron.Cron, error) {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), warmJobTimeout)
		defer cancel()
		logger.Debug().Str("job", "warm_cache").Msg("Scheduler: running job")
		warmCache(ctx, watchlistService, earningsService, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid warm cache schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info().Str("schedule", spec).Str("job", "warm_cache").Msg("Scheduler: started")
	return c, nil
}
