package earnings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

// CooldownError carries how long a caller must wait before refreshing again
type CooldownError struct {
	Symbol     string
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: refresh available in %s", e.Symbol, e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Unwrap() error { return common.ErrRefreshCooldown }

// SummaryRefresher rebuilds a summary while keeping the cached copy as a
// fallback. *Service implements it.
type SummaryRefresher interface {
	RefreshSummary(ctx context.Context, symbol string) (*models.SummaryResult, error)
}

// RefreshGuard allows one forced refresh per symbol per cooldown window
type RefreshGuard struct {
	service  SummaryRefresher
	cooldown time.Duration
	logger   *common.Logger
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRefreshGuard wraps service with a per-symbol cooldown
func NewRefreshGuard(service SummaryRefresher, cooldown time.Duration, logger *common.Logger) *RefreshGuard {
	return &RefreshGuard{
		service:  service,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Refresh rebuilds the summary for symbol past any fresh cache entry. A
// second call inside the cooldown fails with a *CooldownError.
func (g *RefreshGuard) Refresh(ctx context.Context, raw string) (*models.SummaryResult, error) {
	symbol, err := common.NormalizeSymbol(raw)
	if err != nil {
		return nil, err
	}

	if wait := g.reserve(symbol); wait > 0 {
		return nil, &CooldownError{Symbol: symbol, RetryAfter: wait}
	}

	g.logger.Info().Str("symbol", symbol).Msg("Forced refresh")
	return g.service.RefreshSummary(ctx, symbol)
}

// reserve takes the symbol's token, or returns the time until one is available
func (g *RefreshGuard) reserve(symbol string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	lim, ok := g.limiters[symbol]
	if !ok {
		lim = rate.NewLimiter(rate.Every(g.cooldown), 1)
		g.limiters[symbol] = lim
	}

	now := g.now()
	r := lim.ReserveN(now, 1)
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return wait
	}
	return 0
}
