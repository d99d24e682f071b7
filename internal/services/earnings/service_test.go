package earnings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/models"
	"github.com/mileslinfeng/MilesRI/internal/services/cache"
	"github.com/mileslinfeng/MilesRI/internal/storage/earningsfs"
)

// --- fakes ---

type fakeReconciler struct {
	summary *models.Summary
	history []models.HistoryRow
	err     error

	// gate, when set, blocks BuildSummary until closed
	gate    chan struct{}
	started chan struct{}
	once    sync.Once

	summaryCalls atomic.Int32
	historyCalls atomic.Int32
	lastLimit    atomic.Int32
}

func (f *fakeReconciler) BuildSummary(_ context.Context, symbol string) (*models.Summary, error) {
	f.summaryCalls.Add(1)
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.summary != nil {
		cp := *f.summary
		return &cp, nil
	}
	return &models.Summary{Symbol: symbol, SignalCode: models.SignalNeutral}, nil
}

func (f *fakeReconciler) BuildHistory(_ context.Context, _ string, limit int) ([]models.HistoryRow, error) {
	f.historyCalls.Add(1)
	f.lastLimit.Store(int32(limit))
	if f.err != nil {
		return nil, f.err
	}
	if f.history == nil {
		return []models.HistoryRow{}, nil
	}
	rows := f.history
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

type serviceClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *serviceClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *serviceClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type serviceFixture struct {
	dir   string
	clock *serviceClock
	recon *fakeReconciler
	cache *cache.Manager
	svc   *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	dir := t.TempDir()
	fx := &serviceFixture{
		dir:   dir,
		clock: &serviceClock{t: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)},
		recon: &fakeReconciler{},
	}
	fx.reopen(t)
	return fx
}

// reopen builds a fresh cache manager and service over the same directory,
// as a process restart would
func (fx *serviceFixture) reopen(t *testing.T) {
	t.Helper()
	logger := common.NewSilentLogger()
	store, err := earningsfs.NewStore(logger, fx.dir)
	require.NoError(t, err)
	fx.cache = cache.NewManager(store.EarningsCacheStorage(), nil, logger, cache.WithClock(fx.clock.Now))
	fx.svc = NewService(fx.recon, fx.cache, logger)
}

func sampleSummary() *models.Summary {
	return &models.Summary{
		Symbol:           "AAPL",
		LastReportDate:   sp("2025-07-31"),
		FiscalDateEnding: sp("2025-06-30"),
		ReportedEPS:      fp(1.57),
		EstimatedEPS:     fp(1.43),
		Surprise:         fp(9.7902),
		ReportedRevenue:  fp(94036000000),
		NextEarningsDate: sp("2025-10-30"),
		SignalCode:       models.SignalBeat,
	}
}

func historyRows(n int) []models.HistoryRow {
	rows := make([]models.HistoryRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, models.HistoryRow{
			FiscalDateEnding: fmt.Sprintf("%04d-06-30", 2025-i),
			ReportedEPS:      fp(1),
			Surprise:         fp(6),
			SignalCode:       models.SignalBeat,
		})
	}
	return rows
}

// --- GetSummary ---

func TestGetSummary_NoDataIsOKWithNulls(t *testing.T) {
	fx := newServiceFixture(t)

	res, err := fx.svc.GetSummary(context.Background(), "nodata")
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.False(t, res.Cached)
	assert.Equal(t, models.SourceFresh, res.Source)
	require.NotNil(t, res.Data)
	assert.Equal(t, "NODATA", res.Data.Symbol)
	assert.Nil(t, res.Data.ReportedEPS)
	assert.Nil(t, res.Data.ReportedRevenue)
	assert.Equal(t, models.SignalNeutral, res.Data.SignalCode)
}

func TestGetSummary_SecondCallServedFromMemory(t *testing.T) {
	fx := newServiceFixture(t)
	fx.recon.summary = sampleSummary()
	ctx := context.Background()

	first, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)
	second, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, int32(1), fx.recon.summaryCalls.Load())
	assert.True(t, second.Cached)
	assert.Equal(t, models.SourceMemory, second.Source)
	assert.Equal(t, first.Data, second.Data)
}

func TestGetSummary_ConcurrentCallersShareOneReconciliation(t *testing.T) {
	fx := newServiceFixture(t)
	fx.recon.summary = sampleSummary()
	fx.recon.gate = make(chan struct{})
	fx.recon.started = make(chan struct{})

	const callers = 10
	results := make([]*models.SummaryResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.svc.GetSummary(context.Background(), "AAPL")
		}(i)
	}

	<-fx.recon.started
	time.Sleep(50 * time.Millisecond)
	close(fx.recon.gate)
	wg.Wait()

	assert.Equal(t, int32(1), fx.recon.summaryCalls.Load())
	fresh := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i].OK)
		assert.Equal(t, 1.57, *results[i].Data.ReportedEPS)
		if results[i].Source == models.SourceFresh {
			fresh++
		} else {
			assert.True(t, results[i].Cached)
		}
	}
	assert.Equal(t, 1, fresh)
}

func TestGetSummary_UpstreamFailureServesStale(t *testing.T) {
	fx := newServiceFixture(t)
	fx.recon.summary = sampleSummary()
	ctx := context.Background()

	_, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)

	fx.clock.Advance(7 * time.Hour)
	fx.recon.err = fmt.Errorf("summary AAPL: %w", common.ErrUpstreamUnavailable)

	res, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.Cached)
	assert.Equal(t, models.SourceStaleDisk, res.Source)
	assert.NotEmpty(t, res.Warning)
	assert.Equal(t, 1.57, *res.Data.ReportedEPS)
	assert.Equal(t, int32(2), fx.recon.summaryCalls.Load())
}

func TestGetSummary_UpstreamFailureWithoutStaleIsTypedError(t *testing.T) {
	fx := newServiceFixture(t)
	fx.recon.err = errors.New("boom")

	res, err := fx.svc.GetSummary(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, common.ErrUpstreamUnavailable)

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, "AAPL", upErr.Symbol)
	assert.Equal(t, common.KindSummary, upErr.Kind)
}

func TestGetSummary_InvalidSymbolRejectedBeforeWork(t *testing.T) {
	fx := newServiceFixture(t)

	for _, raw := range []string{"", "   ", "AA PL", "AAPL$", "../etc", "ABCDEFGHIJKLMNOP"} {
		_, err := fx.svc.GetSummary(context.Background(), raw)
		assert.ErrorIs(t, err, common.ErrInvalidSymbol, "symbol %q", raw)
	}
	assert.Zero(t, fx.recon.summaryCalls.Load())
}

func TestGetSummary_DiskRoundTripAcrossRestart(t *testing.T) {
	fx := newServiceFixture(t)
	fx.recon.summary = sampleSummary()
	ctx := context.Background()

	first, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)

	fx.reopen(t)
	second, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, models.SourceDisk, second.Source)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, int32(1), fx.recon.summaryCalls.Load())
}

func TestGetSummary_ExpiredCacheReconcilesAgain(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	_, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)
	fx.clock.Advance(common.FreshnessSummaryDisk + time.Minute)

	res, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, models.SourceFresh, res.Source)
	assert.Equal(t, int32(2), fx.recon.summaryCalls.Load())
}

// --- GetHistory ---

func TestGetHistory_LimitClamped(t *testing.T) {
	fx := newServiceFixture(t)
	fx.recon.history = historyRows(40)
	ctx := context.Background()

	res, err := fx.svc.GetHistory(ctx, "AAPL", 1)
	require.NoError(t, err)
	assert.Len(t, res.Data, common.MinHistoryLimit)
	assert.Equal(t, int32(common.MaxHistoryLimit), fx.recon.lastLimit.Load())

	res, err = fx.svc.GetHistory(ctx, "AAPL", 9999)
	require.NoError(t, err)
	assert.Len(t, res.Data, common.MaxHistoryLimit)
	assert.Equal(t, models.SourceMemory, res.Source)

	assert.Equal(t, int32(1), fx.recon.historyCalls.Load(), "one cached window serves every limit")
}

func TestGetHistory_EmptyIsEmptySlice(t *testing.T) {
	fx := newServiceFixture(t)

	res, err := fx.svc.GetHistory(context.Background(), "NODATA", 8)
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	require.NotNil(t, res.Stats)
	assert.Zero(t, res.Stats.Quarters)
	assert.Nil(t, res.Stats.BeatRate)
}

func TestGetHistory_CarriesStats(t *testing.T) {
	fx := newServiceFixture(t)
	fx.recon.history = historyRows(8)

	res, err := fx.svc.GetHistory(context.Background(), "AAPL", 8)
	require.NoError(t, err)
	require.NotNil(t, res.Stats)
	assert.Equal(t, 8, res.Stats.Quarters)
	assert.Equal(t, 8, res.Stats.Beats)
	assert.Equal(t, 1.0, *res.Stats.BeatRate)
}

func TestGetHistory_UpstreamFailureServesStale(t *testing.T) {
	fx := newServiceFixture(t)
	fx.recon.history = historyRows(6)
	ctx := context.Background()

	_, err := fx.svc.GetHistory(ctx, "AAPL", 6)
	require.NoError(t, err)

	fx.clock.Advance(common.FreshnessHistoryDisk + time.Hour)
	fx.recon.err = errors.New("down")

	res, err := fx.svc.GetHistory(ctx, "AAPL", 4)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStaleDisk, res.Source)
	assert.Len(t, res.Data, 4)
}

// --- Invalidate / watchlist ---

func TestInvalidate_DropsCachedKinds(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	_, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)
	_, err = fx.svc.GetHistory(ctx, "AAPL", 4)
	require.NoError(t, err)

	removed, err := fx.svc.Invalidate(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL.history.json", "AAPL.summary.json"}, removed)

	res, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, models.SourceFresh, res.Source)
}

func TestInvalidate_UnknownSymbolIsEmptyList(t *testing.T) {
	fx := newServiceFixture(t)
	removed, err := fx.svc.Invalidate(context.Background(), "NONE")
	require.NoError(t, err)
	assert.NotNil(t, removed)
	assert.Empty(t, removed)
}

func TestWatchlistChanged_AddWarmsSummary(t *testing.T) {
	fx := newServiceFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	fx.svc.WatchlistChanged(ctx, models.WatchlistEvent{Type: models.WatchlistAdded, Symbol: "MSFT"})
	cancel()
	fx.svc.WaitWarm()

	assert.Equal(t, int32(1), fx.recon.summaryCalls.Load())
	res, err := fx.svc.GetSummary(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, models.SourceMemory, res.Source)
}

func TestWatchlistChanged_RemoveInvalidates(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	_, err := fx.svc.GetSummary(ctx, "MSFT")
	require.NoError(t, err)
	fx.svc.WatchlistChanged(ctx, models.WatchlistEvent{Type: models.WatchlistRemoved, Symbol: "MSFT"})

	_, ok := fx.cache.ReadStale(ctx, "MSFT", common.KindSummary)
	assert.False(t, ok)
}

// --- RefreshGuard ---

func TestRefreshGuard_CooldownPerSymbol(t *testing.T) {
	fx := newServiceFixture(t)
	guard := NewRefreshGuard(fx.svc, 30*time.Minute, common.NewSilentLogger())
	guard.now = fx.clock.Now
	ctx := context.Background()

	res, err := guard.Refresh(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, models.SourceFresh, res.Source)

	_, err = guard.Refresh(ctx, "aapl")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRefreshCooldown)
	var cd *CooldownError
	require.True(t, errors.As(err, &cd))
	assert.InDelta(t, (30 * time.Minute).Seconds(), cd.RetryAfter.Seconds(), 1)

	_, err = guard.Refresh(ctx, "MSFT")
	require.NoError(t, err)

	fx.clock.Advance(31 * time.Minute)
	res, err = guard.Refresh(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, models.SourceFresh, res.Source)
	assert.Equal(t, int32(3), fx.recon.summaryCalls.Load())
}

func TestRefreshGuard_BypassesFreshCache(t *testing.T) {
	fx := newServiceFixture(t)
	guard := NewRefreshGuard(fx.svc, time.Minute, common.NewSilentLogger())
	ctx := context.Background()

	_, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)

	res, err := guard.Refresh(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), fx.recon.summaryCalls.Load())
}

func TestRefreshGuard_OutageKeepsStaleCopy(t *testing.T) {
	fx := newServiceFixture(t)
	fx.recon.summary = sampleSummary()
	guard := NewRefreshGuard(fx.svc, time.Minute, common.NewSilentLogger())
	guard.now = fx.clock.Now
	ctx := context.Background()

	_, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)

	fx.recon.err = fmt.Errorf("summary AAPL: %w", common.ErrUpstreamUnavailable)
	fx.clock.Advance(24 * time.Hour)

	res, err := guard.Refresh(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, models.SourceStaleDisk, res.Source)
	assert.NotEmpty(t, res.Warning)

	res, err = fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, models.SourceStaleDisk, res.Source)
	assert.Equal(t, 1.57, *res.Data.ReportedEPS)
}

func TestRefreshGuard_SuccessOverwritesCachedCopy(t *testing.T) {
	fx := newServiceFixture(t)
	fx.recon.summary = sampleSummary()
	guard := NewRefreshGuard(fx.svc, time.Minute, common.NewSilentLogger())
	ctx := context.Background()

	_, err := fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)

	updated := sampleSummary()
	updated.ReportedEPS = fp(1.64)
	fx.recon.summary = updated

	res, err := guard.Refresh(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, models.SourceFresh, res.Source)

	res, err = fx.svc.GetSummary(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 1.64, *res.Data.ReportedEPS)
	assert.Equal(t, int32(2), fx.recon.summaryCalls.Load())
}

func TestRefreshGuard_InvalidSymbol(t *testing.T) {
	fx := newServiceFixture(t)
	guard := NewRefreshGuard(fx.svc, time.Minute, common.NewSilentLogger())
	_, err := guard.Refresh(context.Background(), "BAD SYMBOL")
	assert.ErrorIs(t, err, common.ErrInvalidSymbol)
}
