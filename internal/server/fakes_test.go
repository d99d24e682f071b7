package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mileslinfeng/MilesRI/internal/app"
	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

type fakeEarnings struct {
	summary *models.SummaryResult
	history *models.HistoryResult
	deleted []string
	err     error

	mu        sync.Mutex
	lastLimit int
	symbols   []string
}

func (f *fakeEarnings) record(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols = append(f.symbols, symbol)
	if _, err := common.NormalizeSymbol(symbol); err != nil {
		return err
	}
	return f.err
}

func (f *fakeEarnings) GetSummary(_ context.Context, symbol string) (*models.SummaryResult, error) {
	if err := f.record(symbol); err != nil {
		return nil, err
	}
	return f.summary, nil
}

func (f *fakeEarnings) GetHistory(_ context.Context, symbol string, limit int) (*models.HistoryResult, error) {
	if err := f.record(symbol); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lastLimit = limit
	f.mu.Unlock()
	return f.history, nil
}

func (f *fakeEarnings) Invalidate(_ context.Context, symbol string) ([]string, error) {
	if err := f.record(symbol); err != nil {
		return nil, err
	}
	return f.deleted, nil
}

type fakeRefresh struct {
	res *models.SummaryResult
	err error
}

func (f *fakeRefresh) Refresh(_ context.Context, _ string) (*models.SummaryResult, error) {
	return f.res, f.err
}

type fakeWatchlist struct {
	mu    sync.Mutex
	items []models.WatchlistItem
}

func (f *fakeWatchlist) List(_ context.Context) ([]models.WatchlistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.WatchlistItem{}, f.items...), nil
}

func (f *fakeWatchlist) Symbols(ctx context.Context) ([]string, error) {
	items, _ := f.List(ctx)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Symbol)
	}
	return out, nil
}

func (f *fakeWatchlist) Add(_ context.Context, raw string) (*models.WatchlistItem, bool, error) {
	symbol, err := common.NormalizeSymbol(raw)
	if err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].Symbol == symbol {
			item := f.items[i]
			return &item, false, nil
		}
	}
	item := models.WatchlistItem{Symbol: symbol, AddedAt: time.Date(2025, 8, 6, 0, 0, 0, 0, time.UTC)}
	f.items = append(f.items, item)
	return &item, true, nil
}

func (f *fakeWatchlist) Remove(_ context.Context, raw string) (bool, error) {
	symbol, err := common.NormalizeSymbol(raw)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].Symbol == symbol {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeWatchlist) Subscribe(interfaces.WatchlistListener) func() { return func() {} }

type fakeCalendar struct {
	res *models.CalendarResult
	err error

	lastRange     string
	lastWatchlist bool
}

func (f *fakeCalendar) GetCalendar(_ context.Context, rangeName string, watchlistOnly bool) (*models.CalendarResult, error) {
	f.lastRange = rangeName
	f.lastWatchlist = watchlistOnly
	return f.res, f.err
}

type testFakes struct {
	earnings  *fakeEarnings
	refresh   *fakeRefresh
	watchlist *fakeWatchlist
	calendar  *fakeCalendar
}

// newTestServer builds a Server over fake services; no storage or network.
func newTestServer(t *testing.T) (*Server, *testFakes) {
	t.Helper()
	fakes := &testFakes{
		earnings:  &fakeEarnings{},
		refresh:   &fakeRefresh{},
		watchlist: &fakeWatchlist{},
		calendar:  &fakeCalendar{},
	}
	a := &app.App{
		Config:           common.NewDefaultConfig(),
		Logger:           common.NewSilentLogger(),
		EarningsService:  fakes.earnings,
		RefreshService:   fakes.refresh,
		WatchlistService: fakes.watchlist,
		CalendarService:  fakes.calendar,
		StartupTime:      time.Now(),
	}
	return NewServer(a), fakes
}

func serve(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}
