// Package calendar builds the market-wide earnings calendar: releases in a
// day/week/month window, enriched with company extras and grouped relative
// to today
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/metrics"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

// Compile-time interface check
var _ interfaces.CalendarService = (*Service)(nil)

const (
	// MaxEnrichedSymbols caps how many unique symbols get company extras
	MaxEnrichedSymbols = 200

	// EnrichConcurrency bounds parallel extra lookups
	EnrichConcurrency = 10

	// cacheKeyPrefix keeps calendar entries out of the symbol namespace; '_'
	// never passes symbol validation
	cacheKeyPrefix = "_calendar_"
)

// Service implements CalendarService
type Service struct {
	calendars []interfaces.CalendarSource
	extras    []interfaces.ExtraSource
	watchlist interfaces.WatchlistService
	cache     interfaces.EarningsCache
	logger    *common.Logger
	now       func() time.Time
}

// NewService creates a calendar service. Sources are tried in order; the
// first calendar source with entries wins, extras are merged field by field.
func NewService(
	calendars []interfaces.CalendarSource,
	extras []interfaces.ExtraSource,
	watchlist interfaces.WatchlistService,
	cache interfaces.EarningsCache,
	logger *common.Logger,
) *Service {
	return &Service{
		calendars: calendars,
		extras:    extras,
		watchlist: watchlist,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// Window returns the inclusive date window for a named range.
func Window(rangeName string, today time.Time) (from, to time.Time, err error) {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	switch rangeName {
	case models.CalendarRangeDay:
		return day, day, nil
	case models.CalendarRangeWeek:
		return day.AddDate(0, 0, -3), day.AddDate(0, 0, 4), nil
	case models.CalendarRangeMonth:
		return day.AddDate(0, 0, -7), day.AddDate(0, 0, 30), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", common.ErrInvalidRange, rangeName)
}

// GetCalendar returns the grouped calendar for rangeName. The unfiltered
// result is cached per range; the watchlist filter is applied on the way out.
func (s *Service) GetCalendar(ctx context.Context, rangeName string, watchlistOnly bool) (*models.CalendarResult, error) {
	rangeName = strings.ToLower(strings.TrimSpace(rangeName))
	if rangeName == "" {
		rangeName = models.CalendarRangeWeek
	}
	today := s.now().UTC()
	if _, _, err := Window(rangeName, today); err != nil {
		return nil, err
	}
	key := cacheKey(rangeName)

	buckets, source, err := s.load(ctx, key, rangeName, today)
	if err != nil {
		return nil, err
	}

	if watchlistOnly {
		symbols, err := s.watchlist.Symbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load watchlist: %w", err)
		}
		buckets = filterBuckets(buckets, symbols)
	}

	return &models.CalendarResult{
		OK:     true,
		Range:  rangeName,
		Data:   buckets,
		Cached: source != models.SourceFresh,
		Source: source,
	}, nil
}

func cacheKey(rangeName string) string {
	return cacheKeyPrefix + rangeName
}

func (s *Service) load(ctx context.Context, key, rangeName string, today time.Time) (models.CalendarBuckets, string, error) {
	if entry, tier, ok := s.cache.Read(ctx, key, common.KindCalendar); ok {
		var buckets models.CalendarBuckets
		if err := json.Unmarshal(entry.Data, &buckets); err == nil {
			return buckets, tier, nil
		}
	}

	v, joined, err := s.cache.Do(ctx, key, common.KindCalendar, func() (interface{}, error) {
		runCtx := context.WithoutCancel(ctx)
		start := time.Now()
		buckets, err := s.build(runCtx, rangeName, today)
		metrics.Reconciled(common.KindCalendar, err == nil, time.Since(start))
		if err != nil {
			return nil, err
		}
		if werr := s.cache.Write(runCtx, key, common.KindCalendar, buckets); werr != nil {
			s.logger.Warn().Err(werr).Str("range", rangeName).Msg("Calendar cache write failed")
		}
		return buckets, nil
	})
	if err == nil {
		source := models.SourceFresh
		if joined {
			source = models.SourceInflight
		}
		return v.(models.CalendarBuckets), source, nil
	}
	if ctx.Err() != nil {
		return models.CalendarBuckets{}, "", fmt.Errorf("calendar %s: %w", rangeName, ctx.Err())
	}

	if entry, ok := s.cache.ReadStale(ctx, key, common.KindCalendar); ok {
		var buckets models.CalendarBuckets
		if derr := json.Unmarshal(entry.Data, &buckets); derr == nil {
			s.logger.Warn().Err(err).Str("range", rangeName).Msg("Calendar upstream failed, served stale")
			return buckets, models.SourceStaleDisk, nil
		}
	}
	return models.CalendarBuckets{}, "", err
}

// build fetches, enriches and groups one window
func (s *Service) build(ctx context.Context, rangeName string, today time.Time) (models.CalendarBuckets, error) {
	from, to, err := Window(rangeName, today)
	if err != nil {
		return models.CalendarBuckets{}, err
	}

	entries, answered := s.fetch(ctx, from, to)
	if !answered {
		return models.CalendarBuckets{}, fmt.Errorf("calendar %s: %w", rangeName, common.ErrUpstreamUnavailable)
	}

	extras := s.enrich(ctx, uniqueSymbols(entries, MaxEnrichedSymbols))
	for i := range entries {
		if extra, ok := extras[entries[i].Symbol]; ok {
			entries[i].CompanyExtra = extra
		}
	}

	buckets := Group(entries, today)
	s.logger.Info().
		Str("range", rangeName).
		Int("entries", len(entries)).
		Int("bucketed", buckets.Total()).
		Int("enriched", len(extras)).
		Msg("Calendar built")
	return buckets, nil
}

// fetch returns entries from the first calendar source that has any
func (s *Service) fetch(ctx context.Context, from, to time.Time) ([]models.CalendarEntry, bool) {
	answered := false
	for _, src := range s.calendars {
		if ctx.Err() != nil {
			break
		}
		res := src.FetchCalendar(ctx, from, to)
		metrics.SourceCall(src.Name(), common.KindCalendar, res.Available())
		if !res.Available() {
			continue
		}
		answered = true
		if len(res.Entries) == 0 {
			continue
		}

		fromStr, toStr := common.FormatDate(from), common.FormatDate(to)
		entries := make([]models.CalendarEntry, 0, len(res.Entries))
		for _, e := range res.Entries {
			e.Symbol = strings.ToUpper(strings.TrimSpace(e.Symbol))
			if e.Symbol == "" || e.Date < fromStr || e.Date > toStr {
				continue
			}
			entries = append(entries, e)
		}
		return entries, true
	}
	return nil, answered
}

// enrich looks up extras for symbols with bounded concurrency. Each symbol
// walks the extra sources until its record is complete.
func (s *Service) enrich(ctx context.Context, symbols []string) map[string]models.CompanyExtra {
	out := make(map[string]models.CompanyExtra, len(symbols))
	if len(s.extras) == 0 {
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(EnrichConcurrency)
	for _, sym := range symbols {
		g.Go(func() error {
			extra := s.extraFor(gctx, sym)
			if extra.Empty() {
				return nil
			}
			mu.Lock()
			out[sym] = extra
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Service) extraFor(ctx context.Context, symbol string) models.CompanyExtra {
	var extra models.CompanyExtra
	for _, src := range s.extras {
		if ctx.Err() != nil || extra.Complete() {
			break
		}
		res := src.FetchExtra(ctx, symbol)
		metrics.SourceCall(src.Name(), "extra", res.Available())
		if res.Available() {
			extra.Fill(res.Extra)
		}
	}
	return extra
}

// Group sorts entries into buckets relative to today: yesterday, today,
// thisWeek (today, today+7] and thisMonth (today+7, today+30]. Entries
// outside those windows are dropped.
func Group(entries []models.CalendarEntry, today time.Time) models.CalendarBuckets {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	yesterday := common.FormatDate(day.AddDate(0, 0, -1))
	todayStr := common.FormatDate(day)
	weekAhead := common.FormatDate(day.AddDate(0, 0, 7))
	monthAhead := common.FormatDate(day.AddDate(0, 0, 30))

	buckets := models.CalendarBuckets{
		Yesterday: []models.CalendarEntry{},
		Today:     []models.CalendarEntry{},
		ThisWeek:  []models.CalendarEntry{},
		ThisMonth: []models.CalendarEntry{},
	}

	sorted := append([]models.CalendarEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})

	for _, e := range sorted {
		switch {
		case e.Date == yesterday:
			buckets.Yesterday = append(buckets.Yesterday, e)
		case e.Date == todayStr:
			buckets.Today = append(buckets.Today, e)
		case e.Date > todayStr && e.Date <= weekAhead:
			buckets.ThisWeek = append(buckets.ThisWeek, e)
		case e.Date > weekAhead && e.Date <= monthAhead:
			buckets.ThisMonth = append(buckets.ThisMonth, e)
		}
	}
	return buckets
}

func uniqueSymbols(entries []models.CalendarEntry, max int) []string {
	seen := make(map[string]bool, len(entries))
	var out []string
	for _, e := range entries {
		if seen[e.Symbol] {
			continue
		}
		seen[e.Symbol] = true
		out = append(out, e.Symbol)
		if len(out) == max {
			break
		}
	}
	return out
}

func filterBuckets(b models.CalendarBuckets, symbols []string) models.CalendarBuckets {
	keep := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		keep[s] = true
	}
	filter := func(in []models.CalendarEntry) []models.CalendarEntry {
		out := make([]models.CalendarEntry, 0, len(in))
		for _, e := range in {
			if keep[e.Symbol] {
				out = append(out, e)
			}
		}
		return out
	}
	return models.CalendarBuckets{
		Yesterday: filter(b.Yesterday),
		Today:     filter(b.Today),
		ThisWeek:  filter(b.ThisWeek),
		ThisMonth: filter(b.ThisMonth),
	}
}
