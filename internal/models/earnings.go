// Package models defines data structures for the earnings server
package models

import (
	"encoding/json"
	"time"
)

// Qualitative signal codes derived from the surprise percentage
const (
	SignalBeat    = "beat"
	SignalStable  = "stable"
	SignalMiss    = "miss"
	SignalNeutral = "neutral"
)

// Where a served payload came from
const (
	SourceMemory    = "memory"
	SourceDisk      = "disk"
	SourceFresh     = "fresh"
	SourceStaleDisk = "stale-disk"
	SourceInflight  = "inflight"
)

// EarningsRow holds one fiscal quarter's EPS facts for one symbol.
// FiscalDateEnding is the join key across sources; every other field is optional.
type EarningsRow struct {
	FiscalDateEnding string   `json:"fiscalDateEnding"`
	ReportedDate     *string  `json:"reportedDate"`
	ReportedEPS      *float64 `json:"reportedEPS"`
	EstimatedEPS     *float64 `json:"estimatedEPS"`
	SurprisePercent  *float64 `json:"surprisePercent"`
}

// RevenueIndex maps a fiscal date ending to reported revenue (USD).
type RevenueIndex map[string]float64

// Lookup returns the revenue for a fiscal date, or nil.
func (idx RevenueIndex) Lookup(fiscalDate string) *float64 {
	if idx == nil || fiscalDate == "" {
		return nil
	}
	v, ok := idx[fiscalDate]
	if !ok {
		return nil
	}
	return &v
}

// Summary is the reconciled latest-quarter view for one symbol. The shape is
// always complete; fields are nil when no source supplied them.
type Summary struct {
	Symbol           string   `json:"symbol"`
	LastReportDate   *string  `json:"lastReportDate"`
	FiscalDateEnding *string  `json:"fiscalDateEnding"`
	ReportedEPS      *float64 `json:"reportedEPS"`
	EstimatedEPS     *float64 `json:"estimatedEPS"`
	Surprise         *float64 `json:"surprise"`
	ReportedRevenue  *float64 `json:"reportedRevenue"`
	EstimatedRevenue *float64 `json:"estimatedRevenue"`
	RevenueSurprise  *float64 `json:"revenueSurprise"`
	NextEarningsDate *string  `json:"nextEarningsDate"`
	SignalCode       string   `json:"aiCode"`
}

// HistoryRow is one reconciled quarter in a history.
type HistoryRow struct {
	FiscalDateEnding string   `json:"fiscalDateEnding"`
	ReportedDate     *string  `json:"reportedDate"`
	ReportedEPS      *float64 `json:"reportedEPS"`
	EstimatedEPS     *float64 `json:"estimatedEPS"`
	Surprise         *float64 `json:"surprise"`
	Revenue          *float64 `json:"revenue"`
	SignalCode       string   `json:"aiCode"`
}

// HistoryStats summarises surprise behaviour across a history.
type HistoryStats struct {
	Quarters       int      `json:"quarters"`
	Beats          int      `json:"beats"`
	Stable         int      `json:"stable"`
	Misses         int      `json:"misses"`
	Neutral        int      `json:"neutral"`
	BeatRate       *float64 `json:"beatRate"`
	MeanSurprise   *float64 `json:"meanSurprise"`
	StdDevSurprise *float64 `json:"stdDevSurprise"`
}

// CacheEntry is the persisted form of one cached payload.
type CacheEntry struct {
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	Data      json.RawMessage `json:"data"`
}

// WrittenAt returns the write time.
func (e *CacheEntry) WrittenAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// SummaryResult is the Facade response for a summary request.
type SummaryResult struct {
	OK      bool     `json:"ok"`
	Data    *Summary `json:"data"`
	Cached  bool     `json:"cached"`
	Source  string   `json:"source"`
	Warning string   `json:"warning,omitempty"`
}

// HistoryResult is the Facade response for a history request.
type HistoryResult struct {
	OK      bool          `json:"ok"`
	Data    []HistoryRow  `json:"data"`
	Cached  bool          `json:"cached"`
	Source  string        `json:"source"`
	Stats   *HistoryStats `json:"stats,omitempty"`
	Warning string        `json:"warning,omitempty"`
}
