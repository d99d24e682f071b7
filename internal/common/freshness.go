// Package common provides shared utilities for the earnings server
package common

import "time"

// Cached kinds
const (
	KindSummary  = "summary"
	KindHistory  = "history"
	KindCalendar = "calendar"
)

// Default TTLs per cached kind
const (
	FreshnessSummaryMemory  = 3 * time.Hour
	FreshnessSummaryDisk    = 6 * time.Hour
	FreshnessHistoryMemory  = 6 * time.Hour
	FreshnessHistoryDisk    = 12 * time.Hour
	FreshnessCalendarMemory = 1 * time.Hour
	FreshnessCalendarDisk   = 6 * time.Hour
)

// DefaultUpstreamTimeout bounds every outbound provider call.
const DefaultUpstreamTimeout = 15 * time.Second

// DefaultTTL returns the built-in memory and disk TTLs for a kind.
func DefaultTTL(kind string) (memory, disk time.Duration) {
	switch kind {
	case KindHistory:
		return FreshnessHistoryMemory, FreshnessHistoryDisk
	case KindCalendar:
		return FreshnessCalendarMemory, FreshnessCalendarDisk
	default:
		return FreshnessSummaryMemory, FreshnessSummaryDisk
	}
}

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	return IsFreshAt(updated, ttl, time.Now())
}

// IsFreshAt is IsFresh against an explicit clock.
func IsFreshAt(updated time.Time, ttl time.Duration, now time.Time) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}
