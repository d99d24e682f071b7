package models

import "time"

// WatchlistItem is one tracked symbol.
type WatchlistItem struct {
	Symbol  string    `json:"symbol"`
	AddedAt time.Time `json:"addedAt"`
}

// Watchlist change types
const (
	WatchlistAdded   = "added"
	WatchlistRemoved = "removed"
)

// WatchlistEvent describes a single watchlist change.
type WatchlistEvent struct {
	Type   string    `json:"type"`
	Symbol string    `json:"symbol"`
	At     time.Time `json:"at"`
}
