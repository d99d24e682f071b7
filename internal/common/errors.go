package common

import "errors"

// Sentinel errors shared across services and the HTTP layer.
var (
	ErrInvalidSymbol       = errors.New("invalid symbol")
	ErrInvalidLimit        = errors.New("invalid limit")
	ErrInvalidRange        = errors.New("invalid calendar range")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrRefreshCooldown     = errors.New("refresh cooldown active")
	ErrNotFound            = errors.New("not found")
)
