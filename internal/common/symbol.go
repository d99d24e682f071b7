package common

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxSymbolLength bounds accepted tickers.
const MaxSymbolLength = 15

// History window bounds
const (
	MinHistoryLimit     = 4
	MaxHistoryLimit     = 20
	DefaultHistoryLimit = 16
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.\-]+$`)

// NormalizeSymbol trims and upper-cases a ticker and checks it against the
// allowed character set (letters, digits, '.', '-').
func NormalizeSymbol(raw string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if symbol == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSymbol)
	}
	if len(symbol) > MaxSymbolLength {
		return "", fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidSymbol, symbol, MaxSymbolLength)
	}
	if !symbolPattern.MatchString(symbol) || strings.Contains(symbol, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return symbol, nil
}

// ClampHistoryLimit maps a requested history length into [4, 20].
// Zero means "not supplied" and yields the default.
func ClampHistoryLimit(n int) int {
	switch {
	case n == 0:
		return DefaultHistoryLimit
	case n < MinHistoryLimit:
		return MinHistoryLimit
	case n > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return n
}
