package models

import "math"

// Signal thresholds in percent
const (
	BeatThreshold = 5.0
	MissThreshold = -5.0
)

// SignalFor maps a surprise percentage to a qualitative code:
// >= 5 beat, (0, 5) stable, <= -5 miss, anything else (nil included) neutral.
func SignalFor(surprise *float64) string {
	if surprise == nil || math.IsNaN(*surprise) || math.IsInf(*surprise, 0) {
		return SignalNeutral
	}
	v := *surprise
	switch {
	case v >= BeatThreshold:
		return SignalBeat
	case v > 0:
		return SignalStable
	case v <= MissThreshold:
		return SignalMiss
	default:
		return SignalNeutral
	}
}

// DeriveSurprise prefers a provider-supplied percentage, otherwise computes
// (actual - estimate) / |estimate| * 100. Both paths round to 4 decimals.
// Returns nil when the estimate is zero or an operand is missing.
func DeriveSurprise(provided, actual, estimate *float64) *float64 {
	if provided != nil && !math.IsNaN(*provided) && !math.IsInf(*provided, 0) {
		v := round4(*provided)
		return &v
	}
	if actual == nil || estimate == nil || *estimate == 0 {
		return nil
	}
	v := (*actual - *estimate) / math.Abs(*estimate) * 100
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	v = round4(v)
	return &v
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
