package common

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FlexFloat handles JSON values that may be a number, a numeric string, or
// a placeholder such as "None". Anything non-finite or non-numeric leaves
// Valid false; it is never coerced to zero.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = FlexFloat{}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if p := FinitePtr(num); p != nil {
			*f = FlexFloat{Value: *p, Valid: true}
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if p := ParseFloat(s); p != nil {
			*f = FlexFloat{Value: *p, Valid: true}
		}
	}
	return nil
}

// Ptr returns the value or nil when invalid.
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// ParseFloat parses a numeric string; placeholders, NaN and Inf yield nil.
func ParseFloat(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return FinitePtr(v)
}

// FinitePtr returns nil for NaN and ±Inf.
func FinitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Round4 rounds half away from zero to 4 decimal places.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
