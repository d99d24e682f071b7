package common

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-date form.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"2006-1-2",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000Z",
	"01-02-2006",
	"1-2-2006",
}

// NormalizeDate converts a slash-separated, dash-separated, timestamp or
// epoch-seconds string into YYYY-MM-DD. Year-first and US month-first
// (MM/DD/YYYY) orders are accepted. Returns "" when unparsable.
func NormalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if isDigits(s) {
		// Bare 8-digit values are compact dates, longer ones epoch seconds.
		if len(s) == 8 {
			if t, err := time.Parse("20060102", s); err == nil {
				return t.Format(DateLayout)
			}
			return ""
		}
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return ""
		}
		return EpochDate(float64(secs))
	}

	s = strings.ReplaceAll(s, "/", "-")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(DateLayout)
		}
	}
	return ""
}

// EpochDate converts epoch seconds into YYYY-MM-DD (UTC).
func EpochDate(secs float64) string {
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
		return ""
	}
	return time.Unix(int64(secs), 0).UTC().Format(DateLayout)
}

// FormatDate renders a time in the canonical layout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// FlexDate decodes a JSON string or epoch-seconds number into a canonical
// date. Unparsable input decodes to the empty date rather than failing.
type FlexDate string

func (d *FlexDate) UnmarshalJSON(data []byte) error {
	*d = ""
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = FlexDate(NormalizeDate(s))
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*d = FlexDate(EpochDate(num))
	}
	return nil
}

// String returns the canonical form.
func (d FlexDate) String() string {
	return string(d)
}

// Ptr returns nil for the empty date.
func (d FlexDate) Ptr() *string {
	if d == "" {
		return nil
	}
	s := string(d)
	return &s
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
