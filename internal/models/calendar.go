package models

// Calendar windows
const (
	CalendarRangeDay   = "day"
	CalendarRangeWeek  = "week"
	CalendarRangeMonth = "month"
)

// CalendarEntry is one scheduled or recent earnings release.
type CalendarEntry struct {
	Symbol          string   `json:"symbol"`
	Date            string   `json:"date"`
	Time            *string  `json:"time"`
	EPSEstimate     *float64 `json:"eps"`
	RevenueEstimate *float64 `json:"revenue"`
	CompanyExtra
}

// CalendarBuckets groups entries relative to today.
type CalendarBuckets struct {
	Yesterday []CalendarEntry `json:"yesterday"`
	Today     []CalendarEntry `json:"today"`
	ThisWeek  []CalendarEntry `json:"thisWeek"`
	ThisMonth []CalendarEntry `json:"thisMonth"`
}

// Total returns the number of bucketed entries.
func (b *CalendarBuckets) Total() int {
	return len(b.Yesterday) + len(b.Today) + len(b.ThisWeek) + len(b.ThisMonth)
}

// CalendarResult is the calendar service response.
type CalendarResult struct {
	OK     bool            `json:"ok"`
	Range  string          `json:"range"`
	Data   CalendarBuckets `json:"data"`
	Cached bool            `json:"cached"`
	Source string          `json:"source"`
}
