package models

// Results returned by source adapters. OK is false when the provider could
// not be reached, rejected the request, or returned an unusable body. A
// provider that answered with no data is OK with an empty payload.

// Available reports whether the provider answered.
func (r EPSResult) Available() bool { return r.OK }

// Available reports whether the provider answered.
func (r RevenueResult) Available() bool { return r.OK }

// Available reports whether the provider answered.
func (r DateResult) Available() bool { return r.OK }

// Available reports whether the provider answered.
func (r EstimateResult) Available() bool { return r.OK }

// Available reports whether the provider answered.
func (r ExtraResult) Available() bool { return r.OK }

// Available reports whether the provider answered.
func (r CalendarFetchResult) Available() bool { return r.OK }

// EPSResult carries EPS history rows from one provider.
type EPSResult struct {
	OK     bool
	Source string
	Rows   []EarningsRow
}

// RevenueResult carries a quarterly revenue index from one provider.
type RevenueResult struct {
	OK     bool
	Source string
	Index  RevenueIndex
}

// DateResult carries the next (or latest) earnings date.
type DateResult struct {
	OK     bool
	Source string
	Date   *string
}

// EstimateResult carries a single estimate value (EPS or revenue).
type EstimateResult struct {
	OK     bool
	Source string
	Value  *float64
}

// ExtraResult carries company enrichment data.
type ExtraResult struct {
	OK     bool
	Source string
	Extra  CompanyExtra
}

// CalendarFetchResult carries market-wide calendar entries for a window.
type CalendarFetchResult struct {
	OK      bool
	Source  string
	Entries []CalendarEntry
}

// CompanyExtra holds enrichment fields for a symbol.
type CompanyExtra struct {
	Sector    *string  `json:"sector"`
	Price     *float64 `json:"price"`
	MarketCap *float64 `json:"marketCap"`
}

// Complete reports whether every field is populated.
func (e CompanyExtra) Complete() bool {
	return e.Sector != nil && e.Price != nil && e.MarketCap != nil
}

// Empty reports whether no field is populated.
func (e CompanyExtra) Empty() bool {
	return e.Sector == nil && e.Price == nil && e.MarketCap == nil
}

// Fill copies fields from other that are missing on e.
func (e *CompanyExtra) Fill(other CompanyExtra) {
	if e.Sector == nil {
		e.Sector = other.Sector
	}
	if e.Price == nil {
		e.Price = other.Price
	}
	if e.MarketCap == nil {
		e.MarketCap = other.MarketCap
	}
}
