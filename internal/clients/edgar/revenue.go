package edgar

import (
	"context"
	"fmt"
	"time"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

// revenueTags are us-gaap concepts tried in order; the first with USD units wins
var revenueTags = []string{
	"Revenues",
	"Revenue",
	"TotalRevenue",
	"RevenueFromContractWithCustomerIncludingAssessedTax",
	"RevenueFromContractWithCustomerExcludingAssessedTax",
	"SalesRevenueNet",
	"SalesRevenueServicesNet",
	"RevenuesNetOfInterestExpense",
	"OperatingRevenue",
	"RevenueFromGoodsSold",
	"RevenueFromServices",
	"RevenuesUSD",
	"RevenuesNetUSD",
}

// Quarterly facts span roughly 90 days
const (
	minQuarterDays = 80
	maxQuarterDays = 100
)

type companyFacts struct {
	Facts struct {
		USGAAP map[string]struct {
			Units map[string][]factValue `json:"units"`
		} `json:"us-gaap"`
	} `json:"facts"`
}

type factValue struct {
	Start string           `json:"start"`
	End   common.FlexDate  `json:"end"`
	Val   common.FlexFloat `json:"val"`
	Form  string           `json:"form"`
	Filed string           `json:"filed"`
}

// FetchCompanyRevenue returns quarterly revenue for a ten-digit CIK
func (c *Client) FetchCompanyRevenue(ctx context.Context, cik string) (models.RevenueIndex, error) {
	var facts companyFacts
	reqURL := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", c.baseURL, cik)
	if err := c.get(ctx, reqURL, &facts); err != nil {
		return nil, err
	}

	var values []factValue
	for _, tag := range revenueTags {
		concept, ok := facts.Facts.USGAAP[tag]
		if !ok {
			continue
		}
		if usd := concept.Units["USD"]; len(usd) > 0 {
			values = usd
			break
		}
	}

	index := models.RevenueIndex{}
	filed := map[string]string{}
	add := func(v factValue) {
		amount := v.Val.Ptr()
		if v.End == "" || amount == nil {
			return
		}
		end := v.End.String()
		// Later filings restate earlier ones
		if prev, ok := filed[end]; ok && prev > v.Filed {
			return
		}
		index[end] = *amount
		filed[end] = v.Filed
	}

	for _, v := range values {
		if isQuarterly(v) {
			add(v)
		}
	}
	if len(index) == 0 {
		for _, v := range values {
			add(v)
		}
	}
	return index, nil
}

// isQuarterly keeps instant facts and ~90-day duration facts
func isQuarterly(v factValue) bool {
	if v.Start == "" {
		return true
	}
	start, err := time.Parse(common.DateLayout, v.Start)
	if err != nil {
		return false
	}
	end, err := time.Parse(common.DateLayout, v.End.String())
	if err != nil {
		return false
	}
	days := end.Sub(start).Hours() / 24
	return days >= minQuarterDays && days <= maxQuarterDays
}

// RevenueAdapter exposes EDGAR company facts as a revenue source, resolving
// tickers to CIKs first
type RevenueAdapter struct {
	client   *Client
	resolver interfaces.SymbolResolver
	logger   *common.Logger
}

// NewRevenueAdapter creates a revenue adapter backed by a resolver
func NewRevenueAdapter(client *Client, resolver interfaces.SymbolResolver, logger *common.Logger) *RevenueAdapter {
	return &RevenueAdapter{
		client:   client,
		resolver: resolver,
		logger:   logger,
	}
}

// Name identifies the source
func (a *RevenueAdapter) Name() string {
	return sourceName
}

// FetchRevenueQuarterly resolves the symbol and reads its revenue facts. An
// unknown symbol answers with an empty index.
func (a *RevenueAdapter) FetchRevenueQuarterly(ctx context.Context, symbol string) models.RevenueResult {
	result := models.RevenueResult{Source: sourceName}

	cik, ok := a.resolver.Resolve(ctx, symbol)
	if !ok {
		a.logger.Debug().Str("symbol", symbol).Msg("No CIK for symbol")
		result.OK = true
		result.Index = models.RevenueIndex{}
		return result
	}

	index, err := a.client.FetchCompanyRevenue(ctx, cik)
	if err != nil {
		a.logger.Warn().Err(err).Str("symbol", symbol).Str("cik", cik).Msg("EDGAR company facts request failed")
		return result
	}

	result.OK = true
	result.Index = index
	return result
}

var _ interfaces.RevenueSource = (*RevenueAdapter)(nil)
