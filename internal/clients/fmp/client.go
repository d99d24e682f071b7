// Package fmp provides a client for the Financial Modeling Prep API
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

const (
	DefaultBaseURL   = "https://financialmodelingprep.com/api/v3"
	DefaultTimeout   = common.DefaultUpstreamTimeout
	DefaultRateLimit = 5

	sourceName = "fmp"
)

// Client is a Financial Modeling Prep API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit; zero disables limiting
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new FMP client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("FMP API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Name identifies the source
func (c *Client) Name() string {
	return sourceName
}

type calendarItem struct {
	Date             common.FlexDate  `json:"date"`
	Symbol           string           `json:"symbol"`
	EPS              common.FlexFloat `json:"eps"`
	EPSEstimated     common.FlexFloat `json:"epsEstimated"`
	Time             string           `json:"time"`
	Revenue          common.FlexFloat `json:"revenue"`
	RevenueEstimated common.FlexFloat `json:"revenueEstimated"`
	RevenueEstimate  common.FlexFloat `json:"revenueEstimate"`
	FiscalDateEnding common.FlexDate  `json:"fiscalDateEnding"`
}

func (i calendarItem) revenueEstimate() *float64 {
	if v := i.RevenueEstimated.Ptr(); v != nil {
		return v
	}
	return i.RevenueEstimate.Ptr()
}

func (c *Client) symbolCalendar(ctx context.Context, symbol string, limit int) ([]calendarItem, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	var items []calendarItem
	if err := c.get(ctx, "/earning_calendar/"+url.PathEscape(symbol), params, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchNextEarningsDate returns the first dated entry of the symbol's calendar
func (c *Client) FetchNextEarningsDate(ctx context.Context, symbol string) models.DateResult {
	result := models.DateResult{Source: sourceName}
	if c.apiKey == "" {
		return result
	}

	items, err := c.symbolCalendar(ctx, symbol, 2)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("FMP earnings calendar request failed")
		return result
	}

	for _, item := range items {
		if item.Date != "" {
			result.Date = item.Date.Ptr()
			break
		}
	}
	result.OK = true
	return result
}

// FetchRevenueEstimate returns the consensus revenue estimate for the quarter
// whose calendar date matches fiscalDate exactly
func (c *Client) FetchRevenueEstimate(ctx context.Context, symbol, fiscalDate string) models.EstimateResult {
	result := models.EstimateResult{Source: sourceName}
	if c.apiKey == "" || fiscalDate == "" {
		return result
	}

	items, err := c.symbolCalendar(ctx, symbol, 4)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("FMP revenue estimate request failed")
		return result
	}

	for _, item := range items {
		if item.Date.String() == fiscalDate || item.FiscalDateEnding.String() == fiscalDate {
			result.Value = item.revenueEstimate()
			break
		}
	}
	result.OK = true
	return result
}

type surpriseItem struct {
	Date                common.FlexDate  `json:"date"`
	Symbol              string           `json:"symbol"`
	ActualEarningResult common.FlexFloat `json:"actualEarningResult"`
	EstimatedEarning    common.FlexFloat `json:"estimatedEarning"`
	Estimate            common.FlexFloat `json:"estimate"`
}

// FetchEPSEstimate returns the EPS estimate for the quarter whose date
// matches fiscalDate exactly
func (c *Client) FetchEPSEstimate(ctx context.Context, symbol, fiscalDate string) models.EstimateResult {
	result := models.EstimateResult{Source: sourceName}
	if c.apiKey == "" || fiscalDate == "" {
		return result
	}

	params := url.Values{}
	params.Set("limit", "4")

	var items []surpriseItem
	if err := c.get(ctx, "/earnings-surprises/"+url.PathEscape(symbol), params, &items); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("FMP earnings surprises request failed")
		return result
	}

	for _, item := range items {
		if item.Date.String() != fiscalDate {
			continue
		}
		result.Value = item.EstimatedEarning.Ptr()
		if result.Value == nil {
			result.Value = item.Estimate.Ptr()
		}
		break
	}
	result.OK = true
	return result
}

// FetchCalendar retrieves all releases in the window
func (c *Client) FetchCalendar(ctx context.Context, from, to time.Time) models.CalendarFetchResult {
	result := models.CalendarFetchResult{Source: sourceName}
	if c.apiKey == "" {
		return result
	}

	params := url.Values{}
	params.Set("from", common.FormatDate(from))
	params.Set("to", common.FormatDate(to))

	var items []calendarItem
	if err := c.get(ctx, "/earning_calendar", params, &items); err != nil {
		c.logger.Warn().Err(err).Msg("FMP calendar window request failed")
		return result
	}

	entries := make([]models.CalendarEntry, 0, len(items))
	for _, item := range items {
		if item.Symbol == "" || item.Date == "" {
			continue
		}
		entries = append(entries, models.CalendarEntry{
			Symbol:          item.Symbol,
			Date:            item.Date.String(),
			Time:            reportTime(item.Time),
			EPSEstimate:     item.EPSEstimated.Ptr(),
			RevenueEstimate: item.revenueEstimate(),
		})
	}

	result.OK = true
	result.Entries = entries
	return result
}

func reportTime(t string) *string {
	switch t {
	case "bmo":
		return common.StringPtr("before-open")
	case "amc":
		return common.StringPtr("after-close")
	}
	return nil
}

type profileItem struct {
	Symbol string           `json:"symbol"`
	Price  common.FlexFloat `json:"price"`
	MktCap common.FlexFloat `json:"mktCap"`
	Sector string           `json:"sector"`
}

type quoteItem struct {
	Symbol    string           `json:"symbol"`
	Price     common.FlexFloat `json:"price"`
	MarketCap common.FlexFloat `json:"marketCap"`
}

// FetchExtra fetches profile and quote concurrently and merges them, the
// profile taking precedence
func (c *Client) FetchExtra(ctx context.Context, symbol string) models.ExtraResult {
	result := models.ExtraResult{Source: sourceName}
	if c.apiKey == "" {
		return result
	}

	var profiles []profileItem
	var quotes []quoteItem
	var profileErr, quoteErr error

	var g errgroup.Group
	g.Go(func() error {
		if profileErr = c.get(ctx, "/profile/"+url.PathEscape(symbol), nil, &profiles); profileErr != nil {
			c.logger.Debug().Err(profileErr).Str("symbol", symbol).Msg("FMP profile request failed")
		}
		return nil
	})
	g.Go(func() error {
		if quoteErr = c.get(ctx, "/quote/"+url.PathEscape(symbol), nil, &quotes); quoteErr != nil {
			c.logger.Debug().Err(quoteErr).Str("symbol", symbol).Msg("FMP quote request failed")
		}
		return nil
	})
	_ = g.Wait()

	var extra models.CompanyExtra
	if len(profiles) > 0 {
		p := profiles[0]
		extra.Sector = common.StringPtr(p.Sector)
		extra.Price = p.Price.Ptr()
		extra.MarketCap = p.MktCap.Ptr()
	}
	if len(quotes) > 0 {
		q := quotes[0]
		extra.Fill(models.CompanyExtra{Price: q.Price.Ptr(), MarketCap: q.MarketCap.Ptr()})
	}

	result.Extra = extra
	result.OK = profileErr == nil || quoteErr == nil
	return result
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", c.baseURL+path).Msg("FMP API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Ensure Client implements the source interfaces
var (
	_ interfaces.EarningsDateSource    = (*Client)(nil)
	_ interfaces.EstimateSource        = (*Client)(nil)
	_ interfaces.RevenueEstimateSource = (*Client)(nil)
	_ interfaces.ExtraSource           = (*Client)(nil)
	_ interfaces.CalendarSource        = (*Client)(nil)
)
