// Package finnhub provides a client for the Finnhub earnings endpoints
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

const (
	DefaultBaseURL   = "https://finnhub.io/api/v1"
	DefaultTimeout   = common.DefaultUpstreamTimeout
	DefaultRateLimit = 5

	sourceName = "finnhub"

	// Window searched for a symbol's next report date
	dateLookBack  = 120 * 24 * time.Hour
	dateLookAhead = 240 * 24 * time.Hour
)

// Client is a Finnhub API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
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

// WithClock overrides the clock used for date windows
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Finnhub client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
		now:     time.Now,
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
	return fmt.Sprintf("Finnhub API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Name identifies the source
func (c *Client) Name() string {
	return sourceName
}

type earningsSurprise struct {
	Actual          common.FlexFloat `json:"actual"`
	Estimate        common.FlexFloat `json:"estimate"`
	Period          common.FlexDate  `json:"period"`
	SurprisePercent common.FlexFloat `json:"surprisePercent"`
	Symbol          string           `json:"symbol"`
}

// FetchEPSHistory retrieves reported vs estimated EPS. Finnhub exposes no
// announcement date, so the period end doubles as the reported date.
func (c *Client) FetchEPSHistory(ctx context.Context, symbol string) models.EPSResult {
	result := models.EPSResult{Source: sourceName}
	if c.apiKey == "" {
		return result
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	var resp []earningsSurprise
	if err := c.get(ctx, "/stock/earnings", params, &resp); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Finnhub earnings request failed")
		return result
	}

	rows := make([]models.EarningsRow, 0, len(resp))
	for _, e := range resp {
		if e.Period == "" {
			continue
		}
		actual := e.Actual.Ptr()
		estimate := e.Estimate.Ptr()
		rows = append(rows, models.EarningsRow{
			FiscalDateEnding: e.Period.String(),
			ReportedDate:     e.Period.Ptr(),
			ReportedEPS:      actual,
			EstimatedEPS:     estimate,
			SurprisePercent:  models.DeriveSurprise(e.SurprisePercent.Ptr(), actual, estimate),
		})
	}

	result.OK = true
	result.Rows = rows
	return result
}

type calendarResponse struct {
	EarningsCalendar []calendarItem `json:"earningsCalendar"`
}

type calendarItem struct {
	Date            common.FlexDate  `json:"date"`
	EPSEstimate     common.FlexFloat `json:"epsEstimate"`
	Hour            string           `json:"hour"`
	RevenueEstimate common.FlexFloat `json:"revenueEstimate"`
	Symbol          string           `json:"symbol"`
}

// FetchNextEarningsDate searches the calendar around today for the symbol and
// returns the nearest date on or after today, else the latest past date.
func (c *Client) FetchNextEarningsDate(ctx context.Context, symbol string) models.DateResult {
	result := models.DateResult{Source: sourceName}
	if c.apiKey == "" {
		return result
	}

	today := c.now().UTC().Truncate(24 * time.Hour)
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("from", common.FormatDate(today.Add(-dateLookBack)))
	params.Set("to", common.FormatDate(today.Add(dateLookAhead)))

	var resp calendarResponse
	if err := c.get(ctx, "/calendar/earnings", params, &resp); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Finnhub calendar request failed")
		return result
	}

	dates := make([]string, 0, len(resp.EarningsCalendar))
	for _, item := range resp.EarningsCalendar {
		if item.Symbol == symbol && item.Date != "" {
			dates = append(dates, item.Date.String())
		}
	}

	result.Date = PickNearest(dates, common.FormatDate(today))
	result.OK = true
	return result
}

// PickNearest returns the earliest date >= today, else the latest date before
// today. Dates must be canonical YYYY-MM-DD strings.
func PickNearest(dates []string, today string) *string {
	var future, past string
	for _, d := range dates {
		if d >= today {
			if future == "" || d < future {
				future = d
			}
		} else if d > past {
			past = d
		}
	}
	if future != "" {
		return &future
	}
	return common.StringPtr(past)
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

	var resp calendarResponse
	if err := c.get(ctx, "/calendar/earnings", params, &resp); err != nil {
		c.logger.Warn().Err(err).Msg("Finnhub calendar window request failed")
		return result
	}

	entries := make([]models.CalendarEntry, 0, len(resp.EarningsCalendar))
	for _, item := range resp.EarningsCalendar {
		if item.Symbol == "" || item.Date == "" {
			continue
		}
		entries = append(entries, models.CalendarEntry{
			Symbol:          item.Symbol,
			Date:            item.Date.String(),
			Time:            reportTime(item.Hour),
			EPSEstimate:     item.EPSEstimate.Ptr(),
			RevenueEstimate: item.RevenueEstimate.Ptr(),
		})
	}

	result.OK = true
	result.Entries = entries
	return result
}

func reportTime(hour string) *string {
	switch hour {
	case "bmo":
		return common.StringPtr("before-open")
	case "amc":
		return common.StringPtr("after-close")
	case "dmh":
		return common.StringPtr("during-market")
	}
	return nil
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Finnhub API request")

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
	_ interfaces.EPSSource          = (*Client)(nil)
	_ interfaces.EarningsDateSource = (*Client)(nil)
	_ interfaces.CalendarSource     = (*Client)(nil)
)
