// Package yahoo provides keyless Yahoo Finance adapters: the fundamentals
// timeseries endpoint for quarterly revenue and the quote profile page for
// company enrichment
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

const (
	DefaultBaseURL   = "https://query2.finance.yahoo.com"
	DefaultPageURL   = "https://finance.yahoo.com"
	DefaultTimeout   = common.DefaultUpstreamTimeout
	DefaultRateLimit = 2

	// Yahoo rejects requests without a browser-like agent
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

	sourceName = "yahoo"

	// Quarters of revenue requested from the timeseries endpoint
	revenueLookback = 5 * 365 * 24 * time.Hour
)

var revenueTypes = []string{"quarterlyTotalRevenue", "quarterlyRevenue"}

// Client is a Yahoo Finance client
type Client struct {
	baseURL    string
	pageURL    string
	userAgent  string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the API base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithPageURL sets the base URL of the HTML quote pages
func WithPageURL(pageURL string) ClientOption {
	return func(c *Client) {
		c.pageURL = pageURL
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

// WithClock overrides the clock used for the revenue window
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		pageURL:   DefaultPageURL,
		userAgent: defaultUserAgent,
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
	return fmt.Sprintf("Yahoo Finance error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Name identifies the source
func (c *Client) Name() string {
	return sourceName
}

type timeseriesResponse struct {
	Timeseries struct {
		Result []map[string]json.RawMessage `json:"result"`
	} `json:"timeseries"`
}

type timeseriesPoint struct {
	AsOfDate      common.FlexDate `json:"asOfDate"`
	ReportedValue struct {
		Raw common.FlexFloat `json:"raw"`
	} `json:"reportedValue"`
}

// FetchRevenueQuarterly retrieves quarterly total revenue keyed by period end
func (c *Client) FetchRevenueQuarterly(ctx context.Context, symbol string) models.RevenueResult {
	result := models.RevenueResult{Source: sourceName}

	now := c.now().UTC()
	params := url.Values{}
	params.Set("type", "quarterlyTotalRevenue,quarterlyRevenue")
	params.Set("padTimeSeries", "true")
	params.Set("period1", strconv.FormatInt(now.Add(-revenueLookback).Unix(), 10))
	params.Set("period2", strconv.FormatInt(now.Unix(), 10))

	path := "/ws/fundamentals-timeseries/v1/finance/timeseries/" + url.PathEscape(symbol)
	body, err := c.fetch(ctx, c.baseURL+path+"?"+params.Encode(), "application/json")
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Yahoo timeseries request failed")
		return result
	}
	defer body.Close()

	var resp timeseriesResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Yahoo timeseries decode failed")
		return result
	}

	index := models.RevenueIndex{}
	for _, series := range resp.Timeseries.Result {
		for _, key := range revenueTypes {
			raw, ok := series[key]
			if !ok {
				continue
			}
			var points []*timeseriesPoint
			if err := json.Unmarshal(raw, &points); err != nil {
				continue
			}
			for _, p := range points {
				if p == nil || p.AsOfDate == "" {
					continue
				}
				v := p.ReportedValue.Raw.Ptr()
				if v == nil {
					continue
				}
				// quarterlyTotalRevenue is listed first and wins on overlap
				if _, exists := index[p.AsOfDate.String()]; !exists {
					index[p.AsOfDate.String()] = *v
				}
			}
		}
	}

	result.OK = true
	result.Index = index
	return result
}

// fetch performs a rate-limited GET request and returns the body on 200
func (c *Client) fetch(ctx context.Context, reqURL, accept string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug().Str("url", reqURL).Msg("Yahoo request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
			Endpoint:   req.URL.Path,
		}
	}
	return resp.Body, nil
}

// Ensure Client implements the source interfaces
var (
	_ interfaces.RevenueSource = (*Client)(nil)
	_ interfaces.ExtraSource   = (*Client)(nil)
)
