// Package alphavantage provides a client for the Alpha Vantage EARNINGS endpoint
package alphavantage

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
	DefaultBaseURL   = "https://www.alphavantage.co"
	DefaultTimeout   = common.DefaultUpstreamTimeout
	DefaultRateLimit = 1 // requests per second; the free tier is far stricter per day

	sourceName = "alphavantage"
)

// Client fetches quarterly EPS history from Alpha Vantage
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
		c.limiter = newLimiter(requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Alpha Vantage client. An empty key leaves the
// client permanently unavailable.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: newLimiter(DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func newLimiter(rps int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), rps)
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Alpha Vantage API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Name identifies the source
func (c *Client) Name() string {
	return sourceName
}

type earningsResponse struct {
	Symbol            string           `json:"symbol"`
	QuarterlyEarnings []quarterlyEntry `json:"quarterlyEarnings"`
	QuarterlyReports  []quarterlyEntry `json:"quarterlyReports"`
	Note              string           `json:"Note"`
	Information       string           `json:"Information"`
	ErrorMessage      string           `json:"Error Message"`
}

type quarterlyEntry struct {
	FiscalDateEnding   common.FlexDate  `json:"fiscalDateEnding"`
	ReportedDate       common.FlexDate  `json:"reportedDate"`
	ReportedEPS        common.FlexFloat `json:"reportedEPS"`
	EstimatedEPS       common.FlexFloat `json:"estimatedEPS"`
	SurprisePercentage common.FlexFloat `json:"surprisePercentage"`
}

// FetchEPSHistory retrieves quarterly EPS rows. Throttle and error notices
// count as unavailable; an unknown symbol answers with no rows.
func (c *Client) FetchEPSHistory(ctx context.Context, symbol string) models.EPSResult {
	result := models.EPSResult{Source: sourceName}
	if c.apiKey == "" {
		return result
	}

	start := time.Now()
	params := url.Values{}
	params.Set("function", "EARNINGS")
	params.Set("symbol", symbol)

	var resp earningsResponse
	if err := c.get(ctx, "/query", params, &resp); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Alpha Vantage earnings request failed")
		return result
	}

	list := resp.QuarterlyEarnings
	if len(list) == 0 {
		list = resp.QuarterlyReports
	}
	if len(list) == 0 {
		if notice := resp.notice(); notice != "" {
			c.logger.Warn().Str("symbol", symbol).Str("notice", notice).Msg("Alpha Vantage refused earnings request")
			return result
		}
	}

	rows := make([]models.EarningsRow, 0, len(list))
	for _, q := range list {
		if q.FiscalDateEnding == "" {
			continue
		}
		actual := q.ReportedEPS.Ptr()
		estimate := q.EstimatedEPS.Ptr()
		rows = append(rows, models.EarningsRow{
			FiscalDateEnding: q.FiscalDateEnding.String(),
			ReportedDate:     q.ReportedDate.Ptr(),
			ReportedEPS:      actual,
			EstimatedEPS:     estimate,
			SurprisePercent:  models.DeriveSurprise(q.SurprisePercentage.Ptr(), actual, estimate),
		})
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Int("rows", len(rows)).
		Dur("elapsed", time.Since(start)).
		Msg("Alpha Vantage earnings fetched")

	result.OK = true
	result.Rows = rows
	return result
}

func (r earningsResponse) notice() string {
	switch {
	case r.Note != "":
		return r.Note
	case r.Information != "":
		return r.Information
	}
	return r.ErrorMessage
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

	c.logger.Debug().Str("url", c.baseURL+path).Str("function", params.Get("function")).Msg("Alpha Vantage API request")

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

var _ interfaces.EPSSource = (*Client)(nil)
