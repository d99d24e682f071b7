// Package eodhd provides a client for the EODHD API
package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = common.DefaultUpstreamTimeout
	DefaultRateLimit = 10 // requests per second

	sourceName = "eodhd"
)

// Client is an EODHD client serving quarterly revenue and company extras
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

// NewClient creates a new EODHD client
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
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Name identifies the source
func (c *Client) Name() string {
	return sourceName
}

// Ticker converts a US symbol into EODHD form (BRK.B -> BRK-B.US)
func Ticker(symbol string) string {
	return strings.ReplaceAll(symbol, ".", "-") + ".US"
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

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

// fundamentalsResponse holds the fields read from /fundamentals
type fundamentalsResponse struct {
	General struct {
		Code     string `json:"Code"`
		Name     string `json:"Name"`
		Type     string `json:"Type"`
		Sector   string `json:"Sector"`
		Industry string `json:"Industry"`
	} `json:"General"`
	Highlights struct {
		MarketCapitalization common.FlexFloat `json:"MarketCapitalization"`
	} `json:"Highlights"`
	Financials struct {
		IncomeStatement struct {
			Quarterly map[string]struct {
				Date         common.FlexDate  `json:"date"`
				TotalRevenue common.FlexFloat `json:"totalRevenue"`
			} `json:"quarterly"`
		} `json:"Income_Statement"`
	} `json:"Financials"`
}

func (c *Client) fundamentals(ctx context.Context, symbol string) (*fundamentalsResponse, error) {
	var resp fundamentalsResponse
	if err := c.get(ctx, "/fundamentals/"+Ticker(symbol), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchRevenueQuarterly reads quarterly total revenue from fundamentals
func (c *Client) FetchRevenueQuarterly(ctx context.Context, symbol string) models.RevenueResult {
	result := models.RevenueResult{Source: sourceName}
	if c.apiKey == "" {
		return result
	}

	resp, err := c.fundamentals(ctx, symbol)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("EODHD fundamentals request failed")
		return result
	}

	index := models.RevenueIndex{}
	for key, q := range resp.Financials.IncomeStatement.Quarterly {
		date := q.Date.String()
		if date == "" {
			date = common.NormalizeDate(key)
		}
		v := q.TotalRevenue.Ptr()
		if date == "" || v == nil {
			continue
		}
		index[date] = *v
	}

	result.OK = true
	result.Index = index
	return result
}

type realTimeResponse struct {
	Code  string           `json:"code"`
	Close common.FlexFloat `json:"close"`
}

// FetchExtra reads sector and market cap from fundamentals and the last
// price from the real-time endpoint
func (c *Client) FetchExtra(ctx context.Context, symbol string) models.ExtraResult {
	result := models.ExtraResult{Source: sourceName}
	if c.apiKey == "" {
		return result
	}

	var extra models.CompanyExtra
	if resp, err := c.fundamentals(ctx, symbol); err != nil {
		c.logger.Debug().Err(err).Str("symbol", symbol).Msg("EODHD fundamentals request failed")
	} else {
		result.OK = true
		extra.Sector = common.StringPtr(resp.General.Sector)
		extra.MarketCap = resp.Highlights.MarketCapitalization.Ptr()
	}

	var rt realTimeResponse
	if err := c.get(ctx, "/real-time/"+Ticker(symbol), nil, &rt); err != nil {
		c.logger.Debug().Err(err).Str("symbol", symbol).Msg("EODHD real-time request failed")
	} else {
		result.OK = true
		extra.Price = rt.Close.Ptr()
	}

	result.Extra = extra
	return result
}

// Ensure Client implements the source interfaces
var (
	_ interfaces.RevenueSource = (*Client)(nil)
	_ interfaces.ExtraSource   = (*Client)(nil)
)
