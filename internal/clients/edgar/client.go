// Package edgar provides a keyless SEC EDGAR client: the ticker registry used
// by the symbol resolver and XBRL company facts for quarterly revenue
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
)

const (
	DefaultBaseURL    = "https://data.sec.gov"
	DefaultTickersURL = "https://www.sec.gov/files/company_tickers.json"
	DefaultTimeout    = 20 * time.Second
	DefaultRateLimit  = 5 // SEC asks for at most 10 requests per second

	sourceName = "edgar"
)

// Client is a SEC EDGAR client
type Client struct {
	baseURL    string
	tickersURL string
	userAgent  string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the data API base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTickersURL sets the ticker registry URL
func WithTickersURL(tickersURL string) ClientOption {
	return func(c *Client) {
		c.tickersURL = tickersURL
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

// NewClient creates a new EDGAR client. SEC rejects requests without a
// descriptive User-Agent that includes a contact address.
func NewClient(userAgent string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		tickersURL: DefaultTickersURL,
		userAgent:  userAgent,
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
	return fmt.Sprintf("SEC EDGAR error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

type tickerRecord struct {
	CIK    json.Number `json:"cik_str"`
	Ticker string      `json:"ticker"`
	Title  string      `json:"title"`
}

// FetchTickerRegistry downloads the ticker table and returns upper-cased
// tickers mapped to ten-digit zero-padded CIKs
func (c *Client) FetchTickerRegistry(ctx context.Context) (map[string]string, error) {
	var raw json.RawMessage
	if err := c.get(ctx, c.tickersURL, &raw); err != nil {
		return nil, fmt.Errorf("fetch ticker registry: %w", err)
	}

	records, err := decodeTickers(raw)
	if err != nil {
		return nil, fmt.Errorf("decode ticker registry: %w", err)
	}

	registry := make(map[string]string, len(records))
	for _, r := range records {
		ticker := strings.ToUpper(strings.TrimSpace(r.Ticker))
		cik, err := r.CIK.Int64()
		if ticker == "" || err != nil || cik <= 0 {
			continue
		}
		registry[ticker] = fmt.Sprintf("%010d", cik)
	}

	c.logger.Info().Int("tickers", len(registry)).Msg("SEC ticker registry downloaded")
	return registry, nil
}

// decodeTickers accepts both the keyed-object and the array layout
func decodeTickers(raw json.RawMessage) ([]tickerRecord, error) {
	var keyed map[string]tickerRecord
	if err := json.Unmarshal(raw, &keyed); err == nil {
		records := make([]tickerRecord, 0, len(keyed))
		for _, r := range keyed {
			records = append(records, r)
		}
		return records, nil
	}

	var list []tickerRecord
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// get performs a rate-limited GET request against an absolute URL
func (c *Client) get(ctx context.Context, reqURL string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug().Str("url", reqURL).Msg("SEC EDGAR request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   req.URL.Path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var _ interfaces.TickerRegistrySource = (*Client)(nil)
