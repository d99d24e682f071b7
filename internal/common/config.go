// Package common provides shared utilities for the earnings server
package common

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the earnings server
type Config struct {
	Environment string          `toml:"environment" validate:"required"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Cache       CacheConfig     `toml:"cache"`
	Clients     ClientsConfig   `toml:"clients"`
	Refresh     RefreshConfig   `toml:"refresh"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port" validate:"min=1,max=65535"`
	WriteTimeout string `toml:"write_timeout"` // must cover a cold summary across every provider chain
}

// Address returns host:port for the listener
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GetWriteTimeout parses and returns the response write deadline
func (c *ServerConfig) GetWriteTimeout() time.Duration {
	return parseDurationOr(c.WriteTimeout, 2*time.Minute)
}

// StorageConfig holds the two on-disk areas.
type StorageConfig struct {
	Cache     AreaConfig `toml:"cache"`     // earnings cache files + registry snapshot (file-based JSON)
	Watchlist AreaConfig `toml:"watchlist"` // watchlist (BadgerHold)
}

// AreaConfig holds path configuration for a storage area.
type AreaConfig struct {
	Path string `toml:"path" validate:"required"`
}

// CacheConfig holds per-kind TTLs for the memory and disk tiers.
type CacheConfig struct {
	Summary  TTLConfig `toml:"summary"`
	History  TTLConfig `toml:"history"`
	Calendar TTLConfig `toml:"calendar"`
}

// TTLConfig holds the memory and disk TTLs for one cached kind as duration strings.
type TTLConfig struct {
	Memory string `toml:"memory"`
	Disk   string `toml:"disk"`
}

// TTL returns the memory and disk TTLs for a cached kind, falling back to
// the freshness defaults when a value is missing or unparsable.
func (c *CacheConfig) TTL(kind string) (memory, disk time.Duration) {
	var tc TTLConfig
	switch kind {
	case KindSummary:
		tc = c.Summary
	case KindHistory:
		tc = c.History
	case KindCalendar:
		tc = c.Calendar
	}
	defMem, defDisk := DefaultTTL(kind)
	return parseDurationOr(tc.Memory, defMem), parseDurationOr(tc.Disk, defDisk)
}

// ClientsConfig holds upstream provider configurations
type ClientsConfig struct {
	AlphaVantage ProviderConfig `toml:"alphavantage"`
	Finnhub      ProviderConfig `toml:"finnhub"`
	FMP          ProviderConfig `toml:"fmp"`
	EODHD        ProviderConfig `toml:"eodhd"`
	Yahoo        ProviderConfig `toml:"yahoo"`
	SEC          SECConfig      `toml:"sec"`
}

// ProviderConfig holds the settings shared by every keyed HTTP provider
type ProviderConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit" validate:"gte=0"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *ProviderConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, DefaultUpstreamTimeout)
}

// Enabled reports whether the provider has a credential.
func (c *ProviderConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// SECConfig holds SEC EDGAR configuration. EDGAR needs no key but rejects
// requests without a descriptive User-Agent.
type SECConfig struct {
	BaseURL    string `toml:"base_url"`
	TickersURL string `toml:"tickers_url"`
	UserAgent  string `toml:"user_agent" validate:"required"`
	RateLimit  int    `toml:"rate_limit" validate:"gte=0"`
	Timeout    string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *SECConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, DefaultUpstreamTimeout)
}

// RefreshConfig holds the manual refresh guard settings.
type RefreshConfig struct {
	Cooldown string `toml:"cooldown"`
}

// GetCooldown parses and returns the per-symbol refresh cooldown
func (c *RefreshConfig) GetCooldown() time.Duration {
	return parseDurationOr(c.Cooldown, 30*time.Minute)
}

// SchedulerConfig holds the background warm-cache schedule.
type SchedulerConfig struct {
	Enabled   bool   `toml:"enabled"`
	WarmCache string `toml:"warm_cache"` // cron spec with seconds field
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5174,
		},
		Storage: StorageConfig{
			Cache:     AreaConfig{Path: "data/cache"},
			Watchlist: AreaConfig{Path: "data/watchlist"},
		},
		Cache: CacheConfig{
			Summary:  TTLConfig{Memory: "3h", Disk: "6h"},
			History:  TTLConfig{Memory: "6h", Disk: "12h"},
			Calendar: TTLConfig{Memory: "1h", Disk: "6h"},
		},
		Clients: ClientsConfig{
			AlphaVantage: ProviderConfig{
				BaseURL:   "https://www.alphavantage.co",
				RateLimit: 1,
				Timeout:   "15s",
			},
			Finnhub: ProviderConfig{
				BaseURL:   "https://finnhub.io/api/v1",
				RateLimit: 5,
				Timeout:   "15s",
			},
			FMP: ProviderConfig{
				BaseURL:   "https://financialmodelingprep.com/api/v3",
				RateLimit: 5,
				Timeout:   "15s",
			},
			EODHD: ProviderConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "15s",
			},
			Yahoo: ProviderConfig{
				BaseURL:   "https://query2.finance.yahoo.com",
				RateLimit: 2,
				Timeout:   "15s",
			},
			SEC: SECConfig{
				BaseURL:    "https://data.sec.gov",
				TickersURL: "https://www.sec.gov/files/company_tickers.json",
				UserAgent:  "EarningsPro/1.0 (contact@example.com)",
				RateLimit:  5,
				Timeout:    "20s",
			},
		},
		Refresh: RefreshConfig{
			Cooldown: "30m",
		},
		Scheduler: SchedulerConfig{
			Enabled:   true,
			WarmCache: "0 0 */6 * * *",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with .env and environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// .env never overrides variables already present in the environment
	_ = godotenv.Load()

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate checks struct-level constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("EARNINGS_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("EARNINGS_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("EARNINGS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("EARNINGS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("EARNINGS_DATA_PATH"); path != "" {
		config.Storage.Cache.Path = filepath.Join(path, "cache")
		config.Storage.Watchlist.Path = filepath.Join(path, "watchlist")
	}

	if v := os.Getenv("EARNINGS_REFRESH_COOLDOWN"); v != "" {
		config.Refresh.Cooldown = v
	}

	if v := os.Getenv("SEC_USER_AGENT"); v != "" {
		config.Clients.SEC.UserAgent = v
	}

	// Provider credentials
	config.Clients.AlphaVantage.APIKey = resolveKey(config.Clients.AlphaVantage.APIKey, "ALPHA_VANTAGE_KEY", "EARNINGS_ALPHA_VANTAGE_KEY")
	config.Clients.Finnhub.APIKey = resolveKey(config.Clients.Finnhub.APIKey, "FINNHUB_KEY", "EARNINGS_FINNHUB_KEY")
	config.Clients.FMP.APIKey = resolveKey(config.Clients.FMP.APIKey, "FMP_KEY", "EARNINGS_FMP_KEY")
	config.Clients.EODHD.APIKey = resolveKey(config.Clients.EODHD.APIKey, "EODHD_KEY", "EODHD_API_KEY", "EARNINGS_EODHD_KEY")
}

// resolveKey returns the first non-empty environment variable, or fallback.
func resolveKey(fallback string, envNames ...string) string {
	for _, name := range envNames {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return fallback
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// MissingCredentials lists providers that will run permanently degraded.
func (c *Config) MissingCredentials() []string {
	var missing []string
	providers := []struct {
		name string
		cfg  ProviderConfig
	}{
		{"alphavantage", c.Clients.AlphaVantage},
		{"finnhub", c.Clients.Finnhub},
		{"fmp", c.Clients.FMP},
		{"eodhd", c.Clients.EODHD},
	}
	for _, p := range providers {
		if !p.cfg.Enabled() {
			missing = append(missing, p.name)
		}
	}
	return missing
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
