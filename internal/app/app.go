package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mileslinfeng/MilesRI/internal/clients/alphavantage"
	"github.com/mileslinfeng/MilesRI/internal/clients/edgar"
	"github.com/mileslinfeng/MilesRI/internal/clients/eodhd"
	"github.com/mileslinfeng/MilesRI/internal/clients/finnhub"
	"github.com/mileslinfeng/MilesRI/internal/clients/fmp"
	"github.com/mileslinfeng/MilesRI/internal/clients/yahoo"
	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/interfaces"
	"github.com/mileslinfeng/MilesRI/internal/services/cache"
	"github.com/mileslinfeng/MilesRI/internal/services/calendar"
	"github.com/mileslinfeng/MilesRI/internal/services/earnings"
	"github.com/mileslinfeng/MilesRI/internal/services/resolver"
	"github.com/mileslinfeng/MilesRI/internal/services/watchlist"
	"github.com/mileslinfeng/MilesRI/internal/storage"
)

// App holds all initialized services, clients, and storage.
// It is the shared core used by cmd/earnings-server and the HTTP layer.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.StorageManager
	Resolver         interfaces.SymbolResolver
	Cache            interfaces.EarningsCache
	EarningsService  interfaces.EarningsService
	RefreshService   interfaces.RefreshService
	WatchlistService interfaces.WatchlistService
	CalendarService  interfaces.CalendarService
	StartupTime      time.Time

	scheduler       *cron.Cron
	unsubscribe     func()
	warmCacheCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes all services, clients and storage.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	// Load configuration - check provided path, EARNINGS_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("EARNINGS_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "earnings.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/earnings.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage paths to binary directory
	for _, area := range []*common.AreaConfig{&config.Storage.Cache, &config.Storage.Watchlist} {
		if area.Path != "" && !filepath.IsAbs(area.Path) {
			area.Path = filepath.Join(binDir, area.Path)
		}
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	for _, name := range config.MissingCredentials() {
		logger.Warn().Str("provider", name).Msg("API key not configured - provider will be skipped")
	}

	a := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		StartupTime: startupStart,
	}
	a.wire(storageManager)

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")
	return a, nil
}

// wire builds the clients and services on top of storage
func (a *App) wire(storageManager interfaces.StorageManager) {
	config := a.Config
	logger := a.Logger
	cc := config.Clients

	avClient := alphavantage.NewClient(cc.AlphaVantage.APIKey,
		alphavantage.WithBaseURL(cc.AlphaVantage.BaseURL),
		alphavantage.WithLogger(logger),
		alphavantage.WithRateLimit(cc.AlphaVantage.RateLimit),
		alphavantage.WithTimeout(cc.AlphaVantage.GetTimeout()),
	)
	finnhubClient := finnhub.NewClient(cc.Finnhub.APIKey,
		finnhub.WithBaseURL(cc.Finnhub.BaseURL),
		finnhub.WithLogger(logger),
		finnhub.WithRateLimit(cc.Finnhub.RateLimit),
		finnhub.WithTimeout(cc.Finnhub.GetTimeout()),
	)
	fmpClient := fmp.NewClient(cc.FMP.APIKey,
		fmp.WithBaseURL(cc.FMP.BaseURL),
		fmp.WithLogger(logger),
		fmp.WithRateLimit(cc.FMP.RateLimit),
		fmp.WithTimeout(cc.FMP.GetTimeout()),
	)
	eodhdClient := eodhd.NewClient(cc.EODHD.APIKey,
		eodhd.WithBaseURL(cc.EODHD.BaseURL),
		eodhd.WithLogger(logger),
		eodhd.WithRateLimit(cc.EODHD.RateLimit),
		eodhd.WithTimeout(cc.EODHD.GetTimeout()),
	)
	yahooClient := yahoo.NewClient(
		yahoo.WithBaseURL(cc.Yahoo.BaseURL),
		yahoo.WithLogger(logger),
		yahoo.WithRateLimit(cc.Yahoo.RateLimit),
		yahoo.WithTimeout(cc.Yahoo.GetTimeout()),
	)
	edgarClient := edgar.NewClient(cc.SEC.UserAgent,
		edgar.WithBaseURL(cc.SEC.BaseURL),
		edgar.WithTickersURL(cc.SEC.TickersURL),
		edgar.WithLogger(logger),
		edgar.WithRateLimit(cc.SEC.RateLimit),
		edgar.WithTimeout(cc.SEC.GetTimeout()),
	)

	symbolResolver := resolver.NewService(storageManager.RegistryStorage(), edgarClient, logger.WithComponent("resolver"))
	edgarRevenue := edgar.NewRevenueAdapter(edgarClient, symbolResolver, logger)

	// Priority order per data kind
	engine := earnings.NewEngine(earnings.Sources{
		EPS:             []interfaces.EPSSource{avClient, finnhubClient},
		Revenue:         []interfaces.RevenueSource{yahooClient, edgarRevenue, eodhdClient},
		NextDate:        []interfaces.EarningsDateSource{finnhubClient, fmpClient},
		Estimate:        []interfaces.EstimateSource{fmpClient},
		RevenueEstimate: []interfaces.RevenueEstimateSource{fmpClient},
	}, logger.WithComponent("engine"))

	cacheManager := cache.NewManager(storageManager.EarningsCacheStorage(), &config.Cache, logger.WithComponent("cache"))
	earningsService := earnings.NewService(engine, cacheManager, logger.WithComponent("earnings"))
	watchlistService := watchlist.NewService(storageManager.WatchlistStorage(), logger.WithComponent("watchlist"))
	calendarService := calendar.NewService(
		[]interfaces.CalendarSource{finnhubClient, fmpClient},
		[]interfaces.ExtraSource{yahooClient, fmpClient, eodhdClient},
		watchlistService,
		cacheManager,
		logger.WithComponent("calendar"),
	)

	a.Resolver = symbolResolver
	a.Cache = cacheManager
	a.EarningsService = earningsService
	a.RefreshService = earnings.NewRefreshGuard(earningsService, config.Refresh.GetCooldown(), logger.WithComponent("refresh"))
	a.WatchlistService = watchlistService
	a.CalendarService = calendarService
	a.unsubscribe = watchlistService.Subscribe(earningsService)
}

// Close releases all resources held by the App.
// Shutdown order: stop scheduler, cancel warm cache, detach listeners, close storage.
func (a *App) Close() {
	if a.scheduler != nil {
		<-a.scheduler.Stop().Done()
		a.scheduler = nil
	}
	if a.warmCacheCancel != nil {
		a.warmCacheCancel()
		a.warmCacheCancel = nil
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}

// StartWarmCache launches a one-off background warm of every watchlist symbol.
func (a *App) StartWarmCache() {
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	a.warmCacheCancel = warmCancel
	go func() {
		defer warmCancel()
		warmCache(warmCtx, a.WatchlistService, a.EarningsService, a.Logger)
	}()
}

// StartScheduler registers the periodic warm-cache job when enabled.
func (a *App) StartScheduler() error {
	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Scheduler: disabled")
		return nil
	}
	s, err := startScheduler(a.Config.Scheduler.WarmCache, a.WatchlistService, a.EarningsService, a.Logger)
	if err != nil {
		return err
	}
	a.scheduler = s
	return nil
}
