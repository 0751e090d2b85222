package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sectorrebalance/api"
	"sectorrebalance/internal/app"
	"sectorrebalance/internal/config"
	"sectorrebalance/internal/logger"
	"sectorrebalance/internal/repository"
	l1_service "sectorrebalance/internal/service/l1"
	l2_service "sectorrebalance/internal/service/l2"
	"sectorrebalance/internal/util"
	"time"

	_ "github.com/lib/pq"
)

type Options struct {
	ConfigPath string
	// sector_allocations.csv, company_rank_<sector>.json, sector_summary.json
	InputDir      string
	PositionsPath string
	OutputDir     string
	PriceFile     string
	// skip secrets entirely, file mode with yahoo prices
	NoSecrets bool
}

func DefaultOptions() Options {
	return Options{
		ConfigPath:    envOr("REBALANCE_CONFIG", "config/strategy.json"),
		InputDir:      envOr("REBALANCE_INPUT_DIR", "output"),
		PositionsPath: envOr("REBALANCE_POSITIONS", "output/positions.json"),
		OutputDir:     envOr("REBALANCE_OUTPUT_DIR", "output"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func CloseDependencies(handler *api.ApiHandler) {
	if handler.RebalancerHandler.Db == nil {
		return
	}
	if err := handler.RebalancerHandler.Db.Close(); err != nil {
		handler.Logger.Errorf("failed to close db: %v", err)
	}
}

func InitializeDependencies(opts Options) (*api.ApiHandler, error) {
	lg := logger.New()

	secrets := &util.Secrets{}
	if !opts.NoSecrets {
		loaded, err := util.LoadSecrets()
		if err != nil {
			lg.Warnf("running without secrets: %s", err.Error())
		} else {
			secrets = loaded
		}
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy config: %w", err)
	}

	var dbConn *sql.DB
	if secrets.Db.Enabled() {
		dbConn, err = sql.Open("postgres", secrets.Db.ToConnectionStr())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to db: %w", err)
		}
	}

	priceFile := opts.PriceFile
	if priceFile == "" {
		priceFile = cfg.Prices.OverridesFile
	}
	overrides, err := repository.LoadPriceOverrides(priceFile)
	if err != nil {
		return nil, err
	}

	limiter := l1_service.NewLimiter(cfg.Prices.RequestsPerSecond)
	sources := []l1_service.PriceSource{}
	if len(overrides) > 0 {
		sources = append(sources, l1_service.NewStaticPriceSource(overrides))
	}
	if secrets.Alpaca.Enabled() {
		client := l1_service.NewAlpacaMarketDataClient(secrets.Alpaca.ApiKey, secrets.Alpaca.ApiSecret, secrets.Alpaca.Endpoint)
		sources = append(sources, l1_service.NewAlpacaPriceSource(client, l1_service.NewLimiter(cfg.Prices.RequestsPerSecond)))
	}
	sources = append(sources, l1_service.NewYahooPriceSource(limiter))

	priceResolver := l1_service.NewPriceResolver(l1_service.PriceResolverOptions{
		MaxRetries:      cfg.Prices.MaxRetries,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}, sources...)
	historyService := l1_service.NewHistoryService(limiter)

	rebalancerHandler := app.RebalancerHandler{
		Db:                        dbConn,
		Config:                    *cfg,
		SectorAllocator:           l2_service.NewSectorAllocator(*cfg),
		VolatilityService:         l2_service.NewVolatilityService(historyService),
		PriceResolver:             priceResolver,
		AllocationInputRepository: repository.NewAllocationInputRepository(opts.InputDir),
		PositionsFileRepository:   repository.NewPositionsFileRepository(opts.PositionsPath),
		TradeLogRepository:        repository.NewTradeLogRepository(filepath.Join(opts.OutputDir, "trades")),
	}
	if dbConn != nil {
		rebalancerHandler.PortfolioSnapshotRepository = repository.NewPortfolioSnapshotRepository(dbConn)
		rebalancerHandler.TradeRepository = repository.NewTradeRepository(dbConn)
		rebalancerHandler.LatencyTrackingRepository = repository.NewLatencyTrackingRepository(dbConn)
	}

	lg.Infow("initialized dependencies",
		"db", dbConn != nil,
		"alpaca", secrets.Alpaca.Enabled(),
		"priceOverrides", len(overrides),
		"config", opts.ConfigPath,
	)

	return &api.ApiHandler{
		RebalancerHandler: rebalancerHandler,
		JwtSecret:         secrets.Jwt,
		Logger:            lg,
	}, nil
}
