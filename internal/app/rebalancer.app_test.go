package app

import (
	"context"
	"os"
	"path/filepath"
	"sectorrebalance/internal/config"
	"sectorrebalance/internal/domain"
	"sectorrebalance/internal/repository"
	l1_service "sectorrebalance/internal/service/l1"
	mock_l1_service "sectorrebalance/internal/service/l1/mocks"
	l2_service "sectorrebalance/internal/service/l2"
	"sectorrebalance/internal/util"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testConfig() config.StrategyConfig {
	cfg := config.Default()
	cfg.EtfMap = map[string]config.EtfMapping{
		"financials": {US: "XLF", HK: "2800.HK"},
		"technology": {US: "XLK"},
	}
	cfg.Trading.AllowedMarkets = []string{"US"}
	cfg.Trading.MarketBudgets = map[domain.Market]decimal.Decimal{
		domain.MarketUS: decimal.NewFromInt(120000),
	}
	cfg.Trading.MinTurnoverRatio = 0
	return cfg
}

func newTestHandler(t *testing.T, cfg config.StrategyConfig) (RebalancerHandler, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "sector_allocations.csv"),
		[]byte("sector,weight,allocation_pct\nfinancials,1.0,40\ntechnology,1.0,20\n"),
		0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "sector_summary.json"),
		[]byte(`[{"sector": "financials", "avg_score": 7}, {"sector": "technology", "avg_score": 7}]`),
		0o644,
	))

	resolver := l1_service.NewPriceResolver(
		l1_service.PriceResolverOptions{},
		l1_service.NewStaticPriceSource(map[string]decimal.Decimal{
			"XLF": decimal.NewFromInt(40),
			"XLK": decimal.NewFromInt(200),
		}),
	)

	return RebalancerHandler{
		Config:                    cfg,
		SectorAllocator:           l2_service.NewSectorAllocator(cfg),
		PriceResolver:             resolver,
		AllocationInputRepository: repository.NewAllocationInputRepository(dir),
		PositionsFileRepository:   repository.NewPositionsFileRepository(filepath.Join(dir, "positions.json")),
		TradeLogRepository:        repository.NewTradeLogRepository(filepath.Join(dir, "trades")),
	}, dir
}

func TestRebalancerHandler_Run(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 2, 14, 0, 0, 0, time.UTC)

	t.Run("allocate, rebalance and persist", func(t *testing.T) {
		handler, dir := newTestHandler(t, testConfig())

		result, err := handler.Run(ctx, RunInput{Now: now})
		require.NoError(t, err)

		require.Len(t, result.Report.Sectors, 2)
		require.Equal(t, 36.0, result.Report.Sectors[0].Suggestions[0].AllocationPct)
		require.Equal(t, 18.0, result.Report.Sectors[1].Suggestions[0].AllocationPct)

		require.Len(t, result.Targets, 2)
		require.True(t, result.Targets["XLF"].TargetAmount.Equal(decimal.NewFromInt(80000)))
		require.True(t, result.Targets["XLK"].TargetAmount.Equal(decimal.NewFromInt(40000)))

		trades := result.Batch.Trades
		require.Len(t, trades, 2)
		require.Equal(t, "XLF", trades[0].Ticker)
		require.Equal(t, int64(2000), trades[0].Shares)
		require.Equal(t, "XLK", trades[1].Ticker)
		require.Equal(t, int64(200), trades[1].Shares)
		require.True(t, result.Batch.NewPositions.CashByMarket[domain.MarketUS].IsZero())
		require.NotNil(t, result.Profile.TotalMs)

		saved, err := repository.NewPositionsFileRepository(filepath.Join(dir, "positions.json")).Get()
		require.NoError(t, err)
		require.Equal(t, util.NewDate(2024, 5, 2), saved.Date)
		require.Equal(t, map[string]int64{"XLF": 2000, "XLK": 200}, saved.SharesByTicker())

		require.NotNil(t, result.Exported)
		_, err = os.Stat(result.Exported.TradesCsv)
		require.NoError(t, err)

		// holdings already match, so a second run trades nothing
		again, err := handler.Run(ctx, RunInput{Now: now.Add(time.Hour)})
		require.NoError(t, err)
		require.Empty(t, again.Batch.Trades)
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		handler, dir := newTestHandler(t, testConfig())

		result, err := handler.Run(ctx, RunInput{Now: now, DryRun: true})
		require.NoError(t, err)
		require.Len(t, result.Batch.Trades, 2)
		require.Nil(t, result.Exported)

		_, err = os.Stat(filepath.Join(dir, "positions.json"))
		require.True(t, os.IsNotExist(err))
	})

	t.Run("missing price skips the ticker", func(t *testing.T) {
		cfg := testConfig()
		cfg.EtfMap["energy"] = config.EtfMapping{US: "XLE"}
		handler, _ := newTestHandler(t, cfg)

		result, err := handler.Run(ctx, RunInput{
			Now:    now,
			DryRun: true,
			Allocation: AllocateInput{
				SectorWeights: []domain.SectorWeight{
					{Sector: "financials", Pct: 40},
					{Sector: "energy", Pct: 10},
				},
				SectorBias: map[string]domain.Bias{"energy": domain.BiasLong},
			},
		})
		require.NoError(t, err)
		require.Equal(t, []string{"XLE"}, result.Batch.SkippedTickers)
		require.Len(t, result.Batch.Trades, 1)
		require.Equal(t, "XLF", result.Batch.Trades[0].Ticker)
		require.Equal(t, int64(2400), result.Batch.Trades[0].Shares)
	})

	t.Run("unmapped sector is a placeholder", func(t *testing.T) {
		handler, _ := newTestHandler(t, testConfig())

		result, err := handler.Run(ctx, RunInput{
			Now:    now,
			DryRun: true,
			Allocation: AllocateInput{
				SectorWeights: []domain.SectorWeight{
					{Sector: "financials", Pct: 40},
					{Sector: "utilities", Pct: 10},
				},
			},
		})
		require.NoError(t, err)
		require.Equal(t, "utilities ETF", result.Report.Sectors[1].Suggestions[0].Name)
		require.Empty(t, result.Report.Sectors[1].Suggestions[0].Ticker)
		require.Len(t, result.Targets, 1)
		require.Equal(t, int64(3000), result.Batch.Trades[0].Shares)
	})

	t.Run("invalid market override", func(t *testing.T) {
		handler, _ := newTestHandler(t, testConfig())
		_, err := handler.Run(ctx, RunInput{
			Now:        now,
			Allocation: AllocateInput{AllowedMarkets: []string{"JP"}},
		})
		require.Error(t, err)
	})
}

func alternatingCloses(r float64, n int) []float64 {
	out := []float64{100}
	for i := 1; i < n; i++ {
		step := r
		if i%2 == 0 {
			step = -r
		}
		out = append(out, out[i-1]*(1+step))
	}
	return out
}

func TestRebalancerHandler_Allocate(t *testing.T) {
	ctx := context.Background()

	t.Run("volatility adjustment", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		history := mock_l1_service.NewMockHistoryService(ctrl)
		history.EXPECT().DailyCloses(gomock.Any(), "XLF", 90).Return(alternatingCloses(0.01, 30), nil)
		history.EXPECT().DailyCloses(gomock.Any(), "XLK", 90).Return(alternatingCloses(0.02, 30), nil)

		cfg := testConfig()
		cfg.Allocation.AdjustVolatility = true
		handler, _ := newTestHandler(t, cfg)
		handler.VolatilityService = l2_service.NewVolatilityService(history)

		report, err := handler.Allocate(ctx, AllocateInput{})
		require.NoError(t, err)
		// a lone suggestion takes the whole sector weight
		require.Equal(t, 40.0, report.Sectors[0].Suggestions[0].AllocationPct)
		require.Equal(t, 20.0, report.Sectors[1].Suggestions[0].AllocationPct)
		require.NotNil(t, report.Sectors[0].Suggestions[0].Volatility)
	})

	t.Run("candidates load from the aliased sector file", func(t *testing.T) {
		handler, dir := newTestHandler(t, testConfig())
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, "sector_allocations.csv"),
			[]byte("sector,weight,allocation_pct\nhealth_care,1.0,30\n"),
			0o644,
		))
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, "company_rank_health.json"),
			[]byte(`{"sector": "health", "ranked": [["Pfizer", {"avg_score": 6, "pos": 3, "count": 4, "tickers": ["PFE"]}]]}`),
			0o644,
		))
		etfOnly := false

		report, err := handler.Allocate(ctx, AllocateInput{EtfOnly: &etfOnly})
		require.NoError(t, err)
		require.Len(t, report.Sectors, 1)
		require.NotEmpty(t, report.Sectors[0].Suggestions)
		require.Equal(t, "PFE", report.Sectors[0].Suggestions[0].Ticker)
	})

	t.Run("overrides", func(t *testing.T) {
		handler, _ := newTestHandler(t, testConfig())
		etfOnly := true
		size := 1000.0

		report, err := handler.Allocate(ctx, AllocateInput{
			EtfOnly:        &etfOnly,
			PortfolioSize:  &size,
			AllowedMarkets: []string{"US", "HK"},
		})
		require.NoError(t, err)

		financials := report.Sectors[0].Suggestions
		require.Len(t, financials, 2)
		require.Equal(t, "XLF", financials[0].Ticker)
		require.Equal(t, "2800.HK", financials[1].Ticker)
		require.NotNil(t, financials[0].AllocationAmount)
	})
}
