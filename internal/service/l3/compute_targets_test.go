package l3_service

import (
	"sectorrebalance/internal/domain"
	"sectorrebalance/internal/util"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var decimalComparer = cmp.Comparer(func(d1, d2 decimal.Decimal) bool {
	return d1.Equal(d2)
})

func TestComputeTargets(t *testing.T) {
	t.Run("normalizes within each market", func(t *testing.T) {
		targets := ComputeTargets(ComputeTargetsInput{
			Suggestions: []domain.Suggestion{
				{Name: "financials ETF US", Ticker: "XLF", AllocationPct: 21.6, Direction: domain.DirectionLong},
				{Name: "technology ETF US", Ticker: "XLK", AllocationPct: 10.8, Direction: domain.DirectionLong},
				{Name: "financials ETF HK", Ticker: "2800.HK", AllocationPct: 5},
				{Name: "no ticker", AllocationPct: 50},
			},
			MarketBudgets: map[domain.Market]decimal.Decimal{
				domain.MarketUS: decimal.NewFromInt(600000),
				domain.MarketHK: decimal.NewFromInt(100000),
			},
		})

		require.Equal(t, "", cmp.Diff(domain.Targets{
			"XLF": {
				Ticker:        "XLF",
				Name:          "financials ETF US",
				Market:        domain.MarketUS,
				TargetAmount:  decimal.NewFromInt(400000),
				AllocationPct: 21.6,
				Direction:     domain.DirectionLong,
			},
			"XLK": {
				Ticker:        "XLK",
				Name:          "technology ETF US",
				Market:        domain.MarketUS,
				TargetAmount:  decimal.NewFromInt(200000),
				AllocationPct: 10.8,
				Direction:     domain.DirectionLong,
			},
			"2800.HK": {
				Ticker:        "2800.HK",
				Name:          "financials ETF HK",
				Market:        domain.MarketHK,
				TargetAmount:  decimal.NewFromInt(100000),
				AllocationPct: 5,
				Direction:     domain.DirectionLong,
			},
		}, targets, decimalComparer))
	})

	t.Run("zero budget market and disallowed markets contribute nothing", func(t *testing.T) {
		targets := ComputeTargets(ComputeTargetsInput{
			Suggestions: []domain.Suggestion{
				{Name: "a", Ticker: "XLF", AllocationPct: 10},
				{Name: "b", Ticker: "2800.HK", AllocationPct: 10},
				{Name: "c", Ticker: "510050.SH", AllocationPct: 10},
			},
			MarketBudgets: map[domain.Market]decimal.Decimal{
				domain.MarketUS: decimal.Zero,
				domain.MarketHK: decimal.NewFromInt(1000),
				domain.MarketCN: decimal.NewFromInt(1000),
			},
			AllowedMarkets: domain.NewMarketSet(domain.MarketUS, domain.MarketHK),
		})
		require.Len(t, targets, 1)
		require.Equal(t, "1000", targets["2800.HK"].TargetAmount.String())
	})

	t.Run("accumulates across sectors and keeps zero weight placeholders at zero", func(t *testing.T) {
		targets := ComputeTargets(ComputeTargetsInput{
			Suggestions: []domain.Suggestion{
				{Name: "energy ETF", Ticker: "XLE", AllocationPct: 0, Direction: domain.DirectionNeutral},
				{Name: "fin", Ticker: "XLF", AllocationPct: 30},
				{Name: "fin again", Ticker: "XLF", AllocationPct: 10},
				{Name: "tech", Ticker: "XLK", AllocationPct: 60},
			},
			MarketBudgets: map[domain.Market]decimal.Decimal{
				domain.MarketUS: decimal.NewFromInt(1000),
			},
		})
		require.Equal(t, "400", targets["XLF"].TargetAmount.String())
		require.Equal(t, 40.0, targets["XLF"].AllocationPct)
		require.Equal(t, "600", targets["XLK"].TargetAmount.String())
		require.True(t, targets["XLE"].TargetAmount.IsZero())
		require.Equal(t, domain.DirectionNeutral, targets["XLE"].Direction)
	})

	t.Run("no budgets uses precomputed amounts or defers", func(t *testing.T) {
		targets := ComputeTargets(ComputeTargetsInput{
			Suggestions: []domain.Suggestion{
				{Name: "fin", Ticker: "XLF", AllocationPct: 24, AllocationAmount: util.FloatPointer(24000)},
				{Name: "tech", Ticker: "XLK", AllocationPct: 12},
			},
		})
		require.Equal(t, "24000", targets["XLF"].TargetAmount.String())
		require.True(t, targets["XLK"].TargetAmount.IsZero())
		require.Equal(t, 12.0, targets["XLK"].AllocationPct)
	})

	t.Run("empty", func(t *testing.T) {
		require.Empty(t, ComputeTargets(ComputeTargetsInput{}))
	})
}
