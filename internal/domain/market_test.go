package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMarketForTicker(t *testing.T) {
	cases := map[string]Market{
		"XLF":       MarketUS,
		"2800.HK":   MarketHK,
		"0700.hk":   MarketHK,
		"510050.SH": MarketCN,
		"159915.SZ": MarketCN,
		"600519.SS": MarketCN,
		"BRK.B":     MarketUS,
		"":          MarketUS,
	}
	for ticker, expected := range cases {
		require.Equal(t, expected, MarketForTicker(ticker), ticker)
	}
}

func TestMarketSet(t *testing.T) {
	t.Run("empty allows all", func(t *testing.T) {
		s := MarketSet{}
		require.True(t, s.Allows(MarketHK))
		require.Equal(t, AllMarkets, s.List())
		_, ok := s.Single()
		require.False(t, ok)
	})

	t.Run("parse", func(t *testing.T) {
		s, err := ParseMarketSet([]string{"us", " HK ", ""})
		require.NoError(t, err)
		require.True(t, s.Allows(MarketUS))
		require.False(t, s.Allows(MarketCN))
		require.Equal(t, []Market{MarketHK, MarketUS}, s.List())

		_, err = ParseMarketSet([]string{"JP"})
		require.Error(t, err)
	})
}

func TestPortfolioState_TotalValue(t *testing.T) {
	p := PortfolioState{
		CashByMarket: map[Market]decimal.Decimal{
			MarketUS: decimal.NewFromInt(100),
			MarketHK: decimal.NewFromInt(50),
		},
		Positions: []Position{
			{Ticker: "XLF", Shares: 10},
			{Ticker: "2800.HK", Shares: 3},
			{Ticker: "MISSING", Shares: 5},
		},
	}
	value := p.TotalValue(map[string]decimal.Decimal{
		"XLF":     decimal.NewFromInt(40),
		"2800.HK": decimal.NewFromFloat(20.5),
	})
	require.Equal(t, "611.5", value.String())

	cp := p.DeepCopy()
	cp.Positions[0].Shares = 0
	cp.CashByMarket[MarketUS] = decimal.Zero
	require.Equal(t, int64(10), p.Positions[0].Shares)
	require.Equal(t, "100", p.CashByMarket[MarketUS].String())
}

func TestNewTargets(t *testing.T) {
	t.Run("normalizes tickers", func(t *testing.T) {
		targets, err := NewTargets([]Target{
			{Ticker: " xlf ", TargetAmount: decimal.NewFromInt(100)},
			{Ticker: "2800.hk", AllocationPct: 5},
		})
		require.NoError(t, err)
		require.Equal(t, []string{"2800.HK", "XLF"}, SortedTickers(targets))
		require.Equal(t, MarketHK, targets["2800.HK"].Market)
		require.Equal(t, MarketUS, targets["XLF"].Market)
	})

	t.Run("rejects bad entries", func(t *testing.T) {
		_, err := NewTargets([]Target{{Ticker: ""}})
		require.Error(t, err)

		_, err = NewTargets([]Target{{Ticker: "XLF", TargetAmount: decimal.NewFromInt(-5)}})
		require.Error(t, err)

		_, err = NewTargets([]Target{{Ticker: "XLF"}, {Ticker: "xlf"}})
		require.ErrorContains(t, err, "duplicate target XLF")
	})
}
