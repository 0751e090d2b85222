package l3_service

import (
	"context"
	"fmt"
	"math/rand"
	"sectorrebalance/internal/domain"
	l1_service "sectorrebalance/internal/service/l1"
	mock_l1_service "sectorrebalance/internal/service/l1/mocks"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var ignoreTradeIdentity = cmpopts.IgnoreFields(domain.Trade{}, "TradeID", "Datetime")

func usd(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func target(ticker string, amount int64) *domain.Target {
	return &domain.Target{
		Ticker:       ticker,
		Market:       domain.MarketForTicker(ticker),
		TargetAmount: usd(amount),
		Direction:    domain.DirectionLong,
	}
}

func trade(ticker string, action domain.TradeAction, shares int64, price, amount int64, reason domain.TradeReason) domain.Trade {
	return domain.Trade{
		Ticker: ticker,
		Market: domain.MarketForTicker(ticker),
		Action: action,
		Shares: shares,
		Price:  usd(price),
		Amount: usd(amount),
		Reason: reason,
	}
}

func TestGenerateTrades(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	t.Run("buys up to target", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{"XLF": target("XLF", 144000)},
			Portfolio: domain.PortfolioState{
				CashByMarket: map[domain.Market]decimal.Decimal{domain.MarketUS: usd(1000000)},
				Positions:    []domain.Position{{Ticker: "XLF", Shares: 1000}},
			},
			MinTradeValue: usd(1000),
			Prices:        map[string]decimal.Decimal{"XLF": usd(40)},
			Now:           now,
		})
		require.NoError(t, err)

		require.Equal(t, "", cmp.Diff([]domain.Trade{
			trade("XLF", domain.TradeActionBuy, 2600, 40, 104000, domain.TradeReasonDiff),
		}, batch.Trades, decimalComparer, ignoreTradeIdentity))
		require.Equal(t, now, batch.Trades[0].Datetime)
		require.Equal(t, []domain.Position{{Ticker: "XLF", Shares: 3600}}, batch.NewPositions.Positions)
		require.Equal(t, "896000", batch.NewPositions.CashByMarket[domain.MarketUS].String())
		require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), batch.NewPositions.Date)
		require.Equal(t, "1040000", batch.PortfolioValue.String())
		require.Equal(t, "", cmp.Diff([]domain.DistributionEntry{{
			Ticker: "XLF",
			Shares: 3600,
			Price:  usd(40),
			Value:  usd(144000),
			Pct:    13.85,
		}}, batch.Distribution, decimalComparer))

		// nothing left to do on the next run
		again, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets:       domain.Targets{"XLF": target("XLF", 144000)},
			Portfolio:     batch.NewPositions,
			MinTradeValue: usd(1000),
			Prices:        batch.Prices,
			Now:           now,
		})
		require.NoError(t, err)
		require.Empty(t, again.Trades)
	})

	t.Run("buys are capped by market cash", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{"XLF": target("XLF", 144000)},
			Portfolio: domain.PortfolioState{
				CashByMarket: map[domain.Market]decimal.Decimal{
					domain.MarketUS: usd(10010),
					domain.MarketHK: usd(500000),
				},
			},
			MinTradeValue: usd(1000),
			Prices:        map[string]decimal.Decimal{"XLF": usd(40)},
			Now:           now,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff([]domain.Trade{
			trade("XLF", domain.TradeActionBuy, 250, 40, 10000, domain.TradeReasonDiff),
		}, batch.Trades, decimalComparer, ignoreTradeIdentity))
		require.Equal(t, "10", batch.NewPositions.CashByMarket[domain.MarketUS].String())
		require.Equal(t, "500000", batch.NewPositions.CashByMarket[domain.MarketHK].String())
	})

	t.Run("held tickers without a target are sold out", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{
				"XLE": {Ticker: "XLE", Market: domain.MarketUS, TargetAmount: decimal.Zero, Direction: domain.DirectionNeutral},
			},
			Portfolio: domain.PortfolioState{
				CashByMarket: map[domain.Market]decimal.Decimal{domain.MarketUS: usd(0)},
				Positions: []domain.Position{
					{Ticker: "ERY", Shares: 100},
					{Ticker: "XLE", Shares: 30},
				},
			},
			MinTradeValue: usd(1),
			Prices:        map[string]decimal.Decimal{"ERY": usd(20), "XLE": usd(90)},
			Now:           now,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff([]domain.Trade{
			trade("ERY", domain.TradeActionSell, 100, 20, -2000, domain.TradeReasonDiff),
			trade("XLE", domain.TradeActionSell, 30, 90, -2700, domain.TradeReasonDiff),
		}, batch.Trades, decimalComparer, ignoreTradeIdentity))
		require.Equal(t, []domain.Position{
			{Ticker: "ERY", Shares: 0},
			{Ticker: "XLE", Shares: 0},
		}, batch.NewPositions.Positions)
		require.Equal(t, "4700", batch.NewPositions.CashByMarket[domain.MarketUS].String())
	})

	t.Run("empty positions can be dropped", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{},
			Portfolio: domain.PortfolioState{
				CashByMarket: map[domain.Market]decimal.Decimal{domain.MarketUS: usd(0)},
				Positions:    []domain.Position{{Ticker: "ERY", Shares: 100}},
			},
			Prices:             map[string]decimal.Decimal{"ERY": usd(20)},
			Now:                now,
			DropEmptyPositions: true,
		})
		require.NoError(t, err)
		require.Len(t, batch.Trades, 1)
		require.Empty(t, batch.NewPositions.Positions)
	})

	t.Run("diffs below the minimum trade value are ignored", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{"XLF": target("XLF", 40500)},
			Portfolio: domain.PortfolioState{
				CashByMarket: map[domain.Market]decimal.Decimal{domain.MarketUS: usd(100000)},
				Positions:    []domain.Position{{Ticker: "XLF", Shares: 1000}},
			},
			MinTradeValue: usd(1000),
			Prices:        map[string]decimal.Decimal{"XLF": usd(40)},
			Now:           now,
		})
		require.NoError(t, err)
		require.Empty(t, batch.Trades)
	})

	t.Run("budgets set market cash", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{"XLF": target("XLF", 144000)},
			Portfolio: domain.PortfolioState{
				CashByMarket: map[domain.Market]decimal.Decimal{domain.MarketUS: usd(5)},
				Positions:    []domain.Position{{Ticker: "XLF", Shares: 1000}},
			},
			MarketBudgets: map[domain.Market]decimal.Decimal{domain.MarketUS: usd(600000)},
			MinTradeValue: usd(1000),
			Prices:        map[string]decimal.Decimal{"XLF": usd(40)},
			Now:           now,
		})
		require.NoError(t, err)
		require.Len(t, batch.Trades, 1)
		require.Equal(t, int64(2600), batch.Trades[0].Shares)
		require.Equal(t, "456000", batch.NewPositions.CashByMarket[domain.MarketUS].String())
	})

	t.Run("unallocated cash is split over the markets present", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{
				"XLF":     target("XLF", 0),
				"2800.HK": target("2800.HK", 0),
			},
			Portfolio: domain.PortfolioState{
				UnallocatedCash: decimal.RequireFromString("1000.01"),
			},
			Prices: map[string]decimal.Decimal{"XLF": usd(40), "2800.HK": usd(20)},
			Now:    now,
		})
		require.NoError(t, err)
		require.Empty(t, batch.Trades)
		require.True(t, batch.NewPositions.UnallocatedCash.IsZero())
		require.Equal(t, "", cmp.Diff(map[domain.Market]decimal.Decimal{
			domain.MarketHK: usd(500),
			domain.MarketUS: decimal.RequireFromString("500.01"),
		}, batch.NewPositions.CashByMarket, decimalComparer))
		require.Equal(t, "1000.01", batch.PortfolioValue.String())
	})

	t.Run("percentage targets scale to invested value", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{
				"XLF": {Ticker: "XLF", Market: domain.MarketUS, AllocationPct: 50},
				"XLK": {Ticker: "XLK", Market: domain.MarketUS, AllocationPct: 50},
			},
			Portfolio: domain.PortfolioState{
				CashByMarket: map[domain.Market]decimal.Decimal{domain.MarketUS: usd(0)},
				Positions:    []domain.Position{{Ticker: "XLF", Shares: 1000}},
			},
			MinTradeValue: usd(1),
			Prices:        map[string]decimal.Decimal{"XLF": usd(100), "XLK": usd(200)},
			Now:           now,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff([]domain.Trade{
			trade("XLF", domain.TradeActionSell, 500, 100, -50000, domain.TradeReasonDiff),
			trade("XLK", domain.TradeActionBuy, 250, 200, 50000, domain.TradeReasonDiff),
		}, batch.Trades, decimalComparer, ignoreTradeIdentity))
		require.Equal(t, []domain.Position{
			{Ticker: "XLF", Shares: 500},
			{Ticker: "XLK", Shares: 250},
		}, batch.NewPositions.Positions)
	})

	t.Run("tickers without a price are skipped and kept", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		resolver := mock_l1_service.NewMockPriceResolver(ctrl)
		resolver.EXPECT().Resolve(gomock.Any(), "XLF").Return(decimal.RequireFromString("40.00004"), nil)
		resolver.EXPECT().Resolve(gomock.Any(), "ZZZ").Return(decimal.Zero, l1_service.ErrPriceNotFound)

		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{"XLF": target("XLF", 4000)},
			Portfolio: domain.PortfolioState{
				CashByMarket: map[domain.Market]decimal.Decimal{domain.MarketUS: usd(10000)},
				Positions:    []domain.Position{{Ticker: "ZZZ", Shares: 10}},
			},
			MinTradeValue: usd(1),
			PriceResolver: resolver,
			Parallelism:   2,
			Now:           now,
		})
		require.NoError(t, err)
		require.Equal(t, []string{"ZZZ"}, batch.SkippedTickers)
		require.Equal(t, "", cmp.Diff([]domain.Trade{
			trade("XLF", domain.TradeActionBuy, 100, 40, 4000, domain.TradeReasonDiff),
		}, batch.Trades, decimalComparer, ignoreTradeIdentity))
		require.Equal(t, []domain.Position{
			{Ticker: "ZZZ", Shares: 10},
			{Ticker: "XLF", Shares: 100},
		}, batch.NewPositions.Positions)
		_, ok := batch.Prices["ZZZ"]
		require.False(t, ok)
	})

	t.Run("disallowed markets are left untouched", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{"2800.HK": target("2800.HK", 0)},
			Portfolio: domain.PortfolioState{
				CashByMarket: map[domain.Market]decimal.Decimal{domain.MarketHK: usd(0)},
				Positions:    []domain.Position{{Ticker: "2800.HK", Shares: 500}},
			},
			AllowedMarkets: domain.NewMarketSet(domain.MarketUS),
			Prices:         map[string]decimal.Decimal{"2800.HK": usd(20)},
			Now:            now,
		})
		require.NoError(t, err)
		require.Empty(t, batch.Trades)
		require.Equal(t, []domain.Position{{Ticker: "2800.HK", Shares: 500}}, batch.NewPositions.Positions)
	})

	t.Run("needs some source of prices", func(t *testing.T) {
		_, err := GenerateTrades(ctx, GenerateTradesInput{})
		require.Error(t, err)
	})
}

func turnoverPortfolio() domain.PortfolioState {
	return domain.PortfolioState{
		CashByMarket: map[domain.Market]decimal.Decimal{domain.MarketUS: usd(100000)},
		Positions: []domain.Position{
			{Ticker: "A", Shares: 1000},
			{Ticker: "B", Shares: 1000},
			{Ticker: "C", Shares: 1000},
			{Ticker: "D", Shares: 1000},
		},
	}
}

var turnoverPrices = map[string]decimal.Decimal{
	"A": usd(100),
	"B": usd(100),
	"C": usd(100),
	"D": usd(100),
}

func TestGenerateTrades_turnover(t *testing.T) {
	ctx := context.Background()

	t.Run("adds the largest trades until the ratio is met", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{
				"A": target("A", 70000),
				"B": target("B", 115000),
				"C": target("C", 88000),
				"D": target("D", 100000),
			},
			Portfolio:        turnoverPortfolio(),
			MinTradeValue:    usd(25000),
			MinTurnoverRatio: 0.10,
			Prices:           turnoverPrices,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff([]domain.Trade{
			trade("A", domain.TradeActionSell, 300, 100, -30000, domain.TradeReasonDiff),
			trade("B", domain.TradeActionBuy, 150, 100, 15000, domain.TradeReasonTurnover),
			trade("C", domain.TradeActionSell, 120, 100, -12000, domain.TradeReasonTurnover),
		}, batch.Trades, decimalComparer, ignoreTradeIdentity))

		summary := batch.Turnover[domain.MarketUS]
		require.Equal(t, "57000", summary.Traded.String())
		require.Equal(t, "500000", summary.MarketValue.String())
		require.InDelta(t, 0.114, summary.Ratio, 1e-9)
		require.True(t, summary.Satisfied)
		require.Equal(t, "500000", batch.PortfolioValue.String())
	})

	t.Run("stops when no trade can make progress", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{
				"A": target("A", 80000),
				"B": target("B", 115000),
				"C": target("C", 88000),
				"D": target("D", 100000),
			},
			Portfolio:        turnoverPortfolio(),
			MinTradeValue:    usd(20000),
			MinTurnoverRatio: 0.10,
			Prices:           turnoverPrices,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff([]domain.Trade{
			trade("A", domain.TradeActionSell, 200, 100, -20000, domain.TradeReasonDiff),
			trade("B", domain.TradeActionBuy, 150, 100, 15000, domain.TradeReasonTurnover),
			trade("C", domain.TradeActionSell, 120, 100, -12000, domain.TradeReasonTurnover),
		}, batch.Trades, decimalComparer, ignoreTradeIdentity))

		summary := batch.Turnover[domain.MarketUS]
		require.Equal(t, "47000", summary.Traded.String())
		require.False(t, summary.Satisfied)
	})

	t.Run("zero ratio adds nothing", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{
				"A": target("A", 80000),
				"B": target("B", 115000),
				"C": target("C", 100000),
				"D": target("D", 100000),
			},
			Portfolio:     turnoverPortfolio(),
			MinTradeValue: usd(20000),
			Prices:        turnoverPrices,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff([]domain.Trade{
			trade("A", domain.TradeActionSell, 200, 100, -20000, domain.TradeReasonDiff),
		}, batch.Trades, decimalComparer, ignoreTradeIdentity))
	})

	t.Run("untargeted holdings are sold off", func(t *testing.T) {
		batch, err := GenerateTrades(ctx, GenerateTradesInput{
			Targets: domain.Targets{
				"A": target("A", 80000),
				"B": target("B", 115000),
			},
			Portfolio:     turnoverPortfolio(),
			MinTradeValue: usd(20000),
			Prices:        turnoverPrices,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff([]domain.Trade{
			trade("A", domain.TradeActionSell, 200, 100, -20000, domain.TradeReasonDiff),
			trade("C", domain.TradeActionSell, 1000, 100, -100000, domain.TradeReasonDiff),
			trade("D", domain.TradeActionSell, 1000, 100, -100000, domain.TradeReasonDiff),
		}, batch.Trades, decimalComparer, ignoreTradeIdentity))
	})
}

// randomized portfolios must keep cash and shares non-negative and
// preserve total value at the resolved prices
func TestGenerateTrades_invariants(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(42))
	tickers := []string{"XLF", "XLK", "XLV", "2800.HK", "3067.HK", "510050.SH"}

	for i := 0; i < 50; i++ {
		t.Run(fmt.Sprintf("case %d", i), func(t *testing.T) {
			prices := map[string]decimal.Decimal{}
			targets := domain.Targets{}
			portfolio := domain.PortfolioState{
				CashByMarket: map[domain.Market]decimal.Decimal{
					domain.MarketUS: usd(r.Int63n(200000)),
					domain.MarketHK: usd(r.Int63n(200000)),
					domain.MarketCN: usd(r.Int63n(200000)),
				},
				Positions: []domain.Position{},
			}
			for _, ticker := range tickers {
				prices[ticker] = usd(1 + r.Int63n(300))
				if r.Intn(2) == 0 {
					portfolio.Positions = append(portfolio.Positions, domain.Position{
						Ticker: ticker,
						Shares: r.Int63n(2000),
					})
				}
				if r.Intn(3) > 0 {
					targets[ticker] = target(ticker, r.Int63n(250000))
				}
			}
			in := GenerateTradesInput{
				Targets:          targets,
				Portfolio:        portfolio,
				MinTradeValue:    usd(r.Int63n(5000)),
				MinTurnoverRatio: float64(r.Intn(20)) / 100,
				Prices:           prices,
			}

			batch, err := GenerateTrades(ctx, in)
			require.NoError(t, err)

			for m, c := range batch.NewPositions.CashByMarket {
				require.False(t, c.IsNegative(), "negative cash in %s", m)
			}
			for _, p := range batch.NewPositions.Positions {
				require.GreaterOrEqual(t, p.Shares, int64(0), p.Ticker)
			}
			for _, tr := range batch.Trades {
				require.Positive(t, tr.Shares)
				notional := tr.Price.Mul(decimal.NewFromInt(tr.Shares))
				if tr.Action == domain.TradeActionSell {
					notional = notional.Neg()
				}
				require.True(t, tr.Amount.Equal(notional))
			}
			require.True(t,
				portfolio.TotalValue(prices).Equal(batch.PortfolioValue),
				"value moved from %s to %s", portfolio.TotalValue(prices), batch.PortfolioValue,
			)
		})
	}
}
