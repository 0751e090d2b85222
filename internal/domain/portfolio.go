package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PortfolioState is the durable snapshot read at the start of a rebalance
// and replaced at the end
type PortfolioState struct {
	Date         time.Time                 `json:"date"`
	CashByMarket map[Market]decimal.Decimal `json:"cashByMarket"`
	// single undifferentiated balance; only used when CashByMarket is empty
	UnallocatedCash decimal.Decimal `json:"cash"`
	Positions       []Position      `json:"positions"`
}

type Position struct {
	Ticker string `json:"ticker"`
	Shares int64  `json:"shares"`
}

func NewPortfolioState(date time.Time) *PortfolioState {
	return &PortfolioState{
		Date:         date,
		CashByMarket: map[Market]decimal.Decimal{},
		Positions:    []Position{},
	}
}

func (p PortfolioState) DeepCopy() *PortfolioState {
	out := &PortfolioState{
		Date:            p.Date,
		CashByMarket:    map[Market]decimal.Decimal{},
		UnallocatedCash: p.UnallocatedCash,
		Positions:       append([]Position{}, p.Positions...),
	}
	for m, c := range p.CashByMarket {
		out.CashByMarket[m] = c
	}
	return out
}

// SharesByTicker collapses duplicate rows, summing shares
func (p PortfolioState) SharesByTicker() map[string]int64 {
	out := map[string]int64{}
	for _, pos := range p.Positions {
		if pos.Ticker == "" {
			continue
		}
		out[pos.Ticker] += pos.Shares
	}
	return out
}

func (p PortfolioState) TotalCash() decimal.Decimal {
	total := p.UnallocatedCash
	for _, c := range p.CashByMarket {
		total = total.Add(c)
	}
	return total
}

// TotalValue prices every position; positions without a price contribute 0
func (p PortfolioState) TotalValue(priceMap map[string]decimal.Decimal) decimal.Decimal {
	total := p.TotalCash()
	for _, pos := range p.Positions {
		if price, ok := priceMap[pos.Ticker]; ok {
			total = total.Add(price.Mul(decimal.NewFromInt(pos.Shares)))
		}
	}
	return total
}

type TradeAction string

const (
	TradeActionBuy  TradeAction = "BUY"
	TradeActionSell TradeAction = "SELL"
)

type TradeReason string

const (
	TradeReasonDiff     TradeReason = "diff"
	TradeReasonTurnover TradeReason = "turnover"
)

type Trade struct {
	TradeID  uuid.UUID       `json:"tradeID"`
	Datetime time.Time       `json:"datetime"`
	Ticker   string          `json:"ticker"`
	Market   Market          `json:"market"`
	Action   TradeAction     `json:"action"`
	Shares   int64           `json:"shares"`
	Price    decimal.Decimal `json:"price"`
	// negative for SELL
	Amount decimal.Decimal `json:"amount"`
	Reason TradeReason     `json:"reason"`
}

func (t Trade) Notional() decimal.Decimal {
	return t.Amount.Abs()
}

type DistributionEntry struct {
	Ticker string          `json:"ticker"`
	Shares int64           `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Value  decimal.Decimal `json:"value"`
	Pct    float64         `json:"pct"`
}

type TurnoverSummary struct {
	Traded      decimal.Decimal `json:"traded"`
	MarketValue decimal.Decimal `json:"marketValue"`
	Ratio       float64         `json:"ratio"`
	Satisfied   bool            `json:"satisfied"`
}

// TradeBatch is the sole output of a rebalance run
type TradeBatch struct {
	Prices         map[string]decimal.Decimal `json:"prices"`
	Trades         []Trade                    `json:"trades"`
	NewPositions   PortfolioState             `json:"newPositions"`
	Distribution   []DistributionEntry        `json:"distribution"`
	PortfolioValue decimal.Decimal            `json:"portfolioValue"`
	Turnover       map[Market]TurnoverSummary `json:"turnover"`
	SkippedTickers []string                   `json:"skippedTickers"`
}
