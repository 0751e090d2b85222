package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleCore      Role = "core"
	RoleSatellite Role = "satellite"
)

type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNeutral Direction = "neutral"
)

type Bias string

const (
	BiasLong  Bias = "long"
	BiasShort Bias = "short"
)

type AllocationStrategy string

const (
	StrategySimple             AllocationStrategy = "simple"
	StrategyConvictionWeighted AllocationStrategy = "conviction-weighted"
)

// SectorWeight is a relative target exposure to a sector, in percent
type SectorWeight struct {
	Sector string  `json:"sector"`
	Pct    float64 `json:"pct"`
}

// Candidate is a ranked company produced by the sentiment ranking
// collaborator. read-only
type Candidate struct {
	Name     string   `json:"name"`
	Tickers  []string `json:"tickers"`
	Names    []string `json:"names"`
	AvgScore float64  `json:"avgScore"`
	Positive int      `json:"pos"`
	Negative int      `json:"neg"`
	Neutral  int      `json:"neutral"`
	Count    int      `json:"count"`
}

type Suggestion struct {
	Name             string    `json:"name"`
	Ticker           string    `json:"ticker,omitempty"`
	AllocationPct    float64   `json:"allocationPct"`
	Role             Role      `json:"role"`
	Direction        Direction `json:"direction"`
	Market           Market    `json:"market,omitempty"`
	AllocationAmount *float64  `json:"allocationAmount,omitempty"`
	Volatility       *float64  `json:"volatility,omitempty"`
}

type SectorAllocation struct {
	Sector       string       `json:"sector"`
	SectorPct    float64      `json:"sectorPct"`
	CorePct      float64      `json:"corePct"`
	SatellitePct float64      `json:"satellitePct"`
	BufferPct    float64      `json:"bufferPct"`
	Bias         *Bias        `json:"bias,omitempty"`
	Suggestions  []Suggestion `json:"suggestions"`
}

type AllocationReport struct {
	Date    time.Time          `json:"date"`
	Sectors []SectorAllocation `json:"sectors"`
}

func (r AllocationReport) Suggestions() []Suggestion {
	out := []Suggestion{}
	for _, s := range r.Sectors {
		out = append(out, s.Suggestions...)
	}
	return out
}

func (r AllocationReport) DeepCopy() *AllocationReport {
	out := &AllocationReport{
		Date:    r.Date,
		Sectors: make([]SectorAllocation, len(r.Sectors)),
	}
	for i, sec := range r.Sectors {
		sec.Suggestions = append([]Suggestion{}, sec.Suggestions...)
		out.Sectors[i] = sec
	}
	return out
}

// Target is the absolute amount a single ticker should hold after
// rebalancing. TargetAmount may be zero with a positive AllocationPct,
// in which case the order generator infers the amount
type Target struct {
	Ticker        string          `json:"ticker"`
	Name          string          `json:"name"`
	Market        Market          `json:"market"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	AllocationPct float64         `json:"allocationPct"`
	Direction     Direction       `json:"direction"`
}

type Targets map[string]*Target

// NewTargets keys a target list by normalized ticker, rejecting blank,
// negative and duplicate entries
func NewTargets(in []Target) (Targets, error) {
	out := Targets{}
	for _, t := range in {
		ticker := strings.ToUpper(strings.TrimSpace(t.Ticker))
		if ticker == "" {
			return nil, fmt.Errorf("target is missing a ticker")
		}
		if t.TargetAmount.IsNegative() || t.AllocationPct < 0 {
			return nil, fmt.Errorf("target %s must be non-negative", ticker)
		}
		if _, ok := out[ticker]; ok {
			return nil, fmt.Errorf("duplicate target %s", ticker)
		}
		target := t
		target.Ticker = ticker
		if target.Market == "" {
			target.Market = MarketForTicker(ticker)
		}
		out[ticker] = &target
	}
	return out, nil
}
