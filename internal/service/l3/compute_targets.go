package l3_service

import (
	"math"
	"sectorrebalance/internal/domain"

	"github.com/shopspring/decimal"
)

type ComputeTargetsInput struct {
	Suggestions    []domain.Suggestion
	MarketBudgets  map[domain.Market]decimal.Decimal
	AllowedMarkets domain.MarketSet
}

type targetCandidate struct {
	suggestion domain.Suggestion
	ticker     string
	market     domain.Market
}

// ComputeTargets turns suggestions into per-ticker absolute targets. each
// market is normalized on its own against its own budget, so budgets
// never leak across markets. without budgets, precomputed allocation
// amounts are used and anything else is left for the order generator to
// infer from the percentage
func ComputeTargets(in ComputeTargetsInput) domain.Targets {
	byMarket := map[domain.Market][]targetCandidate{}
	for _, s := range in.Suggestions {
		if s.Ticker == "" {
			continue
		}
		m := domain.MarketForTicker(s.Ticker)
		if !in.AllowedMarkets.Allows(m) {
			continue
		}
		byMarket[m] = append(byMarket[m], targetCandidate{
			suggestion: s,
			ticker:     s.Ticker,
			market:     m,
		})
	}

	targets := domain.Targets{}
	getOrCreate := func(c targetCandidate) *domain.Target {
		t, ok := targets[c.ticker]
		if !ok {
			direction := c.suggestion.Direction
			if direction == "" {
				direction = domain.DirectionLong
			}
			t = &domain.Target{
				Ticker:       c.ticker,
				Name:         c.suggestion.Name,
				Market:       c.market,
				TargetAmount: decimal.Zero,
				Direction:    direction,
			}
			targets[c.ticker] = t
		}
		return t
	}

	if len(in.MarketBudgets) > 0 {
		for _, m := range domain.AllMarkets {
			candidates := byMarket[m]
			if len(candidates) == 0 {
				continue
			}
			totalPct := 0.0
			for _, c := range candidates {
				totalPct += math.Max(0, c.suggestion.AllocationPct)
			}
			budget, ok := in.MarketBudgets[m]
			if !ok || !budget.IsPositive() || totalPct <= 0 {
				continue
			}
			for _, c := range candidates {
				pct := math.Max(0, c.suggestion.AllocationPct)
				amount := budget.
					Mul(decimal.NewFromFloat(pct)).
					Div(decimal.NewFromFloat(totalPct)).
					Round(2)
				t := getOrCreate(c)
				t.TargetAmount = t.TargetAmount.Add(amount)
				t.AllocationPct += pct
			}
		}
		return targets
	}

	for _, m := range domain.AllMarkets {
		for _, c := range byMarket[m] {
			t := getOrCreate(c)
			t.AllocationPct += math.Max(0, c.suggestion.AllocationPct)
			if c.suggestion.AllocationAmount != nil && *c.suggestion.AllocationAmount > 0 {
				t.TargetAmount = t.TargetAmount.Add(decimal.NewFromFloat(*c.suggestion.AllocationAmount))
			}
		}
	}

	return targets
}
