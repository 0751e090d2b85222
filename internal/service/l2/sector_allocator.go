package l2_service

import (
	"context"
	"fmt"
	"regexp"
	"sectorrebalance/internal"
	"sectorrebalance/internal/config"
	"sectorrebalance/internal/domain"
	"sectorrebalance/internal/logger"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
)

type AllocateInput struct {
	SectorWeights      []domain.SectorWeight
	CandidatesBySector map[string][]domain.Candidate
	Strategy           domain.AllocationStrategy
	TopPerSector       int
	EtfOnly            bool
	AllowedMarkets     domain.MarketSet
	PortfolioSize      float64
	// explicit bias wins over anything derived from scores or ranking
	SectorBias   map[string]domain.Bias
	SectorScores map[string]float64
	Date         time.Time
}

type SectorAllocator interface {
	Allocate(ctx context.Context, in AllocateInput) (*domain.AllocationReport, error)
}

type sectorAllocatorHandler struct {
	Config  config.StrategyConfig
	Matcher *TickerMatcher
}

func NewSectorAllocator(cfg config.StrategyConfig) SectorAllocator {
	return sectorAllocatorHandler{
		Config:  cfg,
		Matcher: NewTickerMatcher(cfg.TickerDb, cfg.AliasDb),
	}
}

var numericName = regexp.MustCompile(`^\d+$`)

func (h sectorAllocatorHandler) Allocate(ctx context.Context, in AllocateInput) (*domain.AllocationReport, error) {
	log := logger.FromContext(ctx)

	date := in.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	report := &domain.AllocationReport{
		Date:    time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		Sectors: []domain.SectorAllocation{},
	}
	if len(in.SectorWeights) == 0 {
		return report, nil
	}

	strategy := in.Strategy
	if strategy == "" {
		strategy = domain.StrategySimple
	}
	top := in.TopPerSector
	if top < 1 {
		top = 1
	}

	candidatesBySector := map[string][]domain.Candidate{}
	for sector, candidates := range in.CandidatesBySector {
		key := h.Config.NormalizeSector(sector)
		candidatesBySector[key] = append(candidatesBySector[key], candidates...)
	}

	bias := h.sectorBias(in)

	for _, weight := range in.SectorWeights {
		sector := h.Config.NormalizeSector(weight.Sector)
		pct := weight.Pct
		if pct < 0 {
			log.Warnf("ignoring negative weight %f for sector %s", pct, sector)
			pct = 0
		}
		split := internal.SplitSector(pct)
		entry := domain.SectorAllocation{
			Sector:       sector,
			SectorPct:    pct,
			CorePct:      split.CorePct,
			SatellitePct: split.SatellitePct,
			BufferPct:    split.BufferPct,
			Suggestions:  []domain.Suggestion{},
		}

		candidates := candidatesBySector[sector]
		if !in.EtfOnly && len(candidates) > 0 {
			suggestions, err := h.candidateSuggestions(ctx, sector, split, candidates, strategy, top)
			if err != nil {
				return nil, fmt.Errorf("failed to allocate sector %s: %w", sector, err)
			}
			entry.Suggestions = suggestions
		} else {
			b := bias[sector]
			entry.Bias = &b
			entry.Suggestions = h.etfSuggestions(ctx, sector, split, b, in.AllowedMarkets)
		}

		if in.PortfolioSize > 0 {
			for i := range entry.Suggestions {
				setAllocationAmount(&entry.Suggestions[i], in.PortfolioSize)
			}
		}
		report.Sectors = append(report.Sectors, entry)
	}

	return report, nil
}

func setAllocationAmount(s *domain.Suggestion, portfolioSize float64) {
	if portfolioSize <= 0 || s.AllocationPct <= 0 {
		s.AllocationAmount = nil
		return
	}
	amount := internal.RoundTo(portfolioSize*s.AllocationPct/100, 2)
	s.AllocationAmount = &amount
}

// sectorBias decides long vs short for every weighted sector. scores split
// on their median (at or above is long); without scores the top half by
// weight is long
func (h sectorAllocatorHandler) sectorBias(in AllocateInput) map[string]domain.Bias {
	out := map[string]domain.Bias{}

	scores := map[string]float64{}
	for sector, score := range in.SectorScores {
		scores[h.Config.NormalizeSector(sector)] = score
	}
	if len(scores) > 0 {
		values := stats.Float64Data{}
		for _, s := range scores {
			values = append(values, s)
		}
		median, err := stats.Median(values)
		if err == nil {
			for sector, s := range scores {
				if s >= median {
					out[sector] = domain.BiasLong
				} else {
					out[sector] = domain.BiasShort
				}
			}
		}
	}

	if len(out) == 0 {
		ranked := make([]domain.SectorWeight, len(in.SectorWeights))
		copy(ranked, in.SectorWeights)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Pct > ranked[j].Pct
		})
		half := len(ranked) / 2
		if half < 1 {
			half = 1
		}
		for i, w := range ranked {
			sector := h.Config.NormalizeSector(w.Sector)
			if i < half {
				out[sector] = domain.BiasLong
			} else {
				out[sector] = domain.BiasShort
			}
		}
	}

	for sector, b := range in.SectorBias {
		out[h.Config.NormalizeSector(sector)] = b
	}
	// anything unscored defaults to long
	for _, w := range in.SectorWeights {
		sector := h.Config.NormalizeSector(w.Sector)
		if _, ok := out[sector]; !ok {
			out[sector] = domain.BiasLong
		}
	}
	return out
}

// selectCandidates prefers candidates with observed tickers, then named
// ones, skipping purely numeric names
func selectCandidates(candidates []domain.Candidate, top int) []domain.Candidate {
	withTicker := []domain.Candidate{}
	withoutTicker := []domain.Candidate{}
	for _, c := range candidates {
		if len(c.Tickers) > 0 {
			withTicker = append(withTicker, c)
		} else if !numericName.MatchString(strings.TrimSpace(c.Name)) {
			withoutTicker = append(withoutTicker, c)
		}
	}

	chosen := withTicker
	if len(chosen) > top {
		chosen = chosen[:top]
	}
	for _, c := range withoutTicker {
		if len(chosen) >= top {
			break
		}
		chosen = append(chosen, c)
	}
	if len(chosen) == 0 {
		chosen = candidates
		if len(chosen) > top {
			chosen = chosen[:top]
		}
	}

	seen := map[string]bool{}
	out := []domain.Candidate{}
	for _, c := range chosen {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if len(c.Tickers) > 0 {
			key = strings.ToUpper(strings.TrimSpace(c.Tickers[0]))
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func (h sectorAllocatorHandler) candidateSuggestions(
	ctx context.Context,
	sector string,
	split internal.SectorSplit,
	candidates []domain.Candidate,
	strategy domain.AllocationStrategy,
	top int,
) ([]domain.Suggestion, error) {
	log := logger.FromContext(ctx)

	chosen := selectCandidates(candidates, top)
	if len(chosen) == 0 {
		return []domain.Suggestion{}, nil
	}

	var corePcts []float64
	switch strategy {
	case domain.StrategyConvictionWeighted:
		expression := h.Config.Allocation.ConvictionExpression
		if expression == "" {
			expression = config.DefaultConvictionExpression
		}
		weights, err := internal.ConvictionWeights(expression, chosen)
		if err != nil {
			return nil, err
		}
		corePcts = internal.ProportionalCoreWeights(split.CorePct, weights)
	case domain.StrategySimple:
		corePcts = internal.SimpleCoreWeights(split.CorePct, len(chosen))
	default:
		return nil, fmt.Errorf("unknown allocation strategy %q", strategy)
	}

	perSatellite := 0.0
	if split.SatellitePct > 0 {
		perSatellite = internal.RoundTo(split.SatellitePct/float64(len(chosen)), 2)
	}

	suggestions := []domain.Suggestion{}
	for i, c := range chosen {
		role := domain.RoleSatellite
		pct := corePcts[i]
		if i == 0 {
			role = domain.RoleCore
		} else {
			pct = internal.RoundTo(pct+perSatellite, 2)
		}
		s := domain.Suggestion{
			Name:          c.Name,
			AllocationPct: pct,
			Role:          role,
			Direction:     domain.DirectionLong,
		}

		if match, ok := h.Matcher.Resolve(c); ok {
			if mapped, ok := h.Config.SectorForTicker(match.Ticker); ok && !strings.EqualFold(mapped, sector) {
				log.Infof("dropping %s (%s): mapped to sector %s, not %s", c.Name, match.Ticker, mapped, sector)
				continue
			}
			s.Ticker = match.Ticker
			s.Market = domain.MarketForTicker(match.Ticker)
		}
		suggestions = append(suggestions, s)
	}

	return dedupeSuggestions(suggestions), nil
}

// dedupeSuggestions keeps the first suggestion per ticker, or per name for
// tickerless ones
func dedupeSuggestions(in []domain.Suggestion) []domain.Suggestion {
	seenTickers := map[string]bool{}
	seenNames := map[string]bool{}
	out := []domain.Suggestion{}
	for _, s := range in {
		if tk := strings.ToUpper(s.Ticker); tk != "" {
			if seenTickers[tk] {
				continue
			}
			seenTickers[tk] = true
		} else {
			nm := strings.ToLower(s.Name)
			if seenNames[nm] {
				continue
			}
			seenNames[nm] = true
		}
		out = append(out, s)
	}
	return out
}

func (h sectorAllocatorHandler) etfSuggestions(
	ctx context.Context,
	sector string,
	split internal.SectorSplit,
	bias domain.Bias,
	allowed domain.MarketSet,
) []domain.Suggestion {
	log := logger.FromContext(ctx)

	etfs := h.Config.EtfsForSector(sector)
	totalPct := internal.RoundTo(split.CorePct+split.SatellitePct, 2)

	type listing struct {
		ticker string
		market domain.Market
	}
	longs := []listing{}
	for _, m := range domain.EtfMarketOrder {
		tk := etfs.Long(m)
		if tk == "" || !allowed.Allows(m) {
			continue
		}
		longs = append(longs, listing{ticker: tk, market: m})
	}
	inverses := []listing{}
	if tk := etfs.Inverse(); tk != "" && allowed.Allows(domain.MarketUS) {
		inverses = append(inverses, listing{ticker: tk, market: domain.MarketUS})
	}

	if bias == domain.BiasLong && len(longs) > 0 {
		configured := h.Config.MarketWeightsForSector(sector)
		weights := map[domain.Market]float64{}
		totalWeight := 0.0
		for _, l := range longs {
			w := configured[l.market]
			if w < 0 {
				w = 0
			}
			weights[l.market] = w
			totalWeight += w
		}
		if totalWeight <= 0 {
			for _, l := range longs {
				weights[l.market] = 1
			}
			totalWeight = float64(len(longs))
		}

		coreMarket := longs[0].market
		for _, l := range longs[1:] {
			if weights[l.market] > weights[coreMarket] {
				coreMarket = l.market
			}
		}

		out := []domain.Suggestion{}
		for _, l := range longs {
			role := domain.RoleSatellite
			if l.market == coreMarket {
				role = domain.RoleCore
			}
			out = append(out, domain.Suggestion{
				Name:          fmt.Sprintf("%s ETF %s", sector, l.market),
				Ticker:        l.ticker,
				AllocationPct: internal.RoundTo(totalPct*weights[l.market]/totalWeight, 2),
				Role:          role,
				Direction:     domain.DirectionLong,
				Market:        l.market,
			})
		}
		return out
	}

	if bias == domain.BiasShort && len(inverses) > 0 {
		per := internal.RoundTo(totalPct/float64(len(inverses)), 2)
		out := []domain.Suggestion{}
		for i, l := range inverses {
			role := domain.RoleSatellite
			if i == 0 {
				role = domain.RoleCore
			}
			out = append(out, domain.Suggestion{
				Name:          fmt.Sprintf("%s Inverse ETF %s", sector, l.market),
				Ticker:        l.ticker,
				AllocationPct: per,
				Role:          role,
				Direction:     domain.DirectionShort,
				Market:        l.market,
			})
		}
		return out
	}

	// nothing to buy: a zero weight placeholder lets the rebalancer sell
	// down any long already held in the sector ETF
	placeholder := domain.Suggestion{
		Name:          fmt.Sprintf("%s ETF", sector),
		AllocationPct: 0,
		Role:          domain.RoleCore,
		Direction:     domain.DirectionNeutral,
	}
	if len(longs) > 0 {
		placeholder.Ticker = longs[0].ticker
		placeholder.Market = longs[0].market
	}
	if bias == domain.BiasShort {
		log.Infof("no inverse ETF mapped for %s, avoiding long exposure", sector)
	} else {
		log.Warnf("no ETF mapped for %s", sector)
	}
	return []domain.Suggestion{placeholder}
}
