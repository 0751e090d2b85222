package l2_service

import (
	"context"
	"fmt"
	"math"
	"sectorrebalance/internal"
	"sectorrebalance/internal/domain"
	"sectorrebalance/internal/logger"
	l1_service "sectorrebalance/internal/service/l1"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
)

const (
	TradingDaysPerYear = 252
	// fewer closes than this leaves volatility undefined
	MinVolatilityCloses = 5
)

type AdjustInput struct {
	Report        domain.AllocationReport
	PortfolioSize float64
	WindowDays    int
	// scale the reweighted pool to what is left of the sector after the
	// untouched suggestions, instead of the whole sector weight
	PreserveSectorTotal bool
	Parallelism         int
}

type VolatilityService interface {
	Adjust(ctx context.Context, in AdjustInput) (*domain.AllocationReport, error)
}

type volatilityServiceHandler struct {
	HistoryService l1_service.HistoryService
}

func NewVolatilityService(historyService l1_service.HistoryService) VolatilityService {
	return volatilityServiceHandler{
		HistoryService: historyService,
	}
}

// AnnualizedVolatility is the sample stdev of simple daily returns scaled
// by sqrt(252)
func AnnualizedVolatility(closes []float64) (float64, bool) {
	if len(closes) < MinVolatilityCloses {
		return 0, false
	}
	returns := stats.Float64Data{}
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	if len(returns) < 2 {
		return 0, false
	}
	stdev, err := stats.StandardDeviationSample(returns)
	if err != nil || math.IsNaN(stdev) {
		return 0, false
	}
	return stdev * math.Sqrt(TradingDaysPerYear), true
}

func (h volatilityServiceHandler) volatilities(ctx context.Context, tickers []string, windowDays, parallelism int) (map[string]float64, error) {
	log := logger.FromContext(ctx)
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]*float64, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, ticker := range tickers {
		g.Go(func() error {
			closes, err := h.HistoryService.DailyCloses(gctx, ticker, windowDays)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warnf("no price history for %s: %s", ticker, err.Error())
				return nil
			}
			vol, ok := AnnualizedVolatility(closes)
			if !ok {
				log.Warnf("not enough price history for %s (%d closes)", ticker, len(closes))
				return nil
			}
			results[i] = &vol
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}

	out := map[string]float64{}
	for i, ticker := range tickers {
		if results[i] != nil {
			out[ticker] = *results[i]
		}
	}
	return out, nil
}

// Adjust reweights each sector's suggestions inversely to their
// volatility. suggestions without a usable volatility keep their
// allocation and are left out of the pool
func (h volatilityServiceHandler) Adjust(ctx context.Context, in AdjustInput) (*domain.AllocationReport, error) {
	report := in.Report.DeepCopy()

	tickerSet := map[string]bool{}
	for _, sector := range report.Sectors {
		for _, s := range sector.Suggestions {
			if s.Ticker != "" {
				tickerSet[s.Ticker] = true
			}
		}
	}
	if len(tickerSet) == 0 {
		return report, nil
	}

	vols, err := h.volatilities(ctx, domain.SortedTickers(tickerSet), in.WindowDays, in.Parallelism)
	if err != nil {
		return nil, err
	}

	for si := range report.Sectors {
		sector := &report.Sectors[si]

		inverse := make([]float64, len(sector.Suggestions))
		totalInverse := 0.0
		untouchedPct := 0.0
		for i := range sector.Suggestions {
			s := &sector.Suggestions[i]
			s.Volatility = nil
			vol, ok := vols[s.Ticker]
			if s.Ticker == "" || !ok {
				untouchedPct += s.AllocationPct
				continue
			}
			v := vol
			s.Volatility = &v
			if vol <= 0 {
				untouchedPct += s.AllocationPct
				continue
			}
			inverse[i] = 1 / vol
			totalInverse += inverse[i]
		}
		if totalInverse <= 0 {
			continue
		}

		pool := sector.SectorPct
		if in.PreserveSectorTotal {
			pool = math.Max(0, sector.SectorPct-untouchedPct)
		}
		for i := range sector.Suggestions {
			if inverse[i] == 0 {
				continue
			}
			s := &sector.Suggestions[i]
			s.AllocationPct = internal.RoundTo(pool*inverse[i]/totalInverse, 2)
			setAllocationAmount(s, in.PortfolioSize)
		}
	}

	return report, nil
}
