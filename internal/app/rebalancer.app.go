package app

import (
	"context"
	"database/sql"
	"fmt"
	"sectorrebalance/internal/config"
	"sectorrebalance/internal/domain"
	"sectorrebalance/internal/logger"
	"sectorrebalance/internal/repository"
	l1_service "sectorrebalance/internal/service/l1"
	l2_service "sectorrebalance/internal/service/l2"
	l3_service "sectorrebalance/internal/service/l3"
	"sectorrebalance/internal/util"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RebalancerHandler wires the allocation and rebalance pipeline to its
// inputs and outputs. Db and the snapshot repositories are optional; without
// them the portfolio lives in the positions file
type RebalancerHandler struct {
	Db     *sql.DB
	Config config.StrategyConfig

	SectorAllocator   l2_service.SectorAllocator
	VolatilityService l2_service.VolatilityService
	PriceResolver     l1_service.PriceResolver

	AllocationInputRepository   repository.AllocationInputRepository
	PositionsFileRepository     repository.PositionsFileRepository
	PortfolioSnapshotRepository repository.PortfolioSnapshotRepository
	TradeRepository             repository.TradeRepository
	TradeLogRepository          repository.TradeLogRepository
	LatencyTrackingRepository   repository.LatencyTrackingRepository
}

// AllocateInput overrides the configured allocation params. nil fields
// fall back to config; empty SectorWeights are read from the input dir
type AllocateInput struct {
	Date               time.Time
	SectorWeights      []domain.SectorWeight
	CandidatesBySector map[string][]domain.Candidate
	SectorBias         map[string]domain.Bias

	Strategy         *domain.AllocationStrategy
	TopPerSector     *int
	EtfOnly          *bool
	PortfolioSize    *float64
	AllowedMarkets   []string
	AdjustVolatility *bool
}

func (h RebalancerHandler) allowedMarkets(override []string) (domain.MarketSet, error) {
	if len(override) == 0 {
		return h.Config.AllowedMarkets(), nil
	}
	allowed, err := domain.ParseMarketSet(override)
	if err != nil {
		return nil, fmt.Errorf("invalid allowed markets: %w", err)
	}
	return allowed, nil
}

func (h RebalancerHandler) Allocate(ctx context.Context, in AllocateInput) (*domain.AllocationReport, error) {
	log := logger.FromContext(ctx)
	profile, _ := domain.GetProfile(ctx)

	allowed, err := h.allowedMarkets(in.AllowedMarkets)
	if err != nil {
		return nil, err
	}

	params := h.Config.Allocation
	if in.Strategy != nil {
		params.Strategy = *in.Strategy
	}
	if in.TopPerSector != nil {
		params.TopPerSector = *in.TopPerSector
	}
	if in.EtfOnly != nil {
		params.EtfOnly = *in.EtfOnly
	}
	if in.PortfolioSize != nil {
		params.PortfolioSize = *in.PortfolioSize
	}
	if in.AdjustVolatility != nil {
		params.AdjustVolatility = *in.AdjustVolatility
	}

	_, endSpan := profile.StartNewSpan("load allocation inputs")
	weights := in.SectorWeights
	if len(weights) == 0 && h.AllocationInputRepository != nil {
		weights, err = h.AllocationInputRepository.GetSectorWeights(allowed)
		if err != nil {
			return nil, fmt.Errorf("failed to load sector weights: %w", err)
		}
	}
	if len(weights) == 0 {
		log.Warn("no sector weights found, allocation will be empty")
	}

	candidates := in.CandidatesBySector
	var scores map[string]float64
	if h.AllocationInputRepository != nil {
		if candidates == nil && !params.EtfOnly {
			// rank files are named after the aliased sector
			sectors := []string{}
			seen := map[string]bool{}
			for _, w := range weights {
				sector := h.Config.NormalizeSector(w.Sector)
				if !seen[sector] {
					seen[sector] = true
					sectors = append(sectors, sector)
				}
			}
			candidates, err = h.AllocationInputRepository.GetCandidatesBySector(sectors)
			if err != nil {
				return nil, fmt.Errorf("failed to load candidates: %w", err)
			}
		}
		scores, err = h.AllocationInputRepository.GetSectorScores()
		if err != nil {
			// scores only steer the long/short bias, ranking by weight still works
			log.Warnf("ignoring sector summary: %s", err.Error())
			scores = nil
		}
	}
	endSpan()

	_, endSpan = profile.StartNewSpan("allocate")
	report, err := h.SectorAllocator.Allocate(ctx, l2_service.AllocateInput{
		SectorWeights:      weights,
		CandidatesBySector: candidates,
		Strategy:           params.Strategy,
		TopPerSector:       params.TopPerSector,
		EtfOnly:            params.EtfOnly,
		AllowedMarkets:     allowed,
		PortfolioSize:      params.PortfolioSize,
		SectorBias:         in.SectorBias,
		SectorScores:       scores,
		Date:               in.Date,
	})
	endSpan()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sectors: %w", err)
	}

	if params.AdjustVolatility && h.VolatilityService != nil {
		_, endSpan = profile.StartNewSpan("volatility adjust")
		adjusted, err := h.VolatilityService.Adjust(ctx, l2_service.AdjustInput{
			Report:              *report,
			PortfolioSize:       params.PortfolioSize,
			WindowDays:          params.VolatilityWindowDays,
			PreserveSectorTotal: params.PreserveSectorTotal,
			Parallelism:         h.Config.Prices.Parallelism,
		})
		endSpan()
		if err != nil {
			return nil, fmt.Errorf("failed to adjust for volatility: %w", err)
		}
		report = adjusted
	}

	log.Infof("allocated %d sectors into %d suggestions", len(report.Sectors), len(report.Suggestions()))
	return report, nil
}

func (h RebalancerHandler) Targets(report domain.AllocationReport, allowed domain.MarketSet) domain.Targets {
	return l3_service.ComputeTargets(l3_service.ComputeTargetsInput{
		Suggestions:    report.Suggestions(),
		MarketBudgets:  h.Config.Trading.MarketBudgets,
		AllowedMarkets: allowed,
	})
}

type RebalanceInput struct {
	Targets        domain.Targets
	Now            time.Time
	AllowedMarkets []string
	// prices to use before asking the resolver
	Prices map[string]decimal.Decimal
	DryRun bool
}

type RebalanceResult struct {
	Batch      *domain.TradeBatch
	SnapshotID *uuid.UUID
	Exported   *repository.TradeLogPaths
}

// LoadPortfolio prefers the latest stored snapshot and falls back to the
// positions file, which also seeds an empty database
func (h RebalancerHandler) LoadPortfolio(now time.Time) (*domain.PortfolioState, error) {
	if h.PortfolioSnapshotRepository != nil {
		state, _, err := h.PortfolioSnapshotRepository.GetLatest()
		if err != nil {
			return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
		}
		if state != nil {
			return state, nil
		}
	}
	if h.PositionsFileRepository != nil {
		state, err := h.PositionsFileRepository.Get()
		if err != nil {
			return nil, fmt.Errorf("failed to load positions: %w", err)
		}
		return state, nil
	}
	return domain.NewPortfolioState(util.Today(now)), nil
}

func (h RebalancerHandler) persist(ctx context.Context, batch domain.TradeBatch) (*uuid.UUID, error) {
	if h.Db != nil && h.PortfolioSnapshotRepository != nil {
		tx, err := h.Db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create transaction: %w", err)
		}
		defer tx.Rollback()

		snapshotID, err := h.PortfolioSnapshotRepository.Add(tx, batch.NewPositions, &batch.PortfolioValue)
		if err != nil {
			return nil, err
		}
		if h.TradeRepository != nil {
			if _, err := h.TradeRepository.AddMany(tx, snapshotID, batch.Trades); err != nil {
				return nil, err
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit rebalance: %w", err)
		}
		return snapshotID, nil
	}

	if h.PositionsFileRepository != nil {
		if err := h.PositionsFileRepository.Save(batch.NewPositions); err != nil {
			return nil, fmt.Errorf("failed to save positions: %w", err)
		}
	}
	return nil, nil
}

func (h RebalancerHandler) Rebalance(ctx context.Context, in RebalanceInput) (*RebalanceResult, error) {
	log := logger.FromContext(ctx)
	profile, _ := domain.GetProfile(ctx)

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	allowed, err := h.allowedMarkets(in.AllowedMarkets)
	if err != nil {
		return nil, err
	}

	_, endSpan := profile.StartNewSpan("load portfolio")
	portfolio, err := h.LoadPortfolio(now)
	endSpan()
	if err != nil {
		return nil, err
	}

	batch, err := l3_service.GenerateTrades(ctx, l3_service.GenerateTradesInput{
		Targets:            in.Targets,
		Portfolio:          *portfolio,
		MinTradeValue:      h.Config.Trading.MinTradeValue,
		MinTurnoverRatio:   h.Config.Trading.MinTurnoverRatio,
		AllowedMarkets:     allowed,
		MarketBudgets:      h.Config.Trading.MarketBudgets,
		PriceResolver:      h.PriceResolver,
		Prices:             in.Prices,
		Parallelism:        h.Config.Prices.Parallelism,
		Now:                now,
		DropEmptyPositions: h.Config.Trading.DropEmptyPositions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate trades: %w", err)
	}

	for m, summary := range batch.Turnover {
		if !summary.Satisfied {
			log.Warnf("%s turnover %.4f is below the minimum %.4f", m, summary.Ratio, h.Config.Trading.MinTurnoverRatio)
		}
	}

	result := &RebalanceResult{Batch: batch}
	if in.DryRun {
		log.Info("dry run, nothing persisted")
		return result, nil
	}

	_, endSpan = profile.StartNewSpan("persist")
	defer endSpan()

	result.SnapshotID, err = h.persist(ctx, *batch)
	if err != nil {
		return nil, err
	}

	if h.TradeLogRepository != nil {
		result.Exported, err = h.TradeLogRepository.Export(batch.NewPositions.Date, *batch)
		if err != nil {
			return nil, fmt.Errorf("failed to export trade log: %w", err)
		}
	}

	return result, nil
}

type RunInput struct {
	Allocation AllocateInput
	Now        time.Time
	Prices     map[string]decimal.Decimal
	DryRun     bool
}

type RunResult struct {
	Report  *domain.AllocationReport
	Targets domain.Targets
	RebalanceResult
	Profile *domain.Profile
}

// Run allocates, sizes targets and rebalances in one pass
func (h RebalancerHandler) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	log := logger.FromContext(ctx)
	ctx, profile, endProfile := domain.NewContextWithProfile(ctx)

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	allocation := in.Allocation
	if allocation.Date.IsZero() {
		allocation.Date = now
	}

	report, err := h.Allocate(ctx, allocation)
	if err != nil {
		return nil, err
	}

	allowed, err := h.allowedMarkets(allocation.AllowedMarkets)
	if err != nil {
		return nil, err
	}
	_, endSpan := profile.StartNewSpan("compute targets")
	targets := h.Targets(*report, allowed)
	endSpan()

	rebalanced, err := h.Rebalance(ctx, RebalanceInput{
		Targets:        targets,
		Now:            now,
		AllowedMarkets: allocation.AllowedMarkets,
		Prices:         in.Prices,
		DryRun:         in.DryRun,
	})
	if err != nil {
		return nil, err
	}

	endProfile()
	log.Infow("rebalance complete",
		"trades", len(rebalanced.Batch.Trades),
		"portfolioValue", rebalanced.Batch.PortfolioValue.StringFixed(2),
		"elapsedMs", profile.ElapsedByStage(),
	)
	if !in.DryRun && h.LatencyTrackingRepository != nil {
		if err := h.LatencyTrackingRepository.Add(profile, rebalanced.SnapshotID); err != nil {
			log.Warnf("failed to record run latency: %s", err.Error())
		}
	}

	return &RunResult{
		Report:          report,
		Targets:         targets,
		RebalanceResult: *rebalanced,
		Profile:         profile,
	}, nil
}
