package api

import (
	"context"
	"fmt"
	"sectorrebalance/internal/app"
	"sectorrebalance/internal/domain"
	"sectorrebalance/internal/logger"
	"sectorrebalance/internal/util"

	"github.com/gin-gonic/gin"
)

type AllocateRequest struct {
	Date               string                        `json:"date"`
	SectorWeights      []domain.SectorWeight         `json:"sectorWeights"`
	CandidatesBySector map[string][]domain.Candidate `json:"candidatesBySector"`
	SectorBias         map[string]domain.Bias        `json:"sectorBias"`

	Strategy         *domain.AllocationStrategy `json:"strategy"`
	TopPerSector     *int                       `json:"topPerSector"`
	EtfOnly          *bool                      `json:"etfOnly"`
	PortfolioSize    *float64                   `json:"portfolioSize"`
	AllowedMarkets   []string                   `json:"allowedMarkets"`
	AdjustVolatility *bool                      `json:"adjustVolatility"`
}

func (r AllocateRequest) toInput() (*app.AllocateInput, error) {
	date, err := util.ParseDate(r.Date)
	if err != nil {
		return nil, err
	}
	if r.Strategy != nil {
		switch *r.Strategy {
		case domain.StrategySimple, domain.StrategyConvictionWeighted:
		default:
			return nil, fmt.Errorf("unknown strategy %q", *r.Strategy)
		}
	}
	for sector, b := range r.SectorBias {
		if b != domain.BiasLong && b != domain.BiasShort {
			return nil, fmt.Errorf("invalid bias %q for sector %s", b, sector)
		}
	}
	if _, err := domain.ParseMarketSet(r.AllowedMarkets); err != nil {
		return nil, err
	}

	return &app.AllocateInput{
		Date:               date,
		SectorWeights:      r.SectorWeights,
		CandidatesBySector: r.CandidatesBySector,
		SectorBias:         r.SectorBias,
		Strategy:           r.Strategy,
		TopPerSector:       r.TopPerSector,
		EtfOnly:            r.EtfOnly,
		PortfolioSize:      r.PortfolioSize,
		AllowedMarkets:     r.AllowedMarkets,
		AdjustVolatility:   r.AdjustVolatility,
	}, nil
}

// requestContext carries the request logger and a fresh profile into the
// app layer
func requestContext(c *gin.Context) (context.Context, *domain.Profile, func()) {
	ctx := logger.NewContext(c.Request.Context(), logger.FromContext(c))
	return domain.NewContextWithProfile(ctx)
}

func (m ApiHandler) allocate(c *gin.Context) {
	ctx, _, endProfile := requestContext(c)
	defer endProfile()

	var requestBody AllocateRequest
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		returnErrorJsonCode(err, c, 400)
		return
	}
	in, err := requestBody.toInput()
	if err != nil {
		returnErrorJsonCode(err, c, 400)
		return
	}

	report, err := m.RebalancerHandler.Allocate(ctx, *in)
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to allocate: %w", err), c)
		return
	}

	c.JSON(200, report)
}
