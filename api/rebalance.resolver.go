package api

import (
	"fmt"
	"sectorrebalance/internal/app"
	"sectorrebalance/internal/domain"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RebalanceRequest struct {
	Targets        []domain.Target            `json:"targets"`
	Prices         map[string]decimal.Decimal `json:"prices"`
	AllowedMarkets []string                   `json:"allowedMarkets"`
	DryRun         bool                       `json:"dryRun"`
}

type RebalanceResponse struct {
	SnapshotID *uuid.UUID         `json:"snapshotID,omitempty"`
	Batch      *domain.TradeBatch `json:"batch"`
}

func (m ApiHandler) rebalance(c *gin.Context) {
	ctx, _, endProfile := requestContext(c)
	defer endProfile()

	var requestBody RebalanceRequest
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		returnErrorJsonCode(err, c, 400)
		return
	}
	targets, err := domain.NewTargets(requestBody.Targets)
	if err != nil {
		returnErrorJsonCode(err, c, 400)
		return
	}
	if _, err := domain.ParseMarketSet(requestBody.AllowedMarkets); err != nil {
		returnErrorJsonCode(err, c, 400)
		return
	}

	result, err := m.RebalancerHandler.Rebalance(ctx, app.RebalanceInput{
		Targets:        targets,
		Now:            time.Now().UTC(),
		AllowedMarkets: requestBody.AllowedMarkets,
		Prices:         requestBody.Prices,
		DryRun:         requestBody.DryRun,
	})
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to rebalance: %w", err), c)
		return
	}

	c.JSON(200, RebalanceResponse{
		SnapshotID: result.SnapshotID,
		Batch:      result.Batch,
	})
}
