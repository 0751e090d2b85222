package api

import (
	"fmt"
	"sectorrebalance/internal/app"
	"sectorrebalance/internal/domain"
	"sectorrebalance/internal/logger"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RunRequest struct {
	AllocateRequest
	Prices map[string]decimal.Decimal `json:"prices"`
	DryRun bool                       `json:"dryRun"`
}

type RunResponse struct {
	Report     *domain.AllocationReport `json:"report"`
	Targets    domain.Targets           `json:"targets"`
	SnapshotID *uuid.UUID               `json:"snapshotID,omitempty"`
	Batch      *domain.TradeBatch       `json:"batch"`
	Profile    *domain.Profile          `json:"profile"`
}

func (m ApiHandler) run(c *gin.Context) {
	var requestBody RunRequest
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		returnErrorJsonCode(err, c, 400)
		return
	}
	in, err := requestBody.toInput()
	if err != nil {
		returnErrorJsonCode(err, c, 400)
		return
	}

	ctx := logger.NewContext(c.Request.Context(), logger.FromContext(c))
	result, err := m.RebalancerHandler.Run(ctx, app.RunInput{
		Allocation: *in,
		Now:        time.Now().UTC(),
		Prices:     requestBody.Prices,
		DryRun:     requestBody.DryRun,
	})
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to run rebalance: %w", err), c)
		return
	}

	c.JSON(200, RunResponse{
		Report:     result.Report,
		Targets:    result.Targets,
		SnapshotID: result.SnapshotID,
		Batch:      result.Batch,
		Profile:    result.Profile,
	})
}
