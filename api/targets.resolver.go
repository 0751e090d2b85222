package api

import (
	"sectorrebalance/internal/domain"

	"github.com/gin-gonic/gin"
)

type TargetsRequest struct {
	Report         domain.AllocationReport `json:"report"`
	AllowedMarkets []string                `json:"allowedMarkets"`
}

type TargetsResponse struct {
	Targets []*domain.Target `json:"targets"`
}

func (m ApiHandler) targets(c *gin.Context) {
	var requestBody TargetsRequest
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		returnErrorJsonCode(err, c, 400)
		return
	}

	allowed, err := domain.ParseMarketSet(requestBody.AllowedMarkets)
	if err != nil {
		returnErrorJsonCode(err, c, 400)
		return
	}
	if len(allowed) == 0 {
		allowed = m.RebalancerHandler.Config.AllowedMarkets()
	}

	targets := m.RebalancerHandler.Targets(requestBody.Report, allowed)

	out := TargetsResponse{Targets: []*domain.Target{}}
	for _, ticker := range domain.SortedTickers(targets) {
		out.Targets = append(out.Targets, targets[ticker])
	}
	c.JSON(200, out)
}
