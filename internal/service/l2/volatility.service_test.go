package l2_service

import (
	"context"
	"fmt"
	"math"
	"sectorrebalance/internal/domain"
	mock_l1_service "sectorrebalance/internal/service/l1/mocks"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// alternatingCloses moves +r, -r, +r, ... from 100
func alternatingCloses(r float64, n int) []float64 {
	out := []float64{100}
	for i := 1; i < n; i++ {
		step := r
		if i%2 == 0 {
			step = -r
		}
		out = append(out, out[i-1]*(1+step))
	}
	return out
}

func TestAnnualizedVolatility(t *testing.T) {
	t.Run("too few closes", func(t *testing.T) {
		_, ok := AnnualizedVolatility([]float64{1, 2, 3, 4})
		require.False(t, ok)
	})

	t.Run("flat prices", func(t *testing.T) {
		vol, ok := AnnualizedVolatility([]float64{10, 10, 10, 10, 10})
		require.True(t, ok)
		require.Equal(t, 0.0, vol)
	})

	t.Run("alternating returns", func(t *testing.T) {
		vol, ok := AnnualizedVolatility(alternatingCloses(0.1, 5))
		require.True(t, ok)
		// four returns of +-0.1 around a zero mean
		require.InDelta(t, math.Sqrt(0.04/3)*math.Sqrt(252), vol, 1e-9)
	})

	t.Run("zero closes are skipped", func(t *testing.T) {
		_, ok := AnnualizedVolatility([]float64{0, 0, 0, 0, 10})
		require.False(t, ok)
	})
}

func reportForAdjust() domain.AllocationReport {
	return domain.AllocationReport{
		Sectors: []domain.SectorAllocation{
			{
				Sector:    "financials",
				SectorPct: 40,
				Suggestions: []domain.Suggestion{
					{Name: "financials ETF US", Ticker: "XLF", AllocationPct: 18, Role: domain.RoleCore},
					{Name: "banks", Ticker: "KBE", AllocationPct: 10.8, Role: domain.RoleSatellite},
					{Name: "unmapped", AllocationPct: 5, Role: domain.RoleSatellite},
				},
			},
			{
				Sector:    "energy",
				SectorPct: 10,
				Suggestions: []domain.Suggestion{
					{Name: "energy ETF US", Ticker: "XLE", AllocationPct: 9, Role: domain.RoleCore},
				},
			},
		},
	}
}

func Test_volatilityServiceHandler_Adjust(t *testing.T) {
	ctx := context.Background()

	expectHistory := func(history *mock_l1_service.MockHistoryService) {
		history.EXPECT().DailyCloses(gomock.Any(), "XLF", 90).Return(alternatingCloses(0.01, 30), nil)
		history.EXPECT().DailyCloses(gomock.Any(), "KBE", 90).Return(alternatingCloses(0.02, 30), nil)
		history.EXPECT().DailyCloses(gomock.Any(), "XLE", 90).Return(nil, fmt.Errorf("no data"))
	}

	t.Run("inverse volatility over the whole sector", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		history := mock_l1_service.NewMockHistoryService(ctrl)
		expectHistory(history)

		in := AdjustInput{
			Report:        reportForAdjust(),
			PortfolioSize: 100000,
			WindowDays:    90,
			Parallelism:   2,
		}
		adjusted, err := NewVolatilityService(history).Adjust(ctx, in)
		require.NoError(t, err)

		financials := adjusted.Sectors[0].Suggestions
		require.Equal(t, 26.67, financials[0].AllocationPct)
		require.Equal(t, 13.33, financials[1].AllocationPct)
		require.Equal(t, 5.0, financials[2].AllocationPct)
		require.Equal(t, 26670.0, *financials[0].AllocationAmount)
		require.NotNil(t, financials[0].Volatility)
		require.InDelta(t, *financials[0].Volatility*2, *financials[1].Volatility, 1e-3)
		require.Nil(t, financials[2].Volatility)

		energy := adjusted.Sectors[1].Suggestions
		require.Equal(t, 9.0, energy[0].AllocationPct)
		require.Nil(t, energy[0].Volatility)

		// input is untouched
		require.Equal(t, 18.0, in.Report.Sectors[0].Suggestions[0].AllocationPct)
	})

	t.Run("preserving the sector total", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		history := mock_l1_service.NewMockHistoryService(ctrl)
		expectHistory(history)

		adjusted, err := NewVolatilityService(history).Adjust(ctx, AdjustInput{
			Report:              reportForAdjust(),
			WindowDays:          90,
			PreserveSectorTotal: true,
		})
		require.NoError(t, err)

		financials := adjusted.Sectors[0].Suggestions
		require.Equal(t, 23.33, financials[0].AllocationPct)
		require.Equal(t, 11.67, financials[1].AllocationPct)
		require.Equal(t, 5.0, financials[2].AllocationPct)
		require.Nil(t, financials[0].AllocationAmount)
	})

	t.Run("nothing to look up", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		history := mock_l1_service.NewMockHistoryService(ctrl)

		adjusted, err := NewVolatilityService(history).Adjust(ctx, AdjustInput{
			Report: domain.AllocationReport{
				Sectors: []domain.SectorAllocation{{
					Sector:      "energy",
					SectorPct:   10,
					Suggestions: []domain.Suggestion{{Name: "energy ETF", Role: domain.RoleCore}},
				}},
			},
			WindowDays: 90,
		})
		require.NoError(t, err)
		require.Equal(t, 0.0, adjusted.Sectors[0].Suggestions[0].AllocationPct)
	})
}
