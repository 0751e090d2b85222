package l1_service

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"golang.org/x/time/rate"
)

type HistoryService interface {
	// DailyCloses returns adjusted daily closes over the trailing window,
	// oldest first
	DailyCloses(ctx context.Context, ticker string, days int) ([]float64, error)
}

type closesFetcher func(symbol string, start, end time.Time) ([]float64, error)

type historyServiceHandler struct {
	limiter *rate.Limiter
	fetch   closesFetcher
	now     func() time.Time
}

func NewHistoryService(limiter *rate.Limiter) HistoryService {
	return historyServiceHandler{
		limiter: limiter,
		fetch:   yahooCloses,
		now:     time.Now,
	}
}

func yahooCloses(symbol string, start, end time.Time) ([]float64, error) {
	params := &chart.Params{
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Symbol:   symbol,
		Interval: datetime.OneDay,
	}
	iter := chart.Get(params)

	closes := []float64{}
	for iter.Next() {
		bar := iter.Bar()
		if bar.AdjClose.IsPositive() {
			closes = append(closes, bar.AdjClose.InexactFloat64())
		} else if bar.Close.IsPositive() {
			closes = append(closes, bar.Close.InexactFloat64())
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to get prices for %s: %w", symbol, err)
	}

	return closes, nil
}

func (h historyServiceHandler) DailyCloses(ctx context.Context, ticker string, days int) ([]float64, error) {
	if days <= 0 {
		return nil, fmt.Errorf("invalid history window %d", days)
	}
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	end := h.now().UTC()
	// calendar days, padded so the window holds roughly `days` sessions
	start := end.AddDate(0, 0, -(days + days/2 + 7))

	closes, err := h.fetch(YahooSymbol(ticker), start, end)
	if err != nil {
		return nil, err
	}
	if len(closes) > days {
		closes = closes[len(closes)-days:]
	}

	return closes, nil
}
