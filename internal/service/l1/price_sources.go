package l1_service

import (
	"context"
	"fmt"
	"sectorrebalance/internal/domain"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// NewLimiter returns an unlimited limiter for non-positive rates
func NewLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// static overrides, usually loaded from a price file

type staticPriceSource struct {
	prices map[string]decimal.Decimal
}

func NewStaticPriceSource(prices map[string]decimal.Decimal) PriceSource {
	normalized := map[string]decimal.Decimal{}
	for ticker, price := range prices {
		normalized[strings.ToUpper(strings.TrimSpace(ticker))] = price
	}
	return staticPriceSource{prices: normalized}
}

func (s staticPriceSource) Name() string { return "static" }

func (s staticPriceSource) Price(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if p, ok := s.prices[strings.ToUpper(ticker)]; ok {
		return p, nil
	}
	return decimal.Zero, ErrPriceNotFound
}

// yahoo

type yahooQuoteGetter func(symbol string) (*finance.Quote, error)

type yahooPriceSource struct {
	limiter *rate.Limiter
	get     yahooQuoteGetter
}

func NewYahooPriceSource(limiter *rate.Limiter) PriceSource {
	return yahooPriceSource{
		limiter: limiter,
		get:     quote.Get,
	}
}

func (s yahooPriceSource) Name() string { return "yahoo" }

// YahooSymbol converts exchange suffixes to the ones yahoo lists under
func YahooSymbol(ticker string) string {
	symbol := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(ticker), " ", ""))
	symbol = strings.ReplaceAll(symbol, "/", "-")
	if strings.HasSuffix(symbol, ".SH") {
		symbol = strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

func (s yahooPriceSource) Price(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return decimal.Zero, err
		}
	}
	q, err := s.get(YahooSymbol(ticker))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get yahoo quote for %s: %w", ticker, err)
	}
	if q == nil {
		return decimal.Zero, ErrPriceNotFound
	}
	if q.RegularMarketOpen > 0 {
		return decimal.NewFromFloat(q.RegularMarketOpen), nil
	}
	if q.RegularMarketPrice > 0 {
		return decimal.NewFromFloat(q.RegularMarketPrice), nil
	}
	return decimal.Zero, ErrPriceNotFound
}

// alpaca, US listings only

type AlpacaQuoteClient interface {
	GetLatestQuote(symbol string, req marketdata.GetLatestQuoteRequest) (*marketdata.Quote, error)
}

type alpacaPriceSource struct {
	limiter *rate.Limiter
	client  AlpacaQuoteClient
}

func NewAlpacaMarketDataClient(apiKey, apiSecret, endpoint string) AlpacaQuoteClient {
	return marketdata.NewClient(marketdata.ClientOpts{
		BaseURL:   endpoint,
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
}

func NewAlpacaPriceSource(client AlpacaQuoteClient, limiter *rate.Limiter) PriceSource {
	return alpacaPriceSource{
		limiter: limiter,
		client:  client,
	}
}

func (s alpacaPriceSource) Name() string { return "alpaca" }

func (s alpacaPriceSource) Price(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if domain.MarketForTicker(ticker) != domain.MarketUS {
		return decimal.Zero, ErrPriceNotFound
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return decimal.Zero, err
		}
	}
	q, err := s.client.GetLatestQuote(strings.ToUpper(ticker), marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get alpaca quote for %s: %w", ticker, err)
	}
	if q == nil {
		return decimal.Zero, ErrPriceNotFound
	}

	bid := decimal.NewFromFloat(q.BidPrice)
	ask := decimal.NewFromFloat(q.AskPrice)
	switch {
	case bid.IsPositive() && ask.IsPositive():
		return bid.Add(ask).Div(decimal.NewFromInt(2)), nil
	case bid.IsPositive():
		return bid, nil
	case ask.IsPositive():
		return ask, nil
	}
	return decimal.Zero, ErrPriceNotFound
}
