package l1_service

import (
	"context"
	"errors"
	"fmt"
	"sectorrebalance/internal/logger"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

/**

a price source is one way of getting a current price for a ticker (override
file, alpaca, yahoo). the resolver tries them in order and the first one
that has a price wins. sources that hit the network carry their own rate
limiter, the resolver owns retries

*/

var ErrPriceNotFound = errors.New("price not found")

type PriceSource interface {
	Name() string
	// Price returns ErrPriceNotFound when the source has nothing for the
	// ticker. any other error is treated as transient and retried
	Price(ctx context.Context, ticker string) (decimal.Decimal, error)
}

type PriceResolver interface {
	Resolve(ctx context.Context, ticker string) (decimal.Decimal, error)
}

type PriceResolverOptions struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type priceResolverHandler struct {
	Sources []PriceSource
	Options PriceResolverOptions
}

func NewPriceResolver(opts PriceResolverOptions, sources ...PriceSource) PriceResolver {
	if opts.InitialInterval == 0 {
		opts.InitialInterval = 250 * time.Millisecond
	}
	if opts.MaxInterval == 0 {
		opts.MaxInterval = 5 * time.Second
	}
	return priceResolverHandler{
		Sources: sources,
		Options: opts,
	}
}

func (h priceResolverHandler) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.Options.InitialInterval
	b.MaxInterval = h.Options.MaxInterval
	return backoff.WithContext(backoff.WithMaxRetries(b, h.Options.MaxRetries), ctx)
}

func (h priceResolverHandler) Resolve(ctx context.Context, ticker string) (decimal.Decimal, error) {
	log := logger.FromContext(ctx)
	failures := []string{}

	for _, source := range h.Sources {
		var price decimal.Decimal
		op := func() error {
			p, err := source.Price(ctx, ticker)
			if errors.Is(err, ErrPriceNotFound) {
				return backoff.Permanent(err)
			}
			if err != nil {
				return err
			}
			if !p.IsPositive() {
				return backoff.Permanent(fmt.Errorf("%w: %s returned %s", ErrPriceNotFound, source.Name(), p.String()))
			}
			price = p
			return nil
		}
		err := backoff.Retry(op, h.newBackoff(ctx))
		if err == nil {
			return price, nil
		}
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
		if !errors.Is(err, ErrPriceNotFound) {
			log.Warnf("price source %s failed for %s: %s", source.Name(), ticker, err.Error())
		}
		failures = append(failures, fmt.Sprintf("%s: %s", source.Name(), err.Error()))
	}

	return decimal.Zero, fmt.Errorf("%w for %s (%s)", ErrPriceNotFound, ticker, strings.Join(failures, "; "))
}

type ResolvePricesResult struct {
	Prices  map[string]decimal.Decimal
	Missing []string
}

// ResolvePrices resolves every ticker, up to `parallelism` at a time. the
// returned map is complete before it is handed back, so callers never see
// a partially filled map. prices are rounded to 4 places
func ResolvePrices(ctx context.Context, resolver PriceResolver, tickers []string, parallelism int) (*ResolvePricesResult, error) {
	log := logger.FromContext(ctx)
	if resolver == nil {
		return nil, fmt.Errorf("cannot resolve prices without a price resolver")
	}
	if parallelism <= 0 {
		parallelism = 1
	}

	type result struct {
		price decimal.Decimal
		found bool
	}
	results := make([]result, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, ticker := range tickers {
		g.Go(func() error {
			price, err := resolver.Resolve(gctx, ticker)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warnf("no price for %s: %s", ticker, err.Error())
				return nil
			}
			results[i] = result{price: price.Round(4), found: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to resolve prices: %w", err)
	}

	out := &ResolvePricesResult{
		Prices:  map[string]decimal.Decimal{},
		Missing: []string{},
	}
	for i, ticker := range tickers {
		if results[i].found {
			out.Prices[ticker] = results[i].price
		} else {
			out.Missing = append(out.Missing, ticker)
		}
	}
	sort.Strings(out.Missing)

	return out, nil
}
