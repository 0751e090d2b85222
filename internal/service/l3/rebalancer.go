package l3_service

import (
	"context"
	"fmt"
	"sectorrebalance/internal/domain"
	"sectorrebalance/internal/logger"
	l1_service "sectorrebalance/internal/service/l1"
	"sectorrebalance/internal/util"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type GenerateTradesInput struct {
	Targets          domain.Targets
	Portfolio        domain.PortfolioState
	MinTradeValue    decimal.Decimal
	MinTurnoverRatio float64
	AllowedMarkets   domain.MarketSet
	MarketBudgets    map[domain.Market]decimal.Decimal

	PriceResolver l1_service.PriceResolver
	// pre-resolved prices take precedence over the resolver
	Prices      map[string]decimal.Decimal
	Parallelism int

	Now                time.Time
	DropEmptyPositions bool
}

var turnoverEpsilon = decimal.NewFromFloat(1e-6)

// rebalanceState is the mutable working copy for a single run. it is
// never shared outside GenerateTrades
type rebalanceState struct {
	universe  []string
	prices    map[string]decimal.Decimal
	targets   map[string]decimal.Decimal
	positions map[string]int64
	cash      map[domain.Market]decimal.Decimal
	trades    []domain.Trade
	now       time.Time
}

func (s *rebalanceState) apply(ticker string, action domain.TradeAction, qty int64, reason domain.TradeReason) {
	price := s.prices[ticker]
	m := domain.MarketForTicker(ticker)
	notional := price.Mul(decimal.NewFromInt(qty))

	amount := notional
	if action == domain.TradeActionBuy {
		s.positions[ticker] += qty
		s.cash[m] = s.cash[m].Sub(notional)
	} else {
		s.positions[ticker] -= qty
		s.cash[m] = s.cash[m].Add(notional)
		amount = notional.Neg()
	}

	s.trades = append(s.trades, domain.Trade{
		TradeID:  uuid.New(),
		Datetime: s.now,
		Ticker:   ticker,
		Market:   m,
		Action:   action,
		Shares:   qty,
		Price:    price,
		Amount:   amount,
		Reason:   reason,
	})
}

// floorShares is the whole number of shares `amount` buys at `price`
func floorShares(amount, price decimal.Decimal) int64 {
	if !amount.IsPositive() || !price.IsPositive() {
		return 0
	}
	q, _ := amount.QuoRem(price, 0)
	return q.IntPart()
}

// feasibleTrade sizes the trade that moves ticker toward its target,
// capped by cash on buys and by holdings on sells. qty is 0 when nothing
// is feasible
func (s *rebalanceState) feasibleTrade(ticker string) (domain.TradeAction, int64, decimal.Decimal) {
	price := s.prices[ticker]
	current := price.Mul(decimal.NewFromInt(s.positions[ticker]))
	diff := s.targets[ticker].Sub(current)

	qty := floorShares(diff.Abs(), price)
	if qty <= 0 {
		return "", 0, diff
	}
	if diff.IsPositive() {
		affordable := floorShares(s.cash[domain.MarketForTicker(ticker)], price)
		if affordable < qty {
			qty = affordable
		}
		return domain.TradeActionBuy, qty, diff
	}
	if held := s.positions[ticker]; held < qty {
		qty = held
	}
	return domain.TradeActionSell, qty, diff
}

func (s *rebalanceState) tradedNotional(m domain.Market) decimal.Decimal {
	total := decimal.Zero
	for _, t := range s.trades {
		if t.Market == m {
			total = total.Add(t.Notional())
		}
	}
	return total
}

// marketValue is holdings at the resolved prices plus cash. trades at the
// resolved price move value between the two, so this is constant over a
// run
func (s *rebalanceState) marketValue(m domain.Market) decimal.Decimal {
	value := s.cash[m]
	for _, ticker := range s.universe {
		if domain.MarketForTicker(ticker) != m {
			continue
		}
		if price, ok := s.prices[ticker]; ok {
			value = value.Add(price.Mul(decimal.NewFromInt(s.positions[ticker])))
		}
	}
	return value
}

// diffPass emits at most one trade per ticker for every diff at or above
// the minimum trade value
func (s *rebalanceState) diffPass(minTradeValue decimal.Decimal) {
	threshold := decimal.Max(decimal.NewFromInt(1), minTradeValue)
	for _, ticker := range s.universe {
		if _, ok := s.prices[ticker]; !ok {
			continue
		}
		action, qty, diff := s.feasibleTrade(ticker)
		if diff.Abs().LessThan(threshold) || qty <= 0 {
			continue
		}
		s.apply(ticker, action, qty, domain.TradeReasonDiff)
	}
}

// bestTurnoverTrade picks the largest notional feasible trade in the
// market whose remaining |diff| is worth at least one share
func (s *rebalanceState) bestTurnoverTrade(m domain.Market) (string, domain.TradeAction, int64, bool) {
	var (
		bestTicker   string
		bestAction   domain.TradeAction
		bestQty      int64
		bestNotional = decimal.Zero
	)
	for _, ticker := range s.universe {
		if domain.MarketForTicker(ticker) != m {
			continue
		}
		price, ok := s.prices[ticker]
		if !ok {
			continue
		}
		action, qty, diff := s.feasibleTrade(ticker)
		if diff.Abs().LessThan(price) || qty <= 0 {
			continue
		}
		notional := price.Mul(decimal.NewFromInt(qty))
		if notional.GreaterThan(bestNotional) {
			bestTicker, bestAction, bestQty, bestNotional = ticker, action, qty, notional
		}
	}
	return bestTicker, bestAction, bestQty, bestQty > 0
}

// enforceTurnover keeps adding the single best trade to each market that
// is under the ratio. every applied trade strictly shrinks that ticker's
// |diff| without flipping its sign, so the loop always terminates
func (s *rebalanceState) enforceTurnover(ratio float64, allowed domain.MarketSet) {
	if ratio <= 0 {
		return
	}
	r := decimal.NewFromFloat(ratio)
	for {
		progress := false
		metAll := true
		for _, m := range domain.AllMarkets {
			if !allowed.Allows(m) {
				continue
			}
			value := s.marketValue(m)
			if !value.IsPositive() {
				continue
			}
			if s.tradedNotional(m).Add(turnoverEpsilon).GreaterThanOrEqual(r.Mul(value)) {
				continue
			}
			metAll = false
			ticker, action, qty, ok := s.bestTurnoverTrade(m)
			if !ok {
				continue
			}
			s.apply(ticker, action, qty, domain.TradeReasonTurnover)
			progress = true
		}
		if metAll || !progress {
			return
		}
	}
}

// initialCash follows budget > explicit per-market cash > an even split of
// the undifferentiated balance over the markets present
func initialCash(in GenerateTradesInput, universe []string, invested map[domain.Market]decimal.Decimal) (map[domain.Market]decimal.Decimal, decimal.Decimal) {
	cash := map[domain.Market]decimal.Decimal{}
	for m, c := range in.Portfolio.CashByMarket {
		cash[m] = c
	}
	for _, m := range domain.AllMarkets {
		budget, ok := in.MarketBudgets[m]
		if !ok || !budget.IsPositive() {
			continue
		}
		cash[m] = decimal.Max(decimal.Zero, budget.Sub(invested[m]))
	}

	unallocated := in.Portfolio.UnallocatedCash
	if len(cash) > 0 || !unallocated.IsPositive() {
		return cash, unallocated
	}

	presentSet := map[domain.Market]bool{}
	for _, ticker := range universe {
		presentSet[domain.MarketForTicker(ticker)] = true
	}
	present := []domain.Market{}
	for _, m := range domain.AllMarkets {
		if presentSet[m] {
			present = append(present, m)
		}
	}
	if len(present) == 0 {
		return cash, unallocated
	}

	share := unallocated.Div(decimal.NewFromInt(int64(len(present)))).Truncate(2)
	remaining := unallocated
	for i, m := range present {
		if i == len(present)-1 {
			cash[m] = remaining
			break
		}
		cash[m] = share
		remaining = remaining.Sub(share)
	}
	return cash, decimal.Zero
}

// GenerateTrades diffs targets against holdings and produces a
// cash-feasible set of orders plus the resulting portfolio. missing prices
// skip the ticker, they never fail the run
func GenerateTrades(ctx context.Context, in GenerateTradesInput) (*domain.TradeBatch, error) {
	log := logger.FromContext(ctx)
	profile, _ := domain.GetProfile(ctx)

	if in.PriceResolver == nil && in.Prices == nil {
		return nil, fmt.Errorf("cannot generate trades without a price resolver or prices")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	held := in.Portfolio.SharesByTicker()

	// universe
	universeSet := map[string]bool{}
	for ticker := range in.Targets {
		if ticker != "" && in.AllowedMarkets.Allows(domain.MarketForTicker(ticker)) {
			universeSet[ticker] = true
		}
	}
	for ticker := range held {
		if in.AllowedMarkets.Allows(domain.MarketForTicker(ticker)) {
			universeSet[ticker] = true
		}
	}
	universe := domain.SortedTickers(universeSet)

	// prices
	_, endSpan := profile.StartNewSpan("resolve prices")
	prices := map[string]decimal.Decimal{}
	toResolve := []string{}
	for _, ticker := range universe {
		if p, ok := in.Prices[ticker]; ok && p.IsPositive() {
			prices[ticker] = p
		} else {
			toResolve = append(toResolve, ticker)
		}
	}
	skipped := []string{}
	if len(toResolve) > 0 {
		if in.PriceResolver == nil {
			skipped = append(skipped, toResolve...)
		} else {
			resolved, err := l1_service.ResolvePrices(ctx, in.PriceResolver, toResolve, in.Parallelism)
			if err != nil {
				log.Warnf("price resolution aborted: %s", err.Error())
				skipped = append(skipped, toResolve...)
			} else {
				for ticker, p := range resolved.Prices {
					prices[ticker] = p
				}
				skipped = append(skipped, resolved.Missing...)
			}
		}
	}
	sort.Strings(skipped)
	if len(skipped) > 0 {
		log.Warnf("skipping %d tickers without prices: %v", len(skipped), skipped)
	}
	endSpan()

	_, endSpan = profile.StartNewSpan("diff and turnover")
	defer endSpan()

	// invested value per market
	invested := map[domain.Market]decimal.Decimal{}
	currentValue := decimal.Zero
	for _, ticker := range universe {
		price, ok := prices[ticker]
		if !ok {
			continue
		}
		v := price.Mul(decimal.NewFromInt(held[ticker]))
		m := domain.MarketForTicker(ticker)
		invested[m] = invested[m].Add(v)
		currentValue = currentValue.Add(v)
	}

	cash, unallocated := initialCash(in, universe, invested)

	// percentage targets scale to invested value, idle cash is never
	// forced into the market
	targetAmounts := map[string]decimal.Decimal{}
	for _, ticker := range universe {
		t, ok := in.Targets[ticker]
		if !ok || t == nil {
			targetAmounts[ticker] = decimal.Zero
			continue
		}
		amount := t.TargetAmount
		if amount.IsZero() && t.AllocationPct > 0 && currentValue.IsPositive() {
			amount = currentValue.Mul(decimal.NewFromFloat(t.AllocationPct / 100)).Round(2)
		}
		targetAmounts[ticker] = amount
	}

	positions := map[string]int64{}
	for ticker, shares := range held {
		positions[ticker] = shares
	}

	state := &rebalanceState{
		universe:  universe,
		prices:    prices,
		targets:   targetAmounts,
		positions: positions,
		cash:      cash,
		trades:    []domain.Trade{},
		now:       now,
	}
	state.diffPass(in.MinTradeValue)
	numDiffTrades := len(state.trades)
	state.enforceTurnover(in.MinTurnoverRatio, in.AllowedMarkets)

	batch := finalize(in, state, unallocated, now)
	batch.SkippedTickers = skipped

	log.Infof(
		"generated %d trades (%d diff, %d turnover) across %d tickers, portfolio value %s",
		len(batch.Trades),
		numDiffTrades,
		len(batch.Trades)-numDiffTrades,
		len(universe),
		batch.PortfolioValue.StringFixed(2),
	)

	return batch, nil
}

func finalize(in GenerateTradesInput, state *rebalanceState, unallocated decimal.Decimal, now time.Time) *domain.TradeBatch {
	newPositions := []domain.Position{}
	seen := map[string]bool{}
	add := func(ticker string) {
		if ticker == "" || seen[ticker] {
			return
		}
		seen[ticker] = true
		shares := state.positions[ticker]
		if shares == 0 && in.DropEmptyPositions {
			return
		}
		newPositions = append(newPositions, domain.Position{
			Ticker: ticker,
			Shares: shares,
		})
	}
	// existing rows keep their order, new tickers go on the end
	for _, p := range in.Portfolio.Positions {
		add(p.Ticker)
	}
	for _, ticker := range domain.SortedTickers(state.positions) {
		add(ticker)
	}

	newState := domain.PortfolioState{
		Date:            util.Today(now),
		CashByMarket:    state.cash,
		UnallocatedCash: unallocated,
		Positions:       newPositions,
	}
	portfolioValue := newState.TotalValue(state.prices)

	distribution := []domain.DistributionEntry{}
	for _, p := range newPositions {
		price := state.prices[p.Ticker]
		value := price.Mul(decimal.NewFromInt(p.Shares))
		pct := 0.0
		if portfolioValue.IsPositive() {
			pct = value.Div(portfolioValue).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		distribution = append(distribution, domain.DistributionEntry{
			Ticker: p.Ticker,
			Shares: p.Shares,
			Price:  price,
			Value:  value.Round(2),
			Pct:    pct,
		})
	}

	turnover := map[domain.Market]domain.TurnoverSummary{}
	for _, m := range domain.AllMarkets {
		if !in.AllowedMarkets.Allows(m) {
			continue
		}
		value := state.marketValue(m)
		traded := state.tradedNotional(m)
		if !value.IsPositive() && traded.IsZero() {
			continue
		}
		ratio := 0.0
		if value.IsPositive() {
			ratio = traded.Div(value).InexactFloat64()
		}
		turnover[m] = domain.TurnoverSummary{
			Traded:      traded,
			MarketValue: value,
			Ratio:       ratio,
			Satisfied:   ratio+1e-9 >= in.MinTurnoverRatio,
		}
	}

	return &domain.TradeBatch{
		Prices:         state.prices,
		Trades:         state.trades,
		NewPositions:   newState,
		Distribution:   distribution,
		PortfolioValue: portfolioValue,
		Turnover:       turnover,
	}
}
