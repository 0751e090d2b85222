package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sectorrebalance/internal/domain"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidConfig = errors.New("invalid config")

const DefaultMarketWeightsKey = "default"

// EtfMapping lists the sector ETF per market, plus an optional inverse
// instrument listed in the US
type EtfMapping struct {
	US        string `json:"US,omitempty"`
	HK        string `json:"HK,omitempty"`
	CN        string `json:"CN,omitempty"`
	InverseUS string `json:"inverseUS,omitempty"`
}

func (e EtfMapping) Long(m domain.Market) string {
	switch m {
	case domain.MarketUS:
		return strings.TrimSpace(e.US)
	case domain.MarketHK:
		return strings.TrimSpace(e.HK)
	case domain.MarketCN:
		return strings.TrimSpace(e.CN)
	}
	return ""
}

func (e EtfMapping) Inverse() string {
	return strings.TrimSpace(e.InverseUS)
}

type AllocationParams struct {
	Strategy      domain.AllocationStrategy `json:"strategy"`
	TopPerSector  int                       `json:"topPerSector"`
	EtfOnly       bool                      `json:"etfOnly"`
	PortfolioSize float64                   `json:"portfolioSize"`
	// goval expression over avgScore, positive, negative, neutral, count
	ConvictionExpression string `json:"convictionExpression"`
	AdjustVolatility     bool   `json:"adjustVolatility"`
	VolatilityWindowDays int    `json:"volatilityWindowDays"`
	PreserveSectorTotal  bool   `json:"preserveSectorTotal"`
}

type TradingParams struct {
	MarketBudgets      map[domain.Market]decimal.Decimal `json:"marketBudgets"`
	MinTradeValue      decimal.Decimal                   `json:"minTradeValue"`
	MinTurnoverRatio   float64                           `json:"minTurnoverRatio"`
	AllowedMarkets     []string                          `json:"allowedMarkets"`
	DropEmptyPositions bool                              `json:"dropEmptyPositions"`
}

type PriceParams struct {
	OverridesFile     string  `json:"overridesFile"`
	Parallelism       int     `json:"parallelism"`
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	MaxRetries        uint64  `json:"maxRetries"`
}

type StrategyConfig struct {
	EtfMap map[string]EtfMapping `json:"etfMap"`
	// sector (or "default") -> market -> relative weight
	MarketWeights map[string]map[domain.Market]float64 `json:"marketWeights"`
	SectorAliases map[string]string                    `json:"sectorAliases"`
	// ticker -> company name
	TickerDb map[string]string `json:"tickerDb"`
	// alias (often a non-english company name) -> ticker
	AliasDb       map[string]string `json:"aliasDb"`
	TickerSectors map[string]string `json:"tickerSectors"`

	Allocation AllocationParams `json:"allocation"`
	Trading    TradingParams    `json:"trading"`
	Prices     PriceParams      `json:"prices"`
}

func defaultSectorAliases() map[string]string {
	return map[string]string{
		"real":                   "real estate",
		"real_estate":            "real estate",
		"health_care":            "health",
		"healthcare":             "health",
		"consumer_discretionary": "consumer",
		"consumer_staples":       "consumer staples",
	}
}

func DefaultMarketWeights() map[domain.Market]float64 {
	return map[domain.Market]float64{
		domain.MarketUS: 0.5,
		domain.MarketHK: 0.3,
		domain.MarketCN: 0.2,
	}
}

func Default() StrategyConfig {
	budget := decimal.NewFromInt(1_000_000)
	return StrategyConfig{
		EtfMap: map[string]EtfMapping{},
		MarketWeights: map[string]map[domain.Market]float64{
			DefaultMarketWeightsKey: DefaultMarketWeights(),
		},
		SectorAliases: defaultSectorAliases(),
		TickerDb:      map[string]string{},
		AliasDb:       map[string]string{},
		TickerSectors: map[string]string{},
		Allocation: AllocationParams{
			Strategy:             domain.StrategySimple,
			TopPerSector:         3,
			EtfOnly:              true,
			ConvictionExpression: DefaultConvictionExpression,
			VolatilityWindowDays: 90,
		},
		Trading: TradingParams{
			MarketBudgets: map[domain.Market]decimal.Decimal{
				domain.MarketUS: budget,
				domain.MarketHK: budget,
				domain.MarketCN: budget,
			},
			MinTradeValue:    decimal.Zero,
			MinTurnoverRatio: 0.10,
		},
		Prices: PriceParams{
			Parallelism:       8,
			RequestsPerSecond: 2,
			MaxRetries:        3,
		},
	}
}

const DefaultConvictionExpression = "max(0, avgScore) + 0.1 * positive"

// Load decodes the file over Default() and validates the result
func Load(path string) (*StrategyConfig, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(f, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c StrategyConfig) Validate() error {
	problems := []string{}

	for sector, mapping := range c.EtfMap {
		if strings.TrimSpace(sector) == "" {
			problems = append(problems, "etfMap has an empty sector key")
		}
		if mapping.US == "" && mapping.HK == "" && mapping.CN == "" && mapping.InverseUS == "" {
			problems = append(problems, fmt.Sprintf("etfMap[%s] maps no tickers", sector))
		}
	}
	for key, weights := range c.MarketWeights {
		for m, w := range weights {
			if _, err := domain.ParseMarket(string(m)); err != nil {
				problems = append(problems, fmt.Sprintf("marketWeights[%s]: %s", key, err.Error()))
			}
			if w < 0 {
				problems = append(problems, fmt.Sprintf("marketWeights[%s][%s] is negative", key, m))
			}
		}
	}
	for ticker, sector := range c.TickerSectors {
		if strings.TrimSpace(ticker) == "" || strings.TrimSpace(sector) == "" {
			problems = append(problems, "tickerSectors has an empty key or value")
		}
	}
	for alias, ticker := range c.AliasDb {
		if strings.TrimSpace(alias) == "" || strings.TrimSpace(ticker) == "" {
			problems = append(problems, "aliasDb has an empty key or value")
		}
	}

	switch c.Allocation.Strategy {
	case domain.StrategySimple, domain.StrategyConvictionWeighted:
	default:
		problems = append(problems, fmt.Sprintf("unknown allocation strategy %q", c.Allocation.Strategy))
	}
	if c.Allocation.TopPerSector < 1 {
		problems = append(problems, "topPerSector must be at least 1")
	}
	if c.Allocation.PortfolioSize < 0 {
		problems = append(problems, "portfolioSize must be non-negative")
	}
	if c.Allocation.AdjustVolatility && c.Allocation.VolatilityWindowDays < 5 {
		problems = append(problems, "volatilityWindowDays must be at least 5")
	}

	for m, budget := range c.Trading.MarketBudgets {
		if _, err := domain.ParseMarket(string(m)); err != nil {
			problems = append(problems, fmt.Sprintf("marketBudgets: %s", err.Error()))
		}
		if budget.IsNegative() {
			problems = append(problems, fmt.Sprintf("marketBudgets[%s] is negative", m))
		}
	}
	if c.Trading.MinTradeValue.IsNegative() {
		problems = append(problems, "minTradeValue must be non-negative")
	}
	if c.Trading.MinTurnoverRatio < 0 || c.Trading.MinTurnoverRatio > 1 {
		problems = append(problems, "minTurnoverRatio must be within [0, 1]")
	}
	if _, err := domain.ParseMarketSet(c.Trading.AllowedMarkets); err != nil {
		problems = append(problems, fmt.Sprintf("allowedMarkets: %s", err.Error()))
	}

	if c.Prices.Parallelism < 0 {
		problems = append(problems, "prices.parallelism must be non-negative")
	}
	if c.Prices.RequestsPerSecond < 0 {
		problems = append(problems, "prices.requestsPerSecond must be non-negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// NormalizeSector maps raw sector names through the alias table
func (c StrategyConfig) NormalizeSector(raw string) string {
	if alias, ok := c.SectorAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return alias
	}
	return strings.TrimSpace(raw)
}

func (c StrategyConfig) EtfsForSector(sector string) EtfMapping {
	key := c.NormalizeSector(sector)
	if m, ok := c.EtfMap[key]; ok {
		return m
	}
	if m, ok := c.EtfMap[strings.ToLower(key)]; ok {
		return m
	}
	return EtfMapping{}
}

func (c StrategyConfig) MarketWeightsForSector(sector string) map[domain.Market]float64 {
	key := c.NormalizeSector(sector)
	if w, ok := c.MarketWeights[key]; ok && len(w) > 0 {
		return w
	}
	if w, ok := c.MarketWeights[strings.ToLower(key)]; ok && len(w) > 0 {
		return w
	}
	if w, ok := c.MarketWeights[DefaultMarketWeightsKey]; ok && len(w) > 0 {
		return w
	}
	return DefaultMarketWeights()
}

// SectorForTicker looks the ticker up as given, upper and lower cased
func (c StrategyConfig) SectorForTicker(ticker string) (string, bool) {
	for _, tk := range []string{ticker, strings.ToUpper(ticker), strings.ToLower(ticker)} {
		if sector, ok := c.TickerSectors[tk]; ok && sector != "" {
			return c.NormalizeSector(sector), true
		}
	}
	return "", false
}

func (c StrategyConfig) AllowedMarkets() domain.MarketSet {
	s, err := domain.ParseMarketSet(c.Trading.AllowedMarkets)
	if err != nil {
		return domain.MarketSet{}
	}
	return s
}
