package domain

import (
	"fmt"
	"sort"
	"strings"
)

type Market string

const (
	MarketUS Market = "US"
	MarketHK Market = "HK"
	MarketCN Market = "CN"
)

// AllMarkets is the fixed iteration order used wherever markets are walked
// (cash init, turnover enforcement, ETF fallback)
var AllMarkets = []Market{MarketCN, MarketHK, MarketUS}

// etf fallback walks markets in this order when building long suggestions
var EtfMarketOrder = []Market{MarketUS, MarketHK, MarketCN}

func ParseMarket(s string) (Market, error) {
	switch Market(strings.ToUpper(strings.TrimSpace(s))) {
	case MarketUS:
		return MarketUS, nil
	case MarketHK:
		return MarketHK, nil
	case MarketCN:
		return MarketCN, nil
	}
	return "", fmt.Errorf("unknown market %q", s)
}

// MarketForTicker infers the listing market from the ticker suffix
func MarketForTicker(ticker string) Market {
	tk := strings.ToUpper(strings.TrimSpace(ticker))
	if strings.HasSuffix(tk, ".HK") {
		return MarketHK
	}
	if strings.HasSuffix(tk, ".SH") || strings.HasSuffix(tk, ".SZ") || strings.HasSuffix(tk, ".SS") {
		return MarketCN
	}
	return MarketUS
}

// MarketSet is a set of allowed markets. an empty set allows everything
type MarketSet map[Market]bool

func NewMarketSet(markets ...Market) MarketSet {
	out := MarketSet{}
	for _, m := range markets {
		out[m] = true
	}
	return out
}

func ParseMarketSet(in []string) (MarketSet, error) {
	out := MarketSet{}
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		m, err := ParseMarket(s)
		if err != nil {
			return nil, err
		}
		out[m] = true
	}
	return out, nil
}

func (s MarketSet) Allows(m Market) bool {
	if len(s) == 0 {
		return true
	}
	return s[m]
}

// Single returns the only allowed market, if exactly one is set
func (s MarketSet) Single() (Market, bool) {
	if len(s) != 1 {
		return "", false
	}
	for m := range s {
		return m, true
	}
	return "", false
}

func (s MarketSet) List() []Market {
	out := []Market{}
	for _, m := range AllMarkets {
		if s.Allows(m) {
			out = append(out, m)
		}
	}
	return out
}

func SortedTickers[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
