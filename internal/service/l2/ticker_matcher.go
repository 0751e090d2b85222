package l2_service

import (
	"sectorrebalance/internal/domain"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// FuzzyMatchCutoff is the minimum similarity ratio for a fuzzy name match
const FuzzyMatchCutoff = 0.6

type TickerMatchKind string

const (
	TickerMatchObserved TickerMatchKind = "observed"
	TickerMatchExact    TickerMatchKind = "exact"
	TickerMatchAlias    TickerMatchKind = "alias"
	TickerMatchFuzzy    TickerMatchKind = "fuzzy"
)

type TickerMatch struct {
	Ticker string
	Kind   TickerMatchKind
	Score  float64
}

// TickerMatcher maps company names to tickers using the ticker db
// (ticker -> company name) and the alias db (alias -> ticker)
type TickerMatcher struct {
	byName    map[string]string
	aliases   map[string]string
	aliasKeys []string
	// company names in ticker order, paired with tickers
	names   []string
	tickers []string
}

func NewTickerMatcher(tickerDb, aliasDb map[string]string) *TickerMatcher {
	m := &TickerMatcher{
		byName:  map[string]string{},
		aliases: map[string]string{},
	}
	for _, ticker := range domain.SortedTickers(tickerDb) {
		name := strings.TrimSpace(tickerDb[ticker])
		if name == "" {
			continue
		}
		if _, ok := m.byName[strings.ToLower(name)]; !ok {
			m.byName[strings.ToLower(name)] = ticker
		}
		m.names = append(m.names, name)
		m.tickers = append(m.tickers, ticker)
	}
	for alias, ticker := range aliasDb {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias == "" || strings.TrimSpace(ticker) == "" {
			continue
		}
		m.aliases[alias] = strings.TrimSpace(ticker)
		m.aliasKeys = append(m.aliasKeys, alias)
	}
	// longest alias wins a substring match
	sort.Slice(m.aliasKeys, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(m.aliasKeys[i]), utf8.RuneCountInString(m.aliasKeys[j])
		if li != lj {
			return li > lj
		}
		return m.aliasKeys[i] < m.aliasKeys[j]
	})
	return m
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Match tries an exact ticker db name, then the alias table, then fuzzy
// similarity against ticker db names
func (m TickerMatcher) Match(name string) (*TickerMatch, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, false
	}
	lower := strings.ToLower(trimmed)

	if ticker, ok := m.byName[lower]; ok {
		return &TickerMatch{Ticker: ticker, Kind: TickerMatchExact, Score: 1}, true
	}

	if ticker, ok := m.aliases[lower]; ok {
		return &TickerMatch{Ticker: ticker, Kind: TickerMatchAlias, Score: 1}, true
	}
	// substring matching only makes sense for names in non-latin scripts
	if !isASCII(trimmed) {
		for _, alias := range m.aliasKeys {
			if strings.Contains(lower, alias) {
				return &TickerMatch{Ticker: m.aliases[alias], Kind: TickerMatchAlias, Score: 1}, true
			}
		}
	}

	return m.fuzzy(trimmed)
}

func (m TickerMatcher) fuzzy(name string) (*TickerMatch, bool) {
	if len(m.names) == 0 {
		return nil, false
	}
	matcher := difflib.NewMatcher(nil, runes(name))

	bestIdx := -1
	bestScore := 0.0
	for i, candidate := range m.names {
		matcher.SetSeq1(runes(candidate))
		if matcher.RealQuickRatio() < FuzzyMatchCutoff || matcher.QuickRatio() < FuzzyMatchCutoff {
			continue
		}
		score := matcher.Ratio()
		if score >= FuzzyMatchCutoff && score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx < 0 {
		return nil, false
	}
	return &TickerMatch{
		Ticker: m.tickers[bestIdx],
		Kind:   TickerMatchFuzzy,
		Score:  bestScore,
	}, true
}

// Resolve maps the candidate by name (primary, then alternate names). A ticker
// observed alongside it in the source articles is only used when no name maps.
func (m TickerMatcher) Resolve(c domain.Candidate) (*TickerMatch, bool) {
	if match, ok := m.Match(c.Name); ok {
		return match, true
	}
	for _, alt := range c.Names {
		if strings.EqualFold(strings.TrimSpace(alt), strings.TrimSpace(c.Name)) {
			continue
		}
		if match, ok := m.Match(alt); ok {
			return match, true
		}
	}
	for _, tk := range c.Tickers {
		if tk = strings.TrimSpace(tk); tk != "" {
			return &TickerMatch{Ticker: strings.ToUpper(tk), Kind: TickerMatchObserved, Score: 1}, true
		}
	}
	return nil, false
}
