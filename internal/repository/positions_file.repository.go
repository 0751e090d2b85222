package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sectorrebalance/internal/domain"
	"sectorrebalance/internal/util"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PositionsFileRepository reads and writes the portfolio snapshot kept in a
// single JSON file
type PositionsFileRepository interface {
	Get() (*domain.PortfolioState, error)
	Save(state domain.PortfolioState) error
}

type positionsFileRepositoryHandler struct {
	Path string
	now  func() time.Time
}

func NewPositionsFileRepository(path string) PositionsFileRepository {
	return positionsFileRepositoryHandler{
		Path: path,
		now:  time.Now,
	}
}

type positionRow struct {
	Ticker string  `json:"ticker"`
	Shares float64 `json:"shares"`
}

type positionsFile struct {
	Date         string                            `json:"date"`
	CashByMarket map[domain.Market]decimal.Decimal `json:"cash_by_market,omitempty"`
	Cash         *decimal.Decimal                  `json:"cash,omitempty"`
	Positions    []positionRow                     `json:"positions"`
}

// Get accepts every shape the file has been written in: positions as a
// list of {ticker, shares}, as a ticker -> shares object, or as bare
// ticker -> shares pairs at the top level. a missing file is an empty
// portfolio
func (h positionsFileRepositoryHandler) Get() (*domain.PortfolioState, error) {
	today := util.Today(h.now())

	f, err := os.ReadFile(h.Path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.NewPortfolioState(today), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read positions file %s: %w", h.Path, err)
	}

	state, err := ParsePositions(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse positions file %s: %w", h.Path, err)
	}
	if state.Date.IsZero() {
		state.Date = today
	}
	return state, nil
}

var reservedPositionKeys = map[string]bool{
	"date":           true,
	"cash":           true,
	"cash_by_market": true,
	"cashByMarket":   true,
	"positions":      true,
}

func ParsePositions(data []byte) (*domain.PortfolioState, error) {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	state := domain.NewPortfolioState(time.Time{})

	if d, ok := raw["date"]; ok {
		var s string
		if err := json.Unmarshal(d, &s); err == nil {
			date, err := util.ParseDate(s)
			if err != nil {
				return nil, fmt.Errorf("invalid date: %w", err)
			}
			state.Date = date
		}
	}

	if c, ok := raw["cash"]; ok && string(c) != "null" {
		if err := json.Unmarshal(c, &state.UnallocatedCash); err != nil {
			return nil, fmt.Errorf("invalid cash: %w", err)
		}
		if state.UnallocatedCash.IsNegative() {
			return nil, fmt.Errorf("invalid cash: must be non-negative")
		}
	}

	for _, key := range []string{"cash_by_market", "cashByMarket"} {
		c, ok := raw[key]
		if !ok || string(c) == "null" {
			continue
		}
		byMarket := map[string]decimal.Decimal{}
		if err := json.Unmarshal(c, &byMarket); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		for m, amount := range byMarket {
			market, err := domain.ParseMarket(m)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			if amount.IsNegative() {
				return nil, fmt.Errorf("invalid %s: %s cash is negative", key, market)
			}
			state.CashByMarket[market] = amount
		}
	}

	if p, ok := raw["positions"]; ok && string(p) != "null" {
		rows := []positionRow{}
		if err := json.Unmarshal(p, &rows); err == nil {
			for _, row := range rows {
				if err := addPosition(state, row.Ticker, row.Shares); err != nil {
					return nil, err
				}
			}
		} else {
			byTicker := map[string]float64{}
			if err := json.Unmarshal(p, &byTicker); err != nil {
				return nil, fmt.Errorf("positions must be a list or an object of shares")
			}
			for _, ticker := range domain.SortedTickers(byTicker) {
				if err := addPosition(state, ticker, byTicker[ticker]); err != nil {
					return nil, err
				}
			}
		}
		return state, nil
	}

	// flat layout: every numeric top-level key is a ticker
	flat := map[string]float64{}
	for key, value := range raw {
		if reservedPositionKeys[key] {
			continue
		}
		var shares float64
		if err := json.Unmarshal(value, &shares); err != nil {
			continue
		}
		flat[key] = shares
	}
	for _, ticker := range domain.SortedTickers(flat) {
		if err := addPosition(state, ticker, flat[ticker]); err != nil {
			return nil, err
		}
	}

	return state, nil
}

var ErrInvalidShares = errors.New("shares must be a non-negative whole number")

func addPosition(state *domain.PortfolioState, ticker string, shares float64) error {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil
	}
	if shares < 0 || shares != math.Trunc(shares) || math.IsInf(shares, 0) {
		return fmt.Errorf("invalid position %s (%v): %w", ticker, shares, ErrInvalidShares)
	}
	state.Positions = append(state.Positions, domain.Position{
		Ticker: ticker,
		Shares: int64(shares),
	})
	return nil
}

func (h positionsFileRepositoryHandler) Save(state domain.PortfolioState) error {
	out := positionsFile{
		Date:         state.Date.Format(time.DateOnly),
		CashByMarket: map[domain.Market]decimal.Decimal{},
		Positions:    []positionRow{},
	}
	for m, c := range state.CashByMarket {
		out.CashByMarket[m] = c.Round(2)
	}
	if !state.UnallocatedCash.IsZero() {
		cash := state.UnallocatedCash.Round(2)
		out.Cash = &cash
	}
	for _, p := range state.Positions {
		out.Positions = append(out.Positions, positionRow{
			Ticker: p.Ticker,
			Shares: float64(p.Shares),
		})
	}

	bytes, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal positions: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(h.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create positions dir: %w", err)
	}

	// write then rename so readers never see a partial file
	tmp := h.Path + ".tmp"
	if err := os.WriteFile(tmp, bytes, 0o644); err != nil {
		return fmt.Errorf("failed to write positions file: %w", err)
	}
	if err := os.Rename(tmp, h.Path); err != nil {
		return fmt.Errorf("failed to replace positions file: %w", err)
	}
	return nil
}
