package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sectorrebalance/internal/domain"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// AllocationInputRepository reads the files produced by the upstream
// sentiment ranking: sector weights, ranked companies per sector and the
// optional sector score summary
type AllocationInputRepository interface {
	GetSectorWeights(allowed domain.MarketSet) ([]domain.SectorWeight, error)
	GetCandidates(sector string) ([]domain.Candidate, error)
	GetCandidatesBySector(sectors []string) (map[string][]domain.Candidate, error)
	GetSectorScores() (map[string]float64, error)
}

type allocationInputRepositoryHandler struct {
	Dir string
}

func NewAllocationInputRepository(dir string) AllocationInputRepository {
	return allocationInputRepositoryHandler{Dir: dir}
}

type sectorWeightRow struct {
	Sector        string `csv:"sector"`
	Weight        string `csv:"weight"`
	AllocationPct string `csv:"allocation_pct"`
}

func (h allocationInputRepositoryHandler) sectorWeightsPath(allowed domain.MarketSet) string {
	path := filepath.Join(h.Dir, "sector_allocations.csv")
	if len(allowed) != 1 {
		return path
	}
	for m := range allowed {
		marketPath := filepath.Join(h.Dir, fmt.Sprintf("sector_allocations_%s.csv", m))
		if _, err := os.Stat(marketPath); err == nil {
			return marketPath
		}
	}
	return path
}

// GetSectorWeights returns nothing for a missing file. rows keep file order;
// a pct that does not parse is 0
func (h allocationInputRepositoryHandler) GetSectorWeights(allowed domain.MarketSet) ([]domain.SectorWeight, error) {
	path := h.sectorWeightsPath(allowed)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.SectorWeight{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to open sector weights %s: %w", path, err)
	}
	defer f.Close()

	rows := []sectorWeightRow{}
	err = gocsv.UnmarshalFile(f, &rows)
	if errors.Is(err, gocsv.ErrEmptyCSVFile) {
		return []domain.SectorWeight{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to parse sector weights %s: %w", path, err)
	}

	return sectorWeightsFromRows(rows), nil
}

func sectorWeightsFromRows(rows []sectorWeightRow) []domain.SectorWeight {
	out := []domain.SectorWeight{}
	index := map[string]int{}
	for _, row := range rows {
		sector := strings.TrimSpace(row.Sector)
		if sector == "" {
			continue
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(row.AllocationPct), 64)
		if err != nil {
			pct = 0
		}
		// later rows win but the sector keeps its first position
		if i, ok := index[sector]; ok {
			out[i].Pct = pct
			continue
		}
		index[sector] = len(out)
		out = append(out, domain.SectorWeight{Sector: sector, Pct: pct})
	}
	return out
}

func CandidatesFileName(sector string) string {
	return fmt.Sprintf("company_rank_%s.json", strings.ReplaceAll(sector, " ", "_"))
}

type rankedCandidateInfo struct {
	AvgScore float64  `json:"avg_score"`
	Pos      int      `json:"pos"`
	Neg      int      `json:"neg"`
	Neutral  int      `json:"neutral"`
	Count    int      `json:"count"`
	Tickers  []string `json:"tickers"`
	Names    []string `json:"names"`
}

type rankedCandidatesFile struct {
	Sector string              `json:"sector"`
	Ranked [][]json.RawMessage `json:"ranked"`
}

func ParseCandidates(data []byte) ([]domain.Candidate, error) {
	file := rankedCandidatesFile{}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	out := []domain.Candidate{}
	for i, pair := range file.Ranked {
		if len(pair) < 2 {
			return nil, fmt.Errorf("ranked[%d] must be a [name, info] pair", i)
		}
		var name string
		if err := json.Unmarshal(pair[0], &name); err != nil {
			return nil, fmt.Errorf("ranked[%d] name: %w", i, err)
		}
		info := rankedCandidateInfo{}
		if err := json.Unmarshal(pair[1], &info); err != nil {
			return nil, fmt.Errorf("ranked[%d] info: %w", i, err)
		}
		out = append(out, domain.Candidate{
			Name:     name,
			Tickers:  info.Tickers,
			Names:    info.Names,
			AvgScore: info.AvgScore,
			Positive: info.Pos,
			Negative: info.Neg,
			Neutral:  info.Neutral,
			Count:    info.Count,
		})
	}
	return out, nil
}

// GetCandidates returns nothing when the sector has no ranking file
func (h allocationInputRepositoryHandler) GetCandidates(sector string) ([]domain.Candidate, error) {
	path := filepath.Join(h.Dir, CandidatesFileName(sector))
	f, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Candidate{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read candidates %s: %w", path, err)
	}

	candidates, err := ParseCandidates(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse candidates %s: %w", path, err)
	}
	return candidates, nil
}

func (h allocationInputRepositoryHandler) GetCandidatesBySector(sectors []string) (map[string][]domain.Candidate, error) {
	out := map[string][]domain.Candidate{}
	for _, sector := range sectors {
		candidates, err := h.GetCandidates(sector)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			out[sector] = candidates
		}
	}
	return out, nil
}

type sectorSummaryRow struct {
	Sector   string   `json:"sector"`
	AvgScore *float64 `json:"avg_score"`
}

// GetSectorScores reads sector_summary.json. a missing file is an empty map
func (h allocationInputRepositoryHandler) GetSectorScores() (map[string]float64, error) {
	path := filepath.Join(h.Dir, "sector_summary.json")
	f, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]float64{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read sector summary %s: %w", path, err)
	}

	rows := []sectorSummaryRow{}
	if err := json.Unmarshal(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse sector summary %s: %w", path, err)
	}

	out := map[string]float64{}
	for _, row := range rows {
		sector := strings.TrimSpace(row.Sector)
		if sector == "" {
			continue
		}
		score := 0.0
		if row.AvgScore != nil {
			score = *row.AvgScore
		}
		out[sector] = score
	}
	return out, nil
}

// LoadPriceOverrides reads a ticker -> price JSON object. prices may be
// numbers or strings
func LoadPriceOverrides(path string) (map[string]decimal.Decimal, error) {
	if path == "" {
		return map[string]decimal.Decimal{}, nil
	}
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read price overrides %s: %w", path, err)
	}

	raw := map[string]decimal.Decimal{}
	if err := json.Unmarshal(f, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse price overrides %s: %w", path, err)
	}

	out := map[string]decimal.Decimal{}
	for ticker, price := range raw {
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if ticker == "" || !price.IsPositive() {
			continue
		}
		out[ticker] = price
	}
	return out, nil
}
