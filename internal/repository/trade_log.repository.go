package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sectorrebalance/internal/domain"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
)

type TradeLogPaths struct {
	TradesCsv       string
	DistributionCsv string
	BatchJson       string
}

// TradeLogRepository exports a finished rebalance for humans and
// spreadsheets. files are named by run date and overwritten on re-runs
type TradeLogRepository interface {
	Export(date time.Time, batch domain.TradeBatch) (*TradeLogPaths, error)
}

type tradeLogRepositoryHandler struct {
	Dir string
}

func NewTradeLogRepository(dir string) TradeLogRepository {
	return tradeLogRepositoryHandler{Dir: dir}
}

type tradeLogRow struct {
	Datetime string `csv:"datetime"`
	Ticker   string `csv:"ticker"`
	Action   string `csv:"action"`
	Shares   string `csv:"shares"`
	Price    string `csv:"price"`
	Amount   string `csv:"amount"`
}

type distributionRow struct {
	Ticker string `csv:"ticker"`
	Shares string `csv:"shares"`
	Price  string `csv:"price"`
	Value  string `csv:"value"`
	Pct    string `csv:"pct"`
}

func tradeLogRows(trades []domain.Trade) []*tradeLogRow {
	rows := []*tradeLogRow{}
	for _, t := range trades {
		rows = append(rows, &tradeLogRow{
			Datetime: t.Datetime.UTC().Format(time.RFC3339),
			Ticker:   t.Ticker,
			Action:   string(t.Action),
			Shares:   strconv.FormatInt(t.Shares, 10),
			Price:    t.Price.StringFixed(4),
			Amount:   t.Amount.StringFixed(2),
		})
	}
	return rows
}

func distributionRows(entries []domain.DistributionEntry) []*distributionRow {
	rows := []*distributionRow{}
	for _, e := range entries {
		rows = append(rows, &distributionRow{
			Ticker: e.Ticker,
			Shares: strconv.FormatInt(e.Shares, 10),
			Price:  e.Price.StringFixed(4),
			Value:  e.Value.StringFixed(2),
			Pct:    strconv.FormatFloat(e.Pct, 'f', 2, 64),
		})
	}
	return rows
}

func writeCsv(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(rows, f)
}

func (h tradeLogRepositoryHandler) Export(date time.Time, batch domain.TradeBatch) (*TradeLogPaths, error) {
	if err := os.MkdirAll(h.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trade log dir: %w", err)
	}

	day := date.Format(time.DateOnly)
	paths := TradeLogPaths{
		TradesCsv:       filepath.Join(h.Dir, fmt.Sprintf("trades_%s.csv", day)),
		DistributionCsv: filepath.Join(h.Dir, fmt.Sprintf("distribution_%s.csv", day)),
		BatchJson:       filepath.Join(h.Dir, fmt.Sprintf("trades_%s.json", day)),
	}

	trades := tradeLogRows(batch.Trades)
	if err := writeCsv(paths.TradesCsv, &trades); err != nil {
		return nil, fmt.Errorf("failed to write trade log: %w", err)
	}

	distribution := distributionRows(batch.Distribution)
	if err := writeCsv(paths.DistributionCsv, &distribution); err != nil {
		return nil, fmt.Errorf("failed to write distribution: %w", err)
	}

	bytes, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trade batch: %w", err)
	}
	if err := os.WriteFile(paths.BatchJson, bytes, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write trade batch: %w", err)
	}

	return &paths, nil
}
