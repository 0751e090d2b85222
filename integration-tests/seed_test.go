package integration_tests

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sectorrebalance/internal/db/models/postgres/public/model"
	"sectorrebalance/internal/db/models/postgres/public/table"
	"time"

	"github.com/go-jet/jet/v2/postgres"
	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
)

type sectorRow struct {
	Sector        string `csv:"sector"`
	Weight        string `csv:"weight"`
	AllocationPct string `csv:"allocation_pct"`
}

type summaryRow struct {
	Sector   string  `json:"sector"`
	AvgScore float64 `json:"avg_score"`
}

func seedInputs(dir string) error {
	f, err := os.Create(filepath.Join(dir, "sector_allocations.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	rows := []sectorRow{
		{Sector: "financials", Weight: "1.0", AllocationPct: "40"},
		{Sector: "technology", Weight: "1.0", AllocationPct: "20"},
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return err
	}

	summary, err := json.Marshal([]summaryRow{
		{Sector: "financials", AvgScore: 7},
		{Sector: "technology", AvgScore: 7},
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "sector_summary.json"), summary, 0o644)
}

// seedSnapshot stores a portfolio holding 500 XLF
func seedSnapshot(tx *sql.Tx) (*uuid.UUID, error) {
	snapshot := model.PortfolioSnapshot{}
	err := table.PortfolioSnapshot.
		INSERT(table.PortfolioSnapshot.AllColumns).
		MODEL(model.PortfolioSnapshot{
			PortfolioSnapshotID: uuid.New(),
			Date:                time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			UnallocatedCash:     0,
			CreatedAt:           time.Now().UTC().Add(-time.Hour),
		}).
		RETURNING(table.PortfolioSnapshot.AllColumns).
		Query(tx, &snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	_, err = table.PortfolioPosition.
		INSERT(table.PortfolioPosition.AllColumns).
		MODEL(model.PortfolioPosition{
			PortfolioPositionID: uuid.New(),
			PortfolioSnapshotID: snapshot.PortfolioSnapshotID,
			Ticker:              "XLF",
			Shares:              500,
			SortOrder:           0,
		}).
		Exec(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to insert position: %w", err)
	}

	return &snapshot.PortfolioSnapshotID, nil
}

func cleanupPortfolio(db *sql.DB) error {
	if _, err := table.LatencyTracking.DELETE().WHERE(postgres.Bool(true)).Exec(db); err != nil {
		return err
	}
	if _, err := table.Trade.DELETE().WHERE(postgres.Bool(true)).Exec(db); err != nil {
		return err
	}
	if _, err := table.PortfolioPosition.DELETE().WHERE(postgres.Bool(true)).Exec(db); err != nil {
		return err
	}
	if _, err := table.PortfolioCash.DELETE().WHERE(postgres.Bool(true)).Exec(db); err != nil {
		return err
	}
	if _, err := table.PortfolioSnapshot.DELETE().WHERE(postgres.Bool(true)).Exec(db); err != nil {
		return err
	}
	return nil
}

func hitEndpoint(baseUrl, route string, payload interface{}, target interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, baseUrl+"/"+route, bytes.NewReader(payloadBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	type ErrorResponse struct {
		Error string `json:"error"`
	}
	errResponse := ErrorResponse{}
	if err := json.Unmarshal(responseBody, &errResponse); err != nil {
		return err
	}
	if errResponse.Error != "" || resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed with status %d and response body: %s", resp.StatusCode, string(responseBody))
	}

	return json.Unmarshal(responseBody, target)
}
