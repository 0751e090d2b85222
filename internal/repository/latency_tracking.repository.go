package repository

import (
	"database/sql"
	"fmt"
	"sectorrebalance/internal/db/models/postgres/public/model"
	"sectorrebalance/internal/db/models/postgres/public/table"
	"sectorrebalance/internal/domain"
	"time"

	"github.com/google/uuid"
)

type latencyTrackingRepositoryHandler struct {
	Db *sql.DB
}

type LatencyTrackingRepository interface {
	Add(profile *domain.Profile, snapshotID *uuid.UUID) error
}

func NewLatencyTrackingRepository(db *sql.DB) LatencyTrackingRepository {
	return latencyTrackingRepositoryHandler{db}
}

func (h latencyTrackingRepositoryHandler) Add(profile *domain.Profile, snapshotID *uuid.UUID) error {
	bytes, err := profile.ToJsonBytes()
	if err != nil {
		return err
	}

	m := model.LatencyTracking{
		PortfolioSnapshotID: snapshotID,
		ProcessingTimes:     string(bytes),
		CreatedAt:           time.Now().UTC(),
	}
	query := table.LatencyTracking.INSERT(table.LatencyTracking.MutableColumns).MODEL(m)

	_, err = query.Exec(h.Db)
	if err != nil {
		return fmt.Errorf("failed to insert latency tracking: %w", err)
	}

	return nil
}
