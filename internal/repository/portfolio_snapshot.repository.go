package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"sectorrebalance/internal/db/models/postgres/public/model"
	"sectorrebalance/internal/db/models/postgres/public/table"
	"sectorrebalance/internal/domain"

	"github.com/go-jet/jet/v2/postgres"
	"github.com/go-jet/jet/v2/qrm"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PortfolioSnapshotRepository interface {
	Add(tx *sql.Tx, state domain.PortfolioState, portfolioValue *decimal.Decimal) (*uuid.UUID, error)
	Get(id uuid.UUID) (*domain.PortfolioState, error)
	// GetLatest returns nil when nothing has been stored yet
	GetLatest() (*domain.PortfolioState, *uuid.UUID, error)
}

type portfolioSnapshotRepositoryHandler struct {
	Db *sql.DB
}

func NewPortfolioSnapshotRepository(db *sql.DB) PortfolioSnapshotRepository {
	return portfolioSnapshotRepositoryHandler{Db: db}
}

func (h portfolioSnapshotRepositoryHandler) Add(tx *sql.Tx, state domain.PortfolioState, portfolioValue *decimal.Decimal) (*uuid.UUID, error) {
	var db qrm.DB = h.Db
	if tx != nil {
		db = tx
	}

	snapshot := model.PortfolioSnapshot{
		PortfolioSnapshotID: uuid.New(),
		Date:                state.Date,
		UnallocatedCash:     state.UnallocatedCash.InexactFloat64(),
		CreatedAt:           time.Now().UTC(),
	}
	if portfolioValue != nil {
		v := portfolioValue.InexactFloat64()
		snapshot.PortfolioValue = &v
	}

	query := table.PortfolioSnapshot.
		INSERT(table.PortfolioSnapshot.AllColumns).
		MODEL(snapshot).
		RETURNING(table.PortfolioSnapshot.AllColumns)

	out := model.PortfolioSnapshot{}
	if err := query.Query(db, &out); err != nil {
		return nil, fmt.Errorf("failed to insert portfolio snapshot: %w", err)
	}

	if len(state.CashByMarket) > 0 {
		cashModels := []model.PortfolioCash{}
		for _, m := range domain.AllMarkets {
			amount, ok := state.CashByMarket[m]
			if !ok {
				continue
			}
			cashModels = append(cashModels, model.PortfolioCash{
				PortfolioCashID:     uuid.New(),
				PortfolioSnapshotID: out.PortfolioSnapshotID,
				Market:              string(m),
				Amount:              amount.InexactFloat64(),
			})
		}
		cashQuery := table.PortfolioCash.
			INSERT(table.PortfolioCash.AllColumns).
			MODELS(cashModels)
		if _, err := cashQuery.Exec(db); err != nil {
			return nil, fmt.Errorf("failed to insert portfolio cash: %w", err)
		}
	}

	if len(state.Positions) > 0 {
		positionModels := []model.PortfolioPosition{}
		for i, p := range state.Positions {
			positionModels = append(positionModels, model.PortfolioPosition{
				PortfolioPositionID: uuid.New(),
				PortfolioSnapshotID: out.PortfolioSnapshotID,
				Ticker:              p.Ticker,
				Shares:              p.Shares,
				SortOrder:           int32(i),
			})
		}
		positionQuery := table.PortfolioPosition.
			INSERT(table.PortfolioPosition.AllColumns).
			MODELS(positionModels)
		if _, err := positionQuery.Exec(db); err != nil {
			return nil, fmt.Errorf("failed to insert portfolio positions: %w", err)
		}
	}

	return &out.PortfolioSnapshotID, nil
}

type portfolioSnapshotResult struct {
	model.PortfolioSnapshot
	Cash      []model.PortfolioCash
	Positions []model.PortfolioPosition
}

func snapshotQuery() postgres.SelectStatement {
	return table.PortfolioSnapshot.
		LEFT_JOIN(table.PortfolioCash, table.PortfolioCash.PortfolioSnapshotID.EQ(table.PortfolioSnapshot.PortfolioSnapshotID)).
		LEFT_JOIN(table.PortfolioPosition, table.PortfolioPosition.PortfolioSnapshotID.EQ(table.PortfolioSnapshot.PortfolioSnapshotID)).
		SELECT(
			table.PortfolioSnapshot.AllColumns,
			table.PortfolioCash.AllColumns,
			table.PortfolioPosition.AllColumns,
		)
}

func (r portfolioSnapshotResult) toDomain() *domain.PortfolioState {
	state := domain.NewPortfolioState(r.Date)
	state.UnallocatedCash = decimal.NewFromFloat(r.UnallocatedCash)
	for _, c := range r.Cash {
		m, err := domain.ParseMarket(c.Market)
		if err != nil {
			continue
		}
		state.CashByMarket[m] = decimal.NewFromFloat(c.Amount)
	}

	positions := make([]model.PortfolioPosition, len(r.Positions))
	copy(positions, r.Positions)
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].SortOrder < positions[j].SortOrder
	})
	for _, p := range positions {
		state.Positions = append(state.Positions, domain.Position{
			Ticker: p.Ticker,
			Shares: p.Shares,
		})
	}
	return state
}

func (h portfolioSnapshotRepositoryHandler) Get(id uuid.UUID) (*domain.PortfolioState, error) {
	query := snapshotQuery().
		WHERE(table.PortfolioSnapshot.PortfolioSnapshotID.EQ(postgres.UUID(id)))

	result := portfolioSnapshotResult{}
	err := query.Query(h.Db, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio snapshot %s: %w", id.String(), err)
	}

	return result.toDomain(), nil
}

func (h portfolioSnapshotRepositoryHandler) GetLatest() (*domain.PortfolioState, *uuid.UUID, error) {
	latestQuery := table.PortfolioSnapshot.
		SELECT(table.PortfolioSnapshot.PortfolioSnapshotID).
		ORDER_BY(table.PortfolioSnapshot.CreatedAt.DESC()).
		LIMIT(1)

	latest := model.PortfolioSnapshot{}
	err := latestQuery.Query(h.Db, &latest)
	if errors.Is(err, qrm.ErrNoRows) {
		return nil, nil, nil
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest portfolio snapshot: %w", err)
	}

	state, err := h.Get(latest.PortfolioSnapshotID)
	if err != nil {
		return nil, nil, err
	}
	return state, &latest.PortfolioSnapshotID, nil
}
