package repository

import (
	"database/sql"
	"fmt"
	"time"

	"sectorrebalance/internal/db/models/postgres/public/model"
	"sectorrebalance/internal/db/models/postgres/public/table"
	"sectorrebalance/internal/domain"

	"github.com/go-jet/jet/v2/postgres"
	"github.com/go-jet/jet/v2/qrm"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TradeRepository interface {
	AddMany(tx *sql.Tx, snapshotID *uuid.UUID, trades []domain.Trade) ([]model.Trade, error)
	List(filter TradeListFilter) ([]domain.Trade, error)
}

type tradeRepositoryHandler struct {
	Db *sql.DB
}

func NewTradeRepository(db *sql.DB) TradeRepository {
	return tradeRepositoryHandler{Db: db}
}

func tradeToModel(t domain.Trade, snapshotID *uuid.UUID) model.Trade {
	action := model.TradeAction_Buy
	if t.Action == domain.TradeActionSell {
		action = model.TradeAction_Sell
	}
	id := t.TradeID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return model.Trade{
		TradeID:             id,
		PortfolioSnapshotID: snapshotID,
		Datetime:            t.Datetime,
		Ticker:              t.Ticker,
		Market:              string(t.Market),
		Action:              action,
		Shares:              t.Shares,
		Price:               t.Price.InexactFloat64(),
		Amount:              t.Amount.InexactFloat64(),
		Reason:              string(t.Reason),
		CreatedAt:           time.Now().UTC(),
	}
}

func tradeFromModel(m model.Trade) domain.Trade {
	return domain.Trade{
		TradeID:  m.TradeID,
		Datetime: m.Datetime,
		Ticker:   m.Ticker,
		Market:   domain.Market(m.Market),
		Action:   domain.TradeAction(m.Action.String()),
		Shares:   m.Shares,
		Price:    decimal.NewFromFloat(m.Price),
		Amount:   decimal.NewFromFloat(m.Amount),
		Reason:   domain.TradeReason(m.Reason),
	}
}

func (h tradeRepositoryHandler) AddMany(tx *sql.Tx, snapshotID *uuid.UUID, trades []domain.Trade) ([]model.Trade, error) {
	if len(trades) == 0 {
		return []model.Trade{}, nil
	}

	var db qrm.Queryable = h.Db
	if tx != nil {
		db = tx
	}

	models := []model.Trade{}
	for _, t := range trades {
		models = append(models, tradeToModel(t, snapshotID))
	}

	query := table.Trade.
		INSERT(table.Trade.AllColumns).
		MODELS(models).
		RETURNING(table.Trade.AllColumns)

	out := []model.Trade{}
	err := query.Query(db, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to insert trades: %w", err)
	}

	return out, nil
}

type TradeListFilter struct {
	PortfolioSnapshotID *uuid.UUID
	Ticker              *string
	Since               *time.Time
}

func (h tradeRepositoryHandler) List(listFilter TradeListFilter) ([]domain.Trade, error) {
	query := table.Trade.SELECT(table.Trade.AllColumns)

	whereClauses := []postgres.BoolExpression{}
	if listFilter.PortfolioSnapshotID != nil {
		whereClauses = append(whereClauses,
			table.Trade.PortfolioSnapshotID.EQ(postgres.UUID(listFilter.PortfolioSnapshotID)),
		)
	}
	if listFilter.Ticker != nil {
		whereClauses = append(whereClauses,
			table.Trade.Ticker.EQ(postgres.String(*listFilter.Ticker)),
		)
	}
	if listFilter.Since != nil {
		whereClauses = append(whereClauses,
			table.Trade.Datetime.GT_EQ(postgres.TimestampT(*listFilter.Since)),
		)
	}
	if len(whereClauses) > 0 {
		query = query.WHERE(postgres.AND(whereClauses...))
	}
	query = query.ORDER_BY(table.Trade.Datetime.ASC(), table.Trade.Ticker.ASC())

	result := []model.Trade{}
	err := query.Query(h.Db, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}

	out := []domain.Trade{}
	for _, m := range result {
		out = append(out, tradeFromModel(m))
	}
	return out, nil
}
