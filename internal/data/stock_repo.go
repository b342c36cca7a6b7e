package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ladlehq/ladle/internal/core"
	"github.com/ladlehq/ladle/internal/data/pgxutil"
	"github.com/ladlehq/ladle/internal/domain/model"
)

// StockRepo provides database operations for per-location stock levels and
// the append-only stock movement audit trail.
type StockRepo struct {
	DB           *sql.DB
	timeProvider core.TimeProvider
	logger       *slog.Logger
}

// StockRepoConfig holds configuration options for the stock repository.
type StockRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider core.TimeProvider
}

// NewStockRepo creates a new StockRepo instance.
func NewStockRepo(db *sql.DB, cfg StockRepoConfig) *StockRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = core.RealTimeProvider{}
	}
	return &StockRepo{DB: db, timeProvider: tp, logger: cfg.Logger}
}

// DeductStock atomically decrements one (location, item) stock row and
// appends the matching movement record in the same transaction.
//
// The decrement is a single guarded UPDATE so concurrent orders for the same
// ingredient serialize on the row; the current_stock >= 0 CHECK rejects a
// decrement that would cross below zero and surfaces as
// model.ErrInsufficientStock. previous_stock is derived from the returned
// new stock, so new_stock == previous_stock + quantity_delta holds exactly.
func (r *StockRepo) DeductStock(
	ctx context.Context,
	params model.DeductStockParams,
) (*model.StockMovement, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var movement *model.StockMovement
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now().UTC()

			var newStock float64
			err := tx.QueryRow(ctx, `
				UPDATE location_stock
				SET current_stock = current_stock - $3,
				    updated_at = $4
				WHERE location_id = $1 AND inventory_item_id = $2
				RETURNING current_stock
			`, params.LocationID, params.InventoryItemID, params.Quantity, currentTime).Scan(&newStock)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrStockRowNotFound
				}
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
					return model.ErrInsufficientStock
				}
				return fmt.Errorf("decrement stock: %w", err)
			}

			m := &model.StockMovement{
				InventoryItemID: params.InventoryItemID,
				LocationID:      params.LocationID,
				MovementType:    model.MovementTypeSale,
				QuantityDelta:   -params.Quantity,
				PreviousStock:   newStock + params.Quantity,
				NewStock:        newStock,
				ReferenceType:   params.ReferenceType,
				ReferenceID:     params.ReferenceID,
				PerformedBy:     params.PerformedBy,
				CreatedAt:       currentTime,
			}

			err = tx.QueryRow(ctx, `
				INSERT INTO stock_movements(
					inventory_item_id, location_id, movement_type, quantity_delta,
					previous_stock, new_stock, reference_type, reference_id,
					performed_by, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
				RETURNING id
			`,
				m.InventoryItemID, m.LocationID, m.MovementType, m.QuantityDelta,
				m.PreviousStock, m.NewStock, m.ReferenceType, m.ReferenceID,
				m.PerformedBy, m.CreatedAt,
			).Scan(&m.ID)
			if err != nil {
				return fmt.Errorf("append stock movement: %w", err)
			}

			movement = m
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "stock deducted",
			"location_id", movement.LocationID,
			"inventory_item_id", movement.InventoryItemID,
			"quantity", params.Quantity,
			"new_stock", movement.NewStock,
		)
	}
	return movement, nil
}

const locationStockColumns = `
  location_id, inventory_item_id, current_stock, minimum_stock, updated_at
`

// GetLocationStock returns one stock row.
func (r *StockRepo) GetLocationStock(
	ctx context.Context,
	locationID, itemID string,
) (*model.LocationStock, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+locationStockColumns+`
		FROM location_stock
		WHERE location_id = $1 AND inventory_item_id = $2
	`, locationID, itemID)

	ls, err := scanLocationStock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStockRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get location stock: %w", err)
	}
	return ls, nil
}

// ListBelowMinimum returns stock rows at or under their low-stock threshold.
func (r *StockRepo) ListBelowMinimum(
	ctx context.Context,
	locationID string,
) ([]*model.LocationStock, error) {
	query := `
		SELECT ` + locationStockColumns + `
		FROM location_stock
		WHERE current_stock <= minimum_stock
	`
	args := []any{}
	if locationID != "" {
		query += ` AND location_id = $1`
		args = append(args, locationID)
	}
	query += ` ORDER BY location_id, inventory_item_id`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list below minimum: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return collectLocationStock(rows)
}

// ListByItems returns the stock rows for the given items at a location.
func (r *StockRepo) ListByItems(
	ctx context.Context,
	locationID string,
	itemIDs []string,
) ([]*model.LocationStock, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+locationStockColumns+`
		FROM location_stock
		WHERE location_id = $1 AND inventory_item_id = ANY($2)
		ORDER BY inventory_item_id
	`, locationID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("list stock by items: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return collectLocationStock(rows)
}

// ListMovements returns the movement audit records for a location within
// [from, to), newest first.
func (r *StockRepo) ListMovements(
	ctx context.Context,
	locationID string,
	from, to time.Time,
) ([]*model.StockMovement, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, inventory_item_id, location_id, movement_type, quantity_delta,
		       previous_stock, new_stock, reference_type, reference_id,
		       performed_by, created_at
		FROM stock_movements
		WHERE location_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
	`, locationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*model.StockMovement
	for rows.Next() {
		m := &model.StockMovement{}
		if err := rows.Scan(
			&m.ID,
			&m.InventoryItemID,
			&m.LocationID,
			&m.MovementType,
			&m.QuantityDelta,
			&m.PreviousStock,
			&m.NewStock,
			&m.ReferenceType,
			&m.ReferenceID,
			&m.PerformedBy,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock movements: %w", err)
	}
	return out, nil
}

type stockRowScanner interface {
	Scan(dest ...any) error
}

func scanLocationStock(scanner stockRowScanner) (*model.LocationStock, error) {
	ls := &model.LocationStock{}
	if err := scanner.Scan(
		&ls.LocationID,
		&ls.InventoryItemID,
		&ls.CurrentStock,
		&ls.MinimumStock,
		&ls.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return ls, nil
}

func collectLocationStock(rows *sql.Rows) ([]*model.LocationStock, error) {
	var out []*model.LocationStock
	for rows.Next() {
		ls, err := scanLocationStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location stock: %w", err)
		}
		out = append(out, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate location stock: %w", err)
	}
	return out, nil
}
