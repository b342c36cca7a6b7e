package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ladlehq/ladle/internal/core"
	"github.com/ladlehq/ladle/internal/domain/model"
)

// LotRepo provides database operations for tracked inventory lots.
type LotRepo struct {
	DB           *sql.DB
	timeProvider core.TimeProvider
	logger       *slog.Logger
}

// LotRepoConfig holds configuration options for the lot repository.
type LotRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider core.TimeProvider
}

// NewLotRepo creates a new LotRepo instance.
func NewLotRepo(db *sql.DB, cfg LotRepoConfig) *LotRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = core.RealTimeProvider{}
	}
	return &LotRepo{DB: db, timeProvider: tp, logger: cfg.Logger}
}

const lotColumns = `
  id, inventory_item_id, location_id, expiry_date, remaining_qty,
  status, created_at, updated_at
`

// ListExpiring returns available lots with remaining stock whose expiry falls
// on or before the cutoff. Empty locationID matches all locations.
func (r *LotRepo) ListExpiring(
	ctx context.Context,
	locationID string,
	cutoff time.Time,
) ([]*model.InventoryLot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM inventory_lots
		WHERE status = $1 AND remaining_qty > 0 AND expiry_date <= $2
	`
	args := []any{model.LotStatusAvailable, cutoff}
	if locationID != "" {
		query += ` AND location_id = $3`
		args = append(args, locationID)
	}
	query += ` ORDER BY expiry_date ASC, id ASC`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expiring lots: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var lots []*model.InventoryLot
	for rows.Next() {
		lot := &model.InventoryLot{}
		if err := rows.Scan(
			&lot.ID,
			&lot.InventoryItemID,
			&lot.LocationID,
			&lot.ExpiryDate,
			&lot.RemainingQty,
			&lot.Status,
			&lot.CreatedAt,
			&lot.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lots: %w", err)
	}
	return lots, nil
}

// MarkExpired transitions available lots whose expiry has passed.
func (r *LotRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.DB.ExecContext(ctx, `
		UPDATE inventory_lots
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expiry_date < $2
	`, model.LotStatusExpired, now.UTC(), model.LotStatusAvailable)
	if err != nil {
		return 0, fmt.Errorf("mark lots expired: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if count > 0 && r.logger != nil {
		r.logger.InfoContext(ctx, "expired lots transitioned", "count", count)
	}
	return count, nil
}

// MarkDepleted transitions available lots whose remaining quantity reached
// zero.
func (r *LotRepo) MarkDepleted(ctx context.Context) (int64, error) {
	currentTime := r.timeProvider.Now().UTC()
	result, err := r.DB.ExecContext(ctx, `
		UPDATE inventory_lots
		SET status = $1, updated_at = $2
		WHERE status = $3 AND remaining_qty <= 0
	`, model.LotStatusDepleted, currentTime, model.LotStatusAvailable)
	if err != nil {
		return 0, fmt.Errorf("mark lots depleted: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
