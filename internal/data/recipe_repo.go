package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ladlehq/ladle/internal/domain/model"
)

// RecipeRepo provides read access to recipe lines.
type RecipeRepo struct {
	DB     *sql.DB
	logger *slog.Logger
}

// RecipeRepoConfig holds configuration options for the recipe repository.
type RecipeRepoConfig struct {
	Logger *slog.Logger
}

// NewRecipeRepo creates a new RecipeRepo instance.
func NewRecipeRepo(db *sql.DB, cfg RecipeRepoConfig) *RecipeRepo {
	return &RecipeRepo{DB: db, logger: cfg.Logger}
}

// LinesForMenuItem returns the ordered recipe lines for a menu item. A menu
// item without a recipe yields an empty slice, not an error.
func (r *RecipeRepo) LinesForMenuItem(
	ctx context.Context,
	menuItemID string,
) ([]model.RecipeLine, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT menu_item_id, inventory_item_id, quantity_per_unit, position
		FROM recipe_lines
		WHERE menu_item_id = $1
		ORDER BY position
	`, menuItemID)
	if err != nil {
		return nil, fmt.Errorf("query recipe lines: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var lines []model.RecipeLine
	for rows.Next() {
		var line model.RecipeLine
		if err := rows.Scan(
			&line.MenuItemID,
			&line.InventoryItemID,
			&line.QuantityPerUnit,
			&line.Position,
		); err != nil {
			return nil, fmt.Errorf("scan recipe line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipe lines: %w", err)
	}
	return lines, nil
}
