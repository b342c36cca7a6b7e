package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ladlehq/ladle/internal/core"
	"github.com/ladlehq/ladle/internal/data"
	"github.com/ladlehq/ladle/internal/domain/model"
	"github.com/ladlehq/ladle/internal/hub"
)

// ReferenceTypeOrder tags stock movements produced by order deductions.
const ReferenceTypeOrder = "order"

// DeductionServiceOptions groups dependencies for DeductionService.
type DeductionServiceOptions struct {
	Stock   core.StockRepository  // Required: stock store
	Recipes core.RecipeRepository // Required: recipe resolution
	Events  core.EventPublisher   // Optional: low-stock broadcasts
	Logger  *slog.Logger          // Optional: structured logger
}

// DeductionService converts sold order lines into atomic per-ingredient stock
// decrements with a movement audit record for each.
//
// Serialization granularity is the (location, ingredient) row: two orders
// consuming the same ingredient serialize on its stock row, nothing wider.
// There is no multi-ingredient transaction across an order; each decrement
// commits or fails on its own.
type DeductionService struct {
	stock   core.StockRepository
	recipes core.RecipeRepository
	events  core.EventPublisher
	logger  *slog.Logger
}

// NewDeductionService constructs a new DeductionService.
func NewDeductionService(opts DeductionServiceOptions) (*DeductionService, error) {
	if opts.Stock == nil {
		return nil, errors.New("StockRepository is required")
	}
	if opts.Recipes == nil {
		return nil, errors.New("RecipeRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "deduction_service")
	}

	return &DeductionService{
		stock:   opts.Stock,
		recipes: opts.Recipes,
		events:  opts.Events,
		logger:  logger,
	}, nil
}

// Deduct applies the inventory impact of a sold order.
//
// Menu items without a recipe are skipped and reported as such; the order
// still succeeds for every resolvable line. An ingredient whose stock cannot
// cover the decrement records an error on its line and the remaining
// ingredients still apply. After all lines, every touched ingredient is
// checked against its low-stock threshold and breaches are broadcast to the
// location room.
func (s *DeductionService) Deduct(
	ctx context.Context,
	orderID, locationID string,
	lines []model.OrderLine,
) (*model.DeductionResult, error) {
	if orderID == "" {
		return nil, errors.New("order id is required")
	}
	if locationID == "" {
		return nil, errors.New("location id is required")
	}

	result := &model.DeductionResult{
		OrderID:    orderID,
		LocationID: locationID,
	}
	touched := make(map[string]struct{})

	for _, line := range lines {
		lineResult, err := s.deductLine(ctx, orderID, locationID, line, touched)
		if err != nil {
			return nil, err
		}
		result.Lines = append(result.Lines, lineResult)
	}

	for itemID := range touched {
		result.TouchedItems = append(result.TouchedItems, itemID)
	}

	s.publishLowStock(ctx, locationID, result.TouchedItems)

	return result, nil
}

func (s *DeductionService) deductLine(
	ctx context.Context,
	orderID, locationID string,
	line model.OrderLine,
	touched map[string]struct{},
) (model.DeductionLineResult, error) {
	lineResult := model.DeductionLineResult{
		MenuItemID: line.MenuItemID,
		Quantity:   line.Quantity,
	}

	if line.Quantity <= 0 {
		lineResult.Errors = append(lineResult.Errors, "quantity must be positive")
		return lineResult, nil
	}

	recipeLines, err := s.recipes.LinesForMenuItem(ctx, line.MenuItemID)
	if err != nil {
		return lineResult, fmt.Errorf("resolve recipe for %s: %w", line.MenuItemID, err)
	}
	if len(recipeLines) == 0 {
		lineResult.Skipped = true
		if s.logger != nil {
			s.logger.InfoContext(ctx, "no recipe configured, skipping deduction",
				"order_id", orderID,
				"menu_item_id", line.MenuItemID,
			)
		}
		return lineResult, nil
	}

	for _, recipeLine := range recipeLines {
		deductQty := recipeLine.QuantityPerUnit * float64(line.Quantity)
		movement, err := s.stock.DeductStock(ctx, model.DeductStockParams{
			LocationID:      locationID,
			InventoryItemID: recipeLine.InventoryItemID,
			Quantity:        deductQty,
			ReferenceType:   ReferenceTypeOrder,
			ReferenceID:     orderID,
		})
		switch {
		case errors.Is(err, model.ErrInsufficientStock), errors.Is(err, data.ErrStockRowNotFound):
			lineResult.Errors = append(lineResult.Errors,
				fmt.Sprintf("ingredient %s: %v", recipeLine.InventoryItemID, err))
			if s.logger != nil {
				s.logger.WarnContext(ctx, "stock deduction rejected",
					"order_id", orderID,
					"location_id", locationID,
					"inventory_item_id", recipeLine.InventoryItemID,
					"quantity", deductQty,
					"error", err,
				)
			}
		case err != nil:
			return lineResult, fmt.Errorf(
				"deduct ingredient %s: %w", recipeLine.InventoryItemID, err)
		default:
			lineResult.Movements = append(lineResult.Movements, *movement)
			touched[recipeLine.InventoryItemID] = struct{}{}
		}
	}

	return lineResult, nil
}

// publishLowStock broadcasts a low-stock event for each touched ingredient at
// or under its threshold. Broadcast failures never fail the deduction.
func (s *DeductionService) publishLowStock(ctx context.Context, locationID string, itemIDs []string) {
	if s.events == nil || len(itemIDs) == 0 {
		return
	}

	stocks, err := s.stock.ListByItems(ctx, locationID, itemIDs)
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "low stock check failed",
				"location_id", locationID,
				"error", err,
			)
		}
		return
	}

	for _, ls := range stocks {
		if !ls.BelowMinimum() {
			continue
		}
		s.events.Publish(hub.LocationRoom(locationID), hub.EventInventoryLowStock, hub.LowStockPayload{
			LocationID:      ls.LocationID,
			InventoryItemID: ls.InventoryItemID,
			CurrentStock:    ls.CurrentStock,
			MinimumStock:    ls.MinimumStock,
		})
		if s.logger != nil {
			s.logger.WarnContext(ctx, "ingredient at or below minimum stock",
				"location_id", ls.LocationID,
				"inventory_item_id", ls.InventoryItemID,
				"current_stock", ls.CurrentStock,
				"minimum_stock", ls.MinimumStock,
			)
		}
	}
}
