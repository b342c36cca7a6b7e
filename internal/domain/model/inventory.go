package model

import (
	"errors"
	"time"
)

// MovementType categorises a stock movement audit record.
type MovementType string

const (
	// MovementTypeSale records stock consumed by a sold order.
	MovementTypeSale MovementType = "sale"
	// MovementTypeReceiving records stock added by a delivery.
	MovementTypeReceiving MovementType = "receiving"
	// MovementTypeAdjustment records a manual correction.
	MovementTypeAdjustment MovementType = "adjustment"
	// MovementTypeWaste records discarded stock.
	MovementTypeWaste MovementType = "waste"
)

// Valid returns true if the MovementType is one of the known set.
func (t MovementType) Valid() bool {
	switch t {
	case MovementTypeSale, MovementTypeReceiving, MovementTypeAdjustment, MovementTypeWaste:
		return true
	default:
		return false
	}
}

// LocationStock is the current stock level for one inventory item at one
// location. It is the only shared mutable row in the core; decrements must be
// atomic per (location, item) pair.
type LocationStock struct {
	LocationID      string    `json:"location_id"       db:"location_id"`
	InventoryItemID string    `json:"inventory_item_id" db:"inventory_item_id"`
	CurrentStock    float64   `json:"current_stock"     db:"current_stock"`
	MinimumStock    float64   `json:"minimum_stock"     db:"minimum_stock"`
	UpdatedAt       time.Time `json:"updated_at"        db:"updated_at"`
}

// BelowMinimum reports whether the current level has reached the low-stock
// threshold.
func (s *LocationStock) BelowMinimum() bool {
	return s.CurrentStock <= s.MinimumStock
}

// StockMovement is an immutable audit record of one inventory quantity
// change. Rows are append-only; for every record
// NewStock == PreviousStock + QuantityDelta.
type StockMovement struct {
	ID              string       `json:"id"                     db:"id"`
	InventoryItemID string       `json:"inventory_item_id"      db:"inventory_item_id"`
	LocationID      string       `json:"location_id"            db:"location_id"`
	MovementType    MovementType `json:"movement_type"          db:"movement_type"`
	QuantityDelta   float64      `json:"quantity_delta"         db:"quantity_delta"`
	PreviousStock   float64      `json:"previous_stock"         db:"previous_stock"`
	NewStock        float64      `json:"new_stock"              db:"new_stock"`
	ReferenceType   string       `json:"reference_type"         db:"reference_type"`
	ReferenceID     string       `json:"reference_id"           db:"reference_id"`
	PerformedBy     *string      `json:"performed_by,omitempty" db:"performed_by"`
	CreatedAt       time.Time    `json:"created_at"             db:"created_at"`
}

// Consistent verifies the audit invariant on the record.
func (m *StockMovement) Consistent() bool {
	return m.NewStock == m.PreviousStock+m.QuantityDelta
}

// LotStatus represents the lifecycle state of an inventory lot.
type LotStatus string

const (
	// LotStatusAvailable indicates the lot still has usable stock.
	LotStatusAvailable LotStatus = "available"
	// LotStatusDepleted indicates the lot's remaining quantity reached zero.
	LotStatusDepleted LotStatus = "depleted"
	// LotStatusExpired indicates the lot's expiry date has passed.
	LotStatusExpired LotStatus = "expired"
)

// InventoryLot is a tracked batch of an inventory item with its own expiry.
type InventoryLot struct {
	ID              string    `json:"id"                db:"id"`
	InventoryItemID string    `json:"inventory_item_id" db:"inventory_item_id"`
	LocationID      string    `json:"location_id"       db:"location_id"`
	ExpiryDate      time.Time `json:"expiry_date"       db:"expiry_date"`
	RemainingQty    float64   `json:"remaining_qty"     db:"remaining_qty"`
	Status          LotStatus `json:"status"            db:"status"`
	CreatedAt       time.Time `json:"created_at"        db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"        db:"updated_at"`
}

// DaysUntilExpiry returns the whole number of days until the lot expires,
// rounding partial days up. Expired lots return zero or a negative count.
func (l *InventoryLot) DaysUntilExpiry(now time.Time) int {
	remaining := l.ExpiryDate.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// RecipeLine maps one ingredient consumed per unit of a menu item sold.
type RecipeLine struct {
	MenuItemID      string  `json:"menu_item_id"      db:"menu_item_id"`
	InventoryItemID string  `json:"inventory_item_id" db:"inventory_item_id"`
	QuantityPerUnit float64 `json:"quantity_per_unit" db:"quantity_per_unit"`
	Position        int     `json:"position"          db:"position"`
}

// ErrInsufficientStock is returned when an atomic decrement would take a
// location's stock below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

// DeductStockParams carries one atomic decrement request.
type DeductStockParams struct {
	LocationID      string
	InventoryItemID string
	Quantity        float64 // positive amount to remove
	ReferenceType   string
	ReferenceID     string
	PerformedBy     *string
}

// Validate checks the decrement request before it reaches the store.
func (p *DeductStockParams) Validate() error {
	if p.LocationID == "" {
		return errors.New("location id is required")
	}
	if p.InventoryItemID == "" {
		return errors.New("inventory item id is required")
	}
	if p.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	return nil
}

// DeductionLineResult reports the outcome for a single order line item.
type DeductionLineResult struct {
	MenuItemID string          `json:"menu_item_id"`
	Quantity   int             `json:"quantity"`
	Skipped    bool            `json:"skipped"` // no recipe configured
	Movements  []StockMovement `json:"movements,omitempty"`
	Errors     []string        `json:"errors,omitempty"`
}

// DeductionResult summarises a whole-order deduction.
type DeductionResult struct {
	OrderID      string                `json:"order_id"`
	LocationID   string                `json:"location_id"`
	Lines        []DeductionLineResult `json:"lines"`
	TouchedItems []string              `json:"touched_items,omitempty"`
}

// Movements flattens every recorded movement across lines.
func (r *DeductionResult) Movements() []StockMovement {
	var out []StockMovement
	for i := range r.Lines {
		out = append(out, r.Lines[i].Movements...)
	}
	return out
}
