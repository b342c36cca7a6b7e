package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocationStockBelowMinimum(t *testing.T) {
	stock := LocationStock{CurrentStock: 200, MinimumStock: 200}
	assert.True(t, stock.BelowMinimum(), "reaching the threshold counts")

	stock.CurrentStock = 200.5
	assert.False(t, stock.BelowMinimum())

	stock.CurrentStock = 0
	assert.True(t, stock.BelowMinimum())
}

func TestStockMovementConsistent(t *testing.T) {
	m := StockMovement{PreviousStock: 1000, QuantityDelta: -450, NewStock: 550}
	assert.True(t, m.Consistent())

	m.NewStock = 500
	assert.False(t, m.Consistent())
}

func TestDaysUntilExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"partial days round up", now.Add(60 * time.Hour), 3},
		{"exact days stay exact", now.Add(48 * time.Hour), 2},
		{"under a day is one", now.Add(time.Hour), 1},
		{"expiring this instant", now, 0},
		{"already expired", now.Add(-30 * time.Hour), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lot := InventoryLot{ExpiryDate: tt.expiry}
			assert.Equal(t, tt.want, lot.DaysUntilExpiry(now))
		})
	}
}

func TestDeductStockParamsValidate(t *testing.T) {
	valid := DeductStockParams{
		LocationID:      "loc-1",
		InventoryItemID: "flour",
		Quantity:        450,
	}
	assert.NoError(t, valid.Validate())

	missingLoc := valid
	missingLoc.LocationID = ""
	assert.Error(t, missingLoc.Validate())

	missingItem := valid
	missingItem.InventoryItemID = ""
	assert.Error(t, missingItem.Validate())

	zeroQty := valid
	zeroQty.Quantity = 0
	assert.Error(t, zeroQty.Validate())
}

func TestDeductionResultMovements(t *testing.T) {
	r := DeductionResult{
		Lines: []DeductionLineResult{
			{Movements: []StockMovement{{ID: "m-1"}, {ID: "m-2"}}},
			{Skipped: true},
			{Movements: []StockMovement{{ID: "m-3"}}},
		},
	}
	movements := r.Movements()
	assert.Len(t, movements, 3)
	assert.Equal(t, "m-3", movements[2].ID)
}

func TestMovementTypeValid(t *testing.T) {
	for _, mt := range []MovementType{
		MovementTypeSale, MovementTypeReceiving, MovementTypeAdjustment, MovementTypeWaste,
	} {
		assert.True(t, mt.Valid(), "type %s", mt)
	}
	assert.False(t, MovementType("theft").Valid())
}
