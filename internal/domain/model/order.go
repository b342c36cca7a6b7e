package model

import "time"

// OrderLine is one sold menu item with its quantity, as handed to the core by
// the order pipeline.
type OrderLine struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
}

// OrderSummary is the slice of an accepted order the core needs: enough to
// deduct stock, cut kitchen tickets and announce the order on live displays.
type OrderSummary struct {
	OrderID    string      `json:"order_id"`
	LocationID string      `json:"location_id"`
	TableID    string      `json:"table_id,omitempty"`
	Lines      []OrderLine `json:"lines"`
	Total      float64     `json:"total,omitempty"`
	PlacedAt   time.Time   `json:"placed_at"`
}

// KitchenTicket is the routed unit of kitchen work for one station.
type KitchenTicket struct {
	TicketID   string      `json:"ticket_id"`
	OrderID    string      `json:"order_id"`
	StationID  string      `json:"station_id"`
	TableID    string      `json:"table_id,omitempty"`
	Lines      []OrderLine `json:"lines"`
	Status     string      `json:"status"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// TableStatus values published on table service events.
const (
	TableStatusOccupied = "occupied"
	TableStatusCleared  = "cleared"
	TableStatusReserved = "reserved"
)
