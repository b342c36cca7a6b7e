package hub

// Event names published into the hub, grouped by producer.
const (
	// Order pipeline → location room.
	EventOrderCreated = "order:created"

	// Kitchen routing and kitchen actions → kitchen-station room.
	EventKitchenNewOrder     = "kitchen:new-order"
	EventKitchenOrderUpdated = "kitchen:order-updated"
	EventKitchenOrderBumped  = "kitchen:order-bumped"

	// Inventory scans → location room.
	EventInventoryLowStock    = "inventory:low-stock"
	EventInventoryLotExpiring = "inventory:lot-expiring"

	// Table service → location room.
	EventTableStatusChanged = "table:status-changed"
	EventTableOccupied      = "table:occupied"
	EventTableCleared       = "table:cleared"
)

// Envelope is one published event as delivered to every current member of a
// room. Payload is event-specific and opaque to the hub.
type Envelope struct {
	Event   string `json:"event"`
	Room    string `json:"room"`
	Payload any    `json:"payload"`
}

// LowStockPayload is the payload essence for inventory:low-stock events.
type LowStockPayload struct {
	InventoryItemID string  `json:"inventory_item_id"`
	LocationID      string  `json:"location_id"`
	CurrentStock    float64 `json:"current_stock"`
	MinimumStock    float64 `json:"minimum_stock"`
}

// LotExpiringPayload is the payload essence for inventory:lot-expiring events.
type LotExpiringPayload struct {
	LotID           string `json:"lot_id"`
	InventoryItemID string `json:"inventory_item_id"`
	LocationID      string `json:"location_id"`
	DaysUntilExpiry int    `json:"days_until_expiry"`
}

// TableStatusPayload is the payload essence for table service events.
type TableStatusPayload struct {
	TableID string `json:"table_id"`
	Status  string `json:"status"`
}

// TicketStatusPayload is the payload essence for kitchen ticket updates.
type TicketStatusPayload struct {
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
}
