package domain

// PlaceOrderItem references a menu item; the unit price is taken from the
// menu server-side, never from the client.
type PlaceOrderItem struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	Customer       Customer         `json:"customer"`
	Items          []PlaceOrderItem `json:"items"`
	Note           string           `json:"note,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

type PlaceOrderResponse struct {
	OrderID      string      `json:"order_id"`
	PickupNumber int         `json:"pickup_number"`
	Status       OrderStatus `json:"status"`
	TotalPrice   int         `json:"total_price"`
}

type UpdateStatusRequest struct {
	Status         string `json:"status"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// UpdateStockRequest applies either a relative delta or an absolute overwrite.
type UpdateStockRequest struct {
	Delta          *int   `json:"delta,omitempty"`
	Absolute       *int   `json:"absolute,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type CheckStatusRequest struct {
	OrderIDs []string `json:"order_ids"`
}

type CheckStatusResponse struct {
	Statuses map[string]OrderStatus `json:"statuses"`
	Missing  []string               `json:"missing,omitempty"`
}
