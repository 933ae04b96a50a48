package domain

import "time"

type EventType string

const (
	EventSnapshot      EventType = "snapshot"
	EventOrderPlaced   EventType = "order.placed"
	EventOrderStatus   EventType = "order.status_changed"
	EventOrdersCleared EventType = "orders.cleared"
	EventStockChanged  EventType = "stock.changed"
	EventMenuChanged   EventType = "menu.changed"
	EventTenantChanged EventType = "tenant.changed"
)

// Event is one committed mutation in a tenant's stream. Seq is assigned by
// the hub and is strictly increasing per tenant; all subscribers of a tenant
// observe the same sequence.
type Event struct {
	Seq      uint64    `json:"seq"`
	TenantID string    `json:"tenant_id"`
	Type     EventType `json:"type"`
	At       time.Time `json:"at"`

	Order    *Order    `json:"order,omitempty"`
	Item     *MenuItem `json:"item,omitempty"`
	Tenant   *Tenant   `json:"tenant,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}
