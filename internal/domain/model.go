package domain

import "time"

// Tenant is an isolated vendor namespace. Its id partitions every other
// entity; tenants are deactivated via IsOpen, never deleted.
type Tenant struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"display_name"`
	OwnerID         string    `json:"owner_id"`
	IsOpen          bool      `json:"is_open"`
	WaitTimeMinutes int       `json:"wait_time_minutes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MenuItem prices are integer minor units. Stock is mutated only through the
// inventory ledger, never overwritten from order paths.
type MenuItem struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Price    int    `json:"price"`
	Stock    int    `json:"stock"`
	Category string `json:"category"`
	ImageURL string `json:"image_url,omitempty"`
	IsActive bool   `json:"is_active"`
}

// OrderItem is a value object snapshotting name and unit price at order time.
type OrderItem struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int    `json:"unit_price"`
}

type Customer struct {
	Class string `json:"class"`
	Name  string `json:"name"`
}

type Order struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenant_id"`
	PickupNumber int         `json:"pickup_number"`
	Customer     Customer    `json:"customer"`
	Items        []OrderItem `json:"items"`
	TotalPrice   int         `json:"total_price"`
	Note         string      `json:"note,omitempty"`
	Status       OrderStatus `json:"status"`

	// StockReleased guards the one-shot stock release on cancellation;
	// RevenueCounted guards the one-shot daily-sales increment on payment.
	StockReleased  bool `json:"stock_released"`
	RevenueCounted bool `json:"revenue_counted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemsTotal recomputes the total from the item lines.
func (o *Order) ItemsTotal() int {
	total := 0
	for _, it := range o.Items {
		total += it.Quantity * it.UnitPrice
	}
	return total
}

// StatusChange is one entry of an order's transition log.
type StatusChange struct {
	OrderID   string      `json:"order_id"`
	Status    OrderStatus `json:"status"`
	ChangedAt time.Time   `json:"changed_at"`
}

// DailySalesRecord is the derived per-tenant, per-day sales view. Date is a
// UTC calendar day formatted as 2006-01-02.
type DailySalesRecord struct {
	TenantID   string         `json:"tenant_id"`
	Date       string         `json:"date"`
	Revenue    int            `json:"revenue"`
	OrderCount int            `json:"order_count"`
	ItemSales  map[string]int `json:"item_sales"`
}

// DateOf formats t as a sales-record day.
func DateOf(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Snapshot is the full canonical state of a tenant, delivered to a subscriber
// on subscribe and on each reconciliation poll.
type Snapshot struct {
	Tenant *Tenant    `json:"tenant,omitempty"`
	Menu   []MenuItem `json:"menu"`
	Orders []Order    `json:"orders"`
}
