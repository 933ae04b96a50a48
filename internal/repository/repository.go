// Package repository defines the store contract the coordination core
// requires: per-tenant namespaces, atomic conditional stock decrement,
// transactional order writes and idempotency-key claims. Two backends
// implement it: an in-memory store and Postgres.
package repository

import (
	"context"
	"time"

	"festival-orders/internal/domain"
)

type TenantRepo interface {
	Create(ctx context.Context, t *domain.Tenant) error
	Get(ctx context.Context, id string) (*domain.Tenant, error)
	List(ctx context.Context) ([]domain.Tenant, error)
	Update(ctx context.Context, t *domain.Tenant) error
}

type MenuRepo interface {
	AddItem(ctx context.Context, it *domain.MenuItem) error
	UpdateItem(ctx context.Context, it *domain.MenuItem) error
	GetItem(ctx context.Context, tenantID, itemID string) (*domain.MenuItem, error)
	List(ctx context.Context, tenantID string) ([]domain.MenuItem, error)

	// ReserveStock decrements stock by qty only if the result stays >= 0,
	// as one indivisible operation against the backend's atomic primitive.
	// Returns domain.ErrOutOfStock when the condition fails.
	ReserveStock(ctx context.Context, tenantID, itemID string, qty int) error
	// ReleaseStock is an unconditional atomic increment.
	ReleaseStock(ctx context.Context, tenantID, itemID string, qty int) error
	// SetStock is the administrative overwrite; it bypasses reservation.
	SetStock(ctx context.Context, tenantID, itemID string, qty int) error
}

type OrderRepo interface {
	Create(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, tenantID, orderID string) (*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
	List(ctx context.Context, tenantID string) ([]domain.Order, error)
	ListPaidByDate(ctx context.Context, tenantID, date string) ([]domain.Order, error)
	DeleteAll(ctx context.Context, tenantID string) error

	// NextPickupNumber allocates the next per-tenant, per-day sequence
	// number, starting at 1.
	NextPickupNumber(ctx context.Context, tenantID, date string) (int, error)

	AppendStatusLog(ctx context.Context, tenantID, orderID string, st domain.OrderStatus, at time.Time) error
	Timeline(ctx context.Context, tenantID, orderID string) ([]domain.StatusChange, error)
}

type StatsRepo interface {
	// AddSale increments the day's record by the order's totals.
	AddSale(ctx context.Context, o *domain.Order, date string) error
	Range(ctx context.Context, tenantID, from, to string) ([]domain.DailySalesRecord, error)
	Reset(ctx context.Context, tenantID, date string) error
}

// IdempotencyRepo stores claimed operation keys so a replayed operation has
// effect at most once.
type IdempotencyRepo interface {
	Lookup(ctx context.Context, key string) (ref string, ok bool, err error)
	Record(ctx context.Context, key, ref string) error
}

type Repository struct {
	Tenants TenantRepo
	Menu    MenuRepo
	Orders  OrderRepo
	Stats   StatsRepo
	Keys    IdempotencyRepo
}
