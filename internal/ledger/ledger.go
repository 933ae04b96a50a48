// Package ledger owns menu items and their stock. Reservation is delegated
// to the store's conditional atomic decrement, so concurrent reservations
// can never oversell; a read-then-write sequence is deliberately absent.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"festival-orders/internal/common/kmutex"
	"festival-orders/internal/common/logger"
	"festival-orders/internal/domain"
	"festival-orders/internal/hub"
	"festival-orders/internal/repository"
)

type Ledger struct {
	menu  repository.MenuRepo
	keys  repository.IdempotencyRepo
	hub   *hub.Hub
	locks *kmutex.KMutex
	lg    *logger.Logger
}

func New(menu repository.MenuRepo, keys repository.IdempotencyRepo, h *hub.Hub) *Ledger {
	return &Ledger{
		menu:  menu,
		keys:  keys,
		hub:   h,
		locks: kmutex.New(),
		lg:    logger.New("ledger"),
	}
}

// --- menu management ---

func (l *Ledger) AddItem(ctx context.Context, it *domain.MenuItem) (*domain.MenuItem, error) {
	if strings.TrimSpace(it.Name) == "" {
		return nil, fmt.Errorf("%w: item name is required", domain.ErrValidation)
	}
	if it.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", domain.ErrValidation)
	}
	if it.Stock < 0 {
		return nil, fmt.Errorf("%w: stock must be >= 0", domain.ErrValidation)
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.IsActive = true

	l.locks.Lock(it.TenantID)
	defer l.locks.Unlock(it.TenantID)
	if err := l.menu.AddItem(ctx, it); err != nil {
		return nil, err
	}
	l.hub.Publish(domain.Event{TenantID: it.TenantID, Type: domain.EventMenuChanged, Item: it})
	return it, nil
}

// UpdateItem mutates menu attributes; stock is untouched regardless of the
// value carried in it.
func (l *Ledger) UpdateItem(ctx context.Context, it *domain.MenuItem) (*domain.MenuItem, error) {
	if it.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", domain.ErrValidation)
	}
	l.locks.Lock(it.TenantID)
	defer l.locks.Unlock(it.TenantID)
	if err := l.menu.UpdateItem(ctx, it); err != nil {
		return nil, err
	}
	fresh, err := l.menu.GetItem(ctx, it.TenantID, it.ID)
	if err != nil {
		return nil, err
	}
	l.hub.Publish(domain.Event{TenantID: it.TenantID, Type: domain.EventMenuChanged, Item: fresh})
	return fresh, nil
}

func (l *Ledger) Menu(ctx context.Context, tenantID string) ([]domain.MenuItem, error) {
	return l.menu.List(ctx, tenantID)
}

func (l *Ledger) GetItem(ctx context.Context, tenantID, itemID string) (*domain.MenuItem, error) {
	return l.menu.GetItem(ctx, tenantID, itemID)
}

// --- stock operations ---

// Reserve decrements stock by qty if and only if enough remains.
func (l *Ledger) Reserve(ctx context.Context, tenantID, itemID string, qty int) error {
	l.locks.Lock(tenantID)
	defer l.locks.Unlock(tenantID)
	return l.reserveLocked(ctx, tenantID, itemID, qty)
}

func (l *Ledger) reserveLocked(ctx context.Context, tenantID, itemID string, qty int) error {
	if err := l.menu.ReserveStock(ctx, tenantID, itemID, qty); err != nil {
		return err
	}
	l.publishStock(ctx, tenantID, itemID)
	return nil
}

// Release returns qty to stock. Callers guarantee at-most-once invocation per
// cancellation; the lifecycle manager enforces that with its released flag.
func (l *Ledger) Release(ctx context.Context, tenantID, itemID string, qty int) error {
	l.locks.Lock(tenantID)
	defer l.locks.Unlock(tenantID)
	return l.releaseLocked(ctx, tenantID, itemID, qty)
}

func (l *Ledger) releaseLocked(ctx context.Context, tenantID, itemID string, qty int) error {
	if err := l.menu.ReleaseStock(ctx, tenantID, itemID, qty); err != nil {
		return err
	}
	l.publishStock(ctx, tenantID, itemID)
	return nil
}

// SetStock is the administrative overwrite. idemKey may be empty; a replayed
// key is a no-op.
func (l *Ledger) SetStock(ctx context.Context, tenantID, itemID string, qty int, idemKey string) error {
	l.locks.Lock(tenantID)
	defer l.locks.Unlock(tenantID)
	applied, err := l.claimed(ctx, idemKey, itemID)
	if err != nil || applied {
		return err
	}
	if err := l.menu.SetStock(ctx, tenantID, itemID, qty); err != nil {
		return err
	}
	if err := l.record(ctx, idemKey, itemID); err != nil {
		return err
	}
	l.publishStock(ctx, tenantID, itemID)
	return nil
}

// AdjustStock applies a relative delta: a positive delta is an unconditional
// increment, a negative one goes through the conditional decrement so stock
// never drops below zero.
func (l *Ledger) AdjustStock(ctx context.Context, tenantID, itemID string, delta int, idemKey string) error {
	l.locks.Lock(tenantID)
	defer l.locks.Unlock(tenantID)
	applied, err := l.claimed(ctx, idemKey, itemID)
	if err != nil || applied {
		return err
	}
	switch {
	case delta > 0:
		if err := l.menu.ReleaseStock(ctx, tenantID, itemID, delta); err != nil {
			return err
		}
	case delta < 0:
		if err := l.menu.ReserveStock(ctx, tenantID, itemID, -delta); err != nil {
			return err
		}
	default:
		return nil
	}
	if err := l.record(ctx, idemKey, itemID); err != nil {
		return err
	}
	l.publishStock(ctx, tenantID, itemID)
	return nil
}

// ReserveAll reserves every line independently; on the first failure all
// previously reserved lines are released again and the original error is
// returned, carrying any release failures alongside it.
func (l *Ledger) ReserveAll(ctx context.Context, tenantID string, items []domain.OrderItem) error {
	l.locks.Lock(tenantID)
	defer l.locks.Unlock(tenantID)
	for i, it := range items {
		if err := l.reserveLocked(ctx, tenantID, it.MenuItemID, it.Quantity); err != nil {
			result := fmt.Errorf("reserve %s: %w", it.MenuItemID, err)
			for j := 0; j < i; j++ {
				if rerr := l.releaseLocked(ctx, tenantID, items[j].MenuItemID, items[j].Quantity); rerr != nil {
					result = multierror.Append(result, fmt.Errorf("rollback release %s: %w", items[j].MenuItemID, rerr))
				}
			}
			return result
		}
	}
	return nil
}

// ReleaseAll returns every line to stock, collecting failures instead of
// stopping at the first one.
func (l *Ledger) ReleaseAll(ctx context.Context, tenantID string, items []domain.OrderItem) error {
	l.locks.Lock(tenantID)
	defer l.locks.Unlock(tenantID)
	var result *multierror.Error
	for _, it := range items {
		if err := l.releaseLocked(ctx, tenantID, it.MenuItemID, it.Quantity); err != nil {
			result = multierror.Append(result, fmt.Errorf("release %s: %w", it.MenuItemID, err))
		}
	}
	return result.ErrorOrNil()
}

func (l *Ledger) publishStock(ctx context.Context, tenantID, itemID string) {
	it, err := l.menu.GetItem(ctx, tenantID, itemID)
	if err != nil {
		l.lg.Error("stock_event_fetch_failed", err, map[string]any{"tenant_id": tenantID, "item_id": itemID})
		return
	}
	l.hub.Publish(domain.Event{TenantID: tenantID, Type: domain.EventStockChanged, Item: it})
}

func (l *Ledger) claimed(ctx context.Context, idemKey, ref string) (bool, error) {
	if idemKey == "" {
		return false, nil
	}
	_, ok, err := l.keys.Lookup(ctx, idemKey)
	if err != nil {
		return false, err
	}
	if ok {
		l.lg.Debug("idempotent_replay_skipped", map[string]any{"key": idemKey, "ref": ref})
	}
	return ok, nil
}

func (l *Ledger) record(ctx context.Context, idemKey, ref string) error {
	if idemKey == "" {
		return nil
	}
	return l.keys.Record(ctx, idemKey, ref)
}
