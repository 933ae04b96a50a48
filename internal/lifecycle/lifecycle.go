// Package lifecycle drives orders through the status machine. Mutations for
// one tenant are serialized, so the hub observes them in commit order and
// idempotency-key checks cannot race their effects.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"festival-orders/internal/common/kmutex"
	"festival-orders/internal/common/logger"
	"festival-orders/internal/domain"
	"festival-orders/internal/hub"
	"festival-orders/internal/ledger"
	"festival-orders/internal/repository"
	"festival-orders/internal/stats"
)

type Manager struct {
	repo   *repository.Repository
	ledger *ledger.Ledger
	stats  *stats.Aggregator
	hub    *hub.Hub
	locks  *kmutex.KMutex
	lg     *logger.Logger
	now    func() time.Time
}

func New(repo *repository.Repository, led *ledger.Ledger, agg *stats.Aggregator, h *hub.Hub) *Manager {
	return &Manager{
		repo:   repo,
		ledger: led,
		stats:  agg,
		hub:    h,
		locks:  kmutex.New(),
		lg:     logger.New("lifecycle"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder validates the request, reserves every line (rolling back on
// partial failure), allocates the day's next pickup number and persists the
// order in Pending.
func (m *Manager) PlaceOrder(ctx context.Context, tenantID string, req domain.PlaceOrderRequest) (*domain.Order, error) {
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	m.locks.Lock(tenantID)
	defer m.locks.Unlock(tenantID)

	if req.IdempotencyKey != "" {
		ref, ok, err := m.repo.Keys.Lookup(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if ok {
			return m.repo.Orders.Get(ctx, tenantID, ref)
		}
	}

	tenant, err := m.repo.Tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsOpen {
		return nil, fmt.Errorf("%w: tenant %s is not accepting orders", domain.ErrValidation, tenantID)
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		mi, err := m.ledger.GetItem(ctx, tenantID, line.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("menu item %s: %w", line.MenuItemID, err)
		}
		if !mi.IsActive {
			return nil, fmt.Errorf("%w: menu item %s is inactive", domain.ErrValidation, line.MenuItemID)
		}
		items = append(items, domain.OrderItem{
			MenuItemID: mi.ID,
			Name:       mi.Name,
			Quantity:   line.Quantity,
			UnitPrice:  mi.Price,
		})
	}

	if err := m.ledger.ReserveAll(ctx, tenantID, items); err != nil {
		return nil, err
	}

	now := m.now()
	date := domain.DateOf(now)
	pickup, err := m.repo.Orders.NextPickupNumber(ctx, tenantID, date)
	if err != nil {
		return nil, m.undoReserve(ctx, tenantID, items, err)
	}

	order := &domain.Order{
		ID:           fmt.Sprintf("%s_%s_%03d", tenantID, strings.ReplaceAll(date, "-", ""), pickup),
		TenantID:     tenantID,
		PickupNumber: pickup,
		Customer:     req.Customer,
		Items:        items,
		Note:         req.Note,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.TotalPrice = order.ItemsTotal()

	if err := m.repo.Orders.Create(ctx, order); err != nil {
		return nil, m.undoReserve(ctx, tenantID, items, err)
	}
	if err := m.repo.Orders.AppendStatusLog(ctx, tenantID, order.ID, order.Status, now); err != nil {
		m.lg.Error("status_log_failed", err, map[string]any{"order_id": order.ID})
	}
	if req.IdempotencyKey != "" {
		if err := m.repo.Keys.Record(ctx, req.IdempotencyKey, order.ID); err != nil {
			m.lg.Error("idempotency_record_failed", err, map[string]any{"order_id": order.ID})
		}
	}

	m.lg.Info("order_placed", map[string]any{
		"tenant_id": tenantID, "order_id": order.ID, "pickup": pickup, "total": order.TotalPrice,
	})
	m.hub.Publish(domain.Event{TenantID: tenantID, Type: domain.EventOrderPlaced, Order: order})
	return order, nil
}

func (m *Manager) undoReserve(ctx context.Context, tenantID string, items []domain.OrderItem, cause error) error {
	if rerr := m.ledger.ReleaseAll(ctx, tenantID, items); rerr != nil {
		return multierror.Append(cause, rerr)
	}
	return cause
}

func validatePlaceOrder(req domain.PlaceOrderRequest) error {
	if strings.TrimSpace(req.Customer.Name) == "" {
		return fmt.Errorf("%w: customer name is required", domain.ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", domain.ErrValidation)
	}
	for _, it := range req.Items {
		if it.MenuItemID == "" {
			return fmt.Errorf("%w: item id is required", domain.ErrValidation)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %s must be positive", domain.ErrValidation, it.MenuItemID)
		}
	}
	return nil
}

// UpdateStatus moves an order along a legal edge, firing the one-shot side
// effects of the Cancelled and Paid states.
func (m *Manager) UpdateStatus(ctx context.Context, tenantID, orderID string, next domain.OrderStatus, idemKey string) error {
	m.locks.Lock(tenantID)
	defer m.locks.Unlock(tenantID)
	return m.transitionLocked(ctx, tenantID, orderID, next, idemKey)
}

// CancelOrder cancels a pending or preparing order. Cancelling an already
// cancelled order is a no-op once its stock is back; completed and paid
// orders are rejected so sold stock is never reintroduced.
func (m *Manager) CancelOrder(ctx context.Context, tenantID, orderID, idemKey string) error {
	m.locks.Lock(tenantID)
	defer m.locks.Unlock(tenantID)

	o, err := m.repo.Orders.Get(ctx, tenantID, orderID)
	if err != nil {
		return err
	}
	if o.Status == domain.StatusCancelled {
		if o.StockReleased {
			return nil
		}
		// a previous cancel persisted the state but failed the release;
		// finish the compensation
		o.UpdatedAt = m.now()
		if err := m.releaseCancelled(ctx, o); err != nil {
			return err
		}
		m.hub.Publish(domain.Event{TenantID: tenantID, Type: domain.EventOrderStatus, Order: o})
		return nil
	}
	return m.transitionLocked(ctx, tenantID, orderID, domain.StatusCancelled, idemKey)
}

// releaseCancelled returns a cancelled order's stock. The released flag is
// persisted only after the release succeeds, so a failed release never blocks
// a retried cancel from completing the compensation.
func (m *Manager) releaseCancelled(ctx context.Context, o *domain.Order) error {
	if err := m.ledger.ReleaseAll(ctx, o.TenantID, o.Items); err != nil {
		m.lg.Error("cancel_release_failed", err, map[string]any{"order_id": o.ID})
		return err
	}
	o.StockReleased = true
	return m.repo.Orders.Update(ctx, o)
}

func (m *Manager) transitionLocked(ctx context.Context, tenantID, orderID string, next domain.OrderStatus, idemKey string) error {
	if idemKey != "" {
		_, ok, err := m.repo.Keys.Lookup(ctx, idemKey)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	o, err := m.repo.Orders.Get(ctx, tenantID, orderID)
	if err != nil {
		return err
	}
	if !o.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, o.Status, next)
	}

	now := m.now()
	o.Status = next
	o.UpdatedAt = now

	releaseStock := next == domain.StatusCancelled && !o.StockReleased
	countRevenue := next == domain.StatusPaid && !o.RevenueCounted

	if err := m.repo.Orders.Update(ctx, o); err != nil {
		return err
	}
	if err := m.repo.Orders.AppendStatusLog(ctx, tenantID, orderID, next, now); err != nil {
		m.lg.Error("status_log_failed", err, map[string]any{"order_id": orderID})
	}

	// the one-shot flags are persisted only after their side effect lands,
	// so a failure here leaves the effect retryable
	if releaseStock {
		if err := m.releaseCancelled(ctx, o); err != nil {
			return err
		}
	}
	if countRevenue {
		if err := m.stats.RecordPaid(ctx, o); err != nil {
			m.lg.Error("sale_record_failed", err, map[string]any{"order_id": orderID})
			return err
		}
		o.RevenueCounted = true
		if err := m.repo.Orders.Update(ctx, o); err != nil {
			return err
		}
	}
	if idemKey != "" {
		if err := m.repo.Keys.Record(ctx, idemKey, orderID); err != nil {
			m.lg.Error("idempotency_record_failed", err, map[string]any{"order_id": orderID})
		}
	}

	m.lg.Info("order_status_changed", map[string]any{
		"tenant_id": tenantID, "order_id": orderID, "status": string(next),
	})
	m.hub.Publish(domain.Event{TenantID: tenantID, Type: domain.EventOrderStatus, Order: o})
	return nil
}

// CheckStatuses reports the status of each id and lists the unknown ones.
func (m *Manager) CheckStatuses(ctx context.Context, tenantID string, orderIDs []string) (domain.CheckStatusResponse, error) {
	resp := domain.CheckStatusResponse{Statuses: make(map[string]domain.OrderStatus, len(orderIDs))}
	for _, id := range orderIDs {
		o, err := m.repo.Orders.Get(ctx, tenantID, id)
		switch {
		case err == nil:
			resp.Statuses[id] = o.Status
		case errors.Is(err, domain.ErrNotFound):
			resp.Missing = append(resp.Missing, id)
		default:
			return domain.CheckStatusResponse{}, err
		}
	}
	return resp, nil
}

// ClearOrders is the tenant-wide reset: every order is deleted and the day's
// sales record is wiped. Stock levels are intentionally untouched.
func (m *Manager) ClearOrders(ctx context.Context, tenantID string) error {
	m.locks.Lock(tenantID)
	defer m.locks.Unlock(tenantID)

	if _, err := m.repo.Tenants.Get(ctx, tenantID); err != nil {
		return err
	}
	if err := m.repo.Orders.DeleteAll(ctx, tenantID); err != nil {
		return err
	}
	if err := m.stats.Reset(ctx, tenantID, domain.DateOf(m.now())); err != nil {
		return err
	}
	m.lg.Info("orders_cleared", map[string]any{"tenant_id": tenantID})
	m.hub.Publish(domain.Event{TenantID: tenantID, Type: domain.EventOrdersCleared})
	return nil
}

func (m *Manager) Orders(ctx context.Context, tenantID string) ([]domain.Order, error) {
	return m.repo.Orders.List(ctx, tenantID)
}

func (m *Manager) GetOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	return m.repo.Orders.Get(ctx, tenantID, orderID)
}

// OrderByKey resolves the order a previously used idempotency key refers to.
func (m *Manager) OrderByKey(ctx context.Context, tenantID, key string) (*domain.Order, error) {
	ref, ok, err := m.repo.Keys.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.repo.Orders.Get(ctx, tenantID, ref)
}

func (m *Manager) Timeline(ctx context.Context, tenantID, orderID string) ([]domain.StatusChange, error) {
	return m.repo.Orders.Timeline(ctx, tenantID, orderID)
}
