// Package stats derives the per-tenant daily sales views from paid orders.
// The aggregate is additive only and fully recomputable from the paid-order
// history, so nothing else depends on its realtime accuracy.
package stats

import (
	"context"
	"fmt"
	"time"

	"festival-orders/internal/common/logger"
	"festival-orders/internal/domain"
	"festival-orders/internal/repository"
)

type Aggregator struct {
	stats  repository.StatsRepo
	orders repository.OrderRepo
	lg     *logger.Logger
}

func New(stats repository.StatsRepo, orders repository.OrderRepo) *Aggregator {
	return &Aggregator{stats: stats, orders: orders, lg: logger.New("stats")}
}

// RecordPaid increments the day's record for one paid order. The lifecycle
// manager guarantees at-most-once invocation per order via its counted flag.
func (a *Aggregator) RecordPaid(ctx context.Context, o *domain.Order) error {
	date := domain.DateOf(o.UpdatedAt)
	if err := a.stats.AddSale(ctx, o, date); err != nil {
		return fmt.Errorf("add sale: %w", err)
	}
	a.lg.Debug("sale_recorded", map[string]any{
		"tenant_id": o.TenantID, "order_id": o.ID, "date": date, "revenue": o.TotalPrice,
	})
	return nil
}

// Range returns the records between from and to inclusive (2006-01-02).
func (a *Aggregator) Range(ctx context.Context, tenantID, from, to string) ([]domain.DailySalesRecord, error) {
	for _, d := range []string{from, to} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, fmt.Errorf("%w: invalid date %q", domain.ErrValidation, d)
		}
	}
	if from > to {
		return nil, fmt.Errorf("%w: date range is inverted", domain.ErrValidation)
	}
	return a.stats.Range(ctx, tenantID, from, to)
}

// Recompute rebuilds one day's record from the paid-order history, repairing
// a corrupted aggregate.
func (a *Aggregator) Recompute(ctx context.Context, tenantID, date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%w: invalid date %q", domain.ErrValidation, date)
	}
	if err := a.stats.Reset(ctx, tenantID, date); err != nil {
		return fmt.Errorf("reset day: %w", err)
	}
	orders, err := a.orders.ListPaidByDate(ctx, tenantID, date)
	if err != nil {
		return fmt.Errorf("list paid orders: %w", err)
	}
	for i := range orders {
		if err := a.stats.AddSale(ctx, &orders[i], date); err != nil {
			return fmt.Errorf("re-add sale %s: %w", orders[i].ID, err)
		}
	}
	a.lg.Info("stats_recomputed", map[string]any{"tenant_id": tenantID, "date": date, "orders": len(orders)})
	return nil
}

// Reset clears one day's record (used by the tenant-wide order reset).
func (a *Aggregator) Reset(ctx context.Context, tenantID, date string) error {
	return a.stats.Reset(ctx, tenantID, date)
}
