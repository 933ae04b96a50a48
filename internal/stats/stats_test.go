package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festival-orders/internal/domain"
	"festival-orders/internal/repository"
)

func paidOrder(id string, total int, updated time.Time) *domain.Order {
	return &domain.Order{
		ID: id, TenantID: "t1", Status: domain.StatusPaid, TotalPrice: total,
		RevenueCounted: true,
		Items:          []domain.OrderItem{{Name: "Waffle", Quantity: total / 500, UnitPrice: 500}},
		CreatedAt:      updated, UpdatedAt: updated,
	}
}

func TestRecordPaidAccumulates(t *testing.T) {
	repo := repository.NewMemory()
	a := New(repo.Stats, repo.Orders)
	ctx := context.Background()
	day := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, a.RecordPaid(ctx, paidOrder("o1", 1000, day)))
	require.NoError(t, a.RecordPaid(ctx, paidOrder("o2", 500, day)))

	recs, err := a.Range(ctx, "t1", "2026-09-01", "2026-09-01")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1500, recs[0].Revenue)
	assert.Equal(t, 2, recs[0].OrderCount)
	assert.Equal(t, 3, recs[0].ItemSales["Waffle"])
}

func TestRangeValidation(t *testing.T) {
	repo := repository.NewMemory()
	a := New(repo.Stats, repo.Orders)
	ctx := context.Background()

	_, err := a.Range(ctx, "t1", "not-a-date", "2026-09-01")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = a.Range(ctx, "t1", "2026-09-02", "2026-09-01")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestRangeSpansDays(t *testing.T) {
	repo := repository.NewMemory()
	a := New(repo.Stats, repo.Orders)
	ctx := context.Background()

	require.NoError(t, a.RecordPaid(ctx, paidOrder("o1", 500, time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, a.RecordPaid(ctx, paidOrder("o2", 500, time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, a.RecordPaid(ctx, paidOrder("o3", 500, time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC))))

	recs, err := a.Range(ctx, "t1", "2026-08-30", "2026-09-01")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2026-08-30", recs[0].Date)
	assert.Equal(t, "2026-08-31", recs[1].Date)
}

func TestRecomputeRebuildsFromPaidOrders(t *testing.T) {
	repo := repository.NewMemory()
	a := New(repo.Stats, repo.Orders)
	ctx := context.Background()
	day := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	o1 := paidOrder("o1", 1000, day)
	o2 := paidOrder("o2", 500, day)
	require.NoError(t, repo.Orders.Create(ctx, o1))
	require.NoError(t, repo.Orders.Create(ctx, o2))
	pending := &domain.Order{ID: "o3", TenantID: "t1", Status: domain.StatusPending, TotalPrice: 900, CreatedAt: day, UpdatedAt: day}
	require.NoError(t, repo.Orders.Create(ctx, pending))

	// corrupt the aggregate, then repair it
	require.NoError(t, a.RecordPaid(ctx, o1))
	require.NoError(t, a.RecordPaid(ctx, o1))
	require.NoError(t, a.Recompute(ctx, "t1", "2026-09-01"))

	recs, err := a.Range(ctx, "t1", "2026-09-01", "2026-09-01")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1500, recs[0].Revenue, "only paid orders count")
	assert.Equal(t, 2, recs[0].OrderCount)

	require.ErrorIs(t, a.Recompute(ctx, "t1", "nope"), domain.ErrValidation)
}
