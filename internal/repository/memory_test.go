package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festival-orders/internal/domain"
)

func seedItem(t *testing.T, repo *Repository, stock int) {
	t.Helper()
	err := repo.Menu.AddItem(context.Background(), &domain.MenuItem{
		ID: "lemonade", TenantID: "t1", Name: "Lemonade", Price: 300, Stock: stock, IsActive: true,
	})
	require.NoError(t, err)
}

func TestReserveStockConditional(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	seedItem(t, repo, 3)

	require.NoError(t, repo.Menu.ReserveStock(ctx, "t1", "lemonade", 2))

	err := repo.Menu.ReserveStock(ctx, "t1", "lemonade", 2)
	require.ErrorIs(t, err, domain.ErrOutOfStock)

	it, err := repo.Menu.GetItem(ctx, "t1", "lemonade")
	require.NoError(t, err)
	assert.Equal(t, 1, it.Stock, "failed reservation must not change stock")

	err = repo.Menu.ReserveStock(ctx, "t1", "missing", 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReserveStockNeverOversells(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	seedItem(t, repo, 50)

	var wg sync.WaitGroup
	granted := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Menu.ReserveStock(ctx, "t1", "lemonade", 1); err == nil {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	assert.Len(t, granted, 50)
	it, err := repo.Menu.GetItem(ctx, "t1", "lemonade")
	require.NoError(t, err)
	assert.Equal(t, 0, it.Stock)
}

func TestUpdateItemKeepsStock(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	seedItem(t, repo, 7)

	err := repo.Menu.UpdateItem(ctx, &domain.MenuItem{
		ID: "lemonade", TenantID: "t1", Name: "Fresh Lemonade", Price: 350, Stock: 999, IsActive: true,
	})
	require.NoError(t, err)

	it, err := repo.Menu.GetItem(ctx, "t1", "lemonade")
	require.NoError(t, err)
	assert.Equal(t, "Fresh Lemonade", it.Name)
	assert.Equal(t, 7, it.Stock)
}

func TestNextPickupNumberPerTenantDay(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()

	for want := 1; want <= 3; want++ {
		n, err := repo.Orders.NextPickupNumber(ctx, "t1", "2026-09-01")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := repo.Orders.NextPickupNumber(ctx, "t1", "2026-09-02")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "counter resets per day")

	n, err = repo.Orders.NextPickupNumber(ctx, "t2", "2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "counter is per tenant")
}

func TestOrderRoundTripAndIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	o := &domain.Order{
		ID: "t1_20260901_001", TenantID: "t1", PickupNumber: 1,
		Items:     []domain.OrderItem{{MenuItemID: "lemonade", Name: "Lemonade", Quantity: 2, UnitPrice: 300}},
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Orders.Create(ctx, o))

	got, err := repo.Orders.Get(ctx, "t1", o.ID)
	require.NoError(t, err)
	got.Items[0].Quantity = 99

	again, err := repo.Orders.Get(ctx, "t1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Items[0].Quantity, "stored order must not alias returned slices")

	_, err = repo.Orders.Get(ctx, "t2", o.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteAllRemovesOrdersAndLogs(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	o := &domain.Order{ID: "t1_20260901_001", TenantID: "t1", Status: domain.StatusPending}
	require.NoError(t, repo.Orders.Create(ctx, o))
	require.NoError(t, repo.Orders.AppendStatusLog(ctx, "t1", o.ID, domain.StatusPending, time.Now()))

	require.NoError(t, repo.Orders.DeleteAll(ctx, "t1"))

	orders, err := repo.Orders.List(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, orders)
	_, err = repo.Orders.Timeline(ctx, "t1", o.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIdempotencyKeysFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()

	_, ok, err := repo.Keys.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Keys.Record(ctx, "k1", "order-a"))
	require.NoError(t, repo.Keys.Record(ctx, "k1", "order-b"))

	ref, ok, err := repo.Keys.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "order-a", ref)
}

func TestStatsAddSaleAndRange(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	o := &domain.Order{
		TenantID: "t1", TotalPrice: 900,
		Items: []domain.OrderItem{{Name: "Lemonade", Quantity: 3, UnitPrice: 300}},
	}
	require.NoError(t, repo.Stats.AddSale(ctx, o, "2026-09-01"))
	require.NoError(t, repo.Stats.AddSale(ctx, o, "2026-09-01"))

	recs, err := repo.Stats.Range(ctx, "t1", "2026-09-01", "2026-09-01")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1800, recs[0].Revenue)
	assert.Equal(t, 2, recs[0].OrderCount)
	assert.Equal(t, 6, recs[0].ItemSales["Lemonade"])

	require.NoError(t, repo.Stats.Reset(ctx, "t1", "2026-09-01"))
	recs, err = repo.Stats.Range(ctx, "t1", "2026-09-01", "2026-09-01")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
