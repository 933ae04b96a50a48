package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festival-orders/internal/domain"
	"festival-orders/internal/hub"
	"festival-orders/internal/repository"
)

func newTestLedger(t *testing.T) (*Ledger, *repository.Repository) {
	t.Helper()
	repo := repository.NewMemory()
	h := hub.New(hub.RepoSnapshot(repo), 16, time.Hour)
	return New(repo.Menu, repo.Keys, h), repo
}

func addItem(t *testing.T, l *Ledger, id string, stock int) {
	t.Helper()
	_, err := l.AddItem(context.Background(), &domain.MenuItem{
		ID: id, TenantID: "t1", Name: id, Price: 500, Stock: stock,
	})
	require.NoError(t, err)
}

func stockOf(t *testing.T, l *Ledger, id string) int {
	t.Helper()
	it, err := l.GetItem(context.Background(), "t1", id)
	require.NoError(t, err)
	return it.Stock
}

func TestAddItemValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddItem(ctx, &domain.MenuItem{TenantID: "t1", Name: "", Price: 100})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = l.AddItem(ctx, &domain.MenuItem{TenantID: "t1", Name: "Tea", Price: 0})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = l.AddItem(ctx, &domain.MenuItem{TenantID: "t1", Name: "Tea", Price: 100, Stock: -1})
	require.ErrorIs(t, err, domain.ErrValidation)

	it, err := l.AddItem(ctx, &domain.MenuItem{TenantID: "t1", Name: "Tea", Price: 100})
	require.NoError(t, err)
	assert.NotEmpty(t, it.ID)
	assert.True(t, it.IsActive)
}

func TestReserveAndRelease(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	addItem(t, l, "waffle", 4)

	require.NoError(t, l.Reserve(ctx, "t1", "waffle", 3))
	assert.Equal(t, 1, stockOf(t, l, "waffle"))

	err := l.Reserve(ctx, "t1", "waffle", 2)
	require.ErrorIs(t, err, domain.ErrOutOfStock)
	assert.Equal(t, 1, stockOf(t, l, "waffle"))

	require.NoError(t, l.Release(ctx, "t1", "waffle", 3))
	assert.Equal(t, 4, stockOf(t, l, "waffle"))
}

func TestReserveAllRollsBackOnPartialFailure(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	addItem(t, l, "waffle", 10)
	addItem(t, l, "juice", 1)

	err := l.ReserveAll(ctx, "t1", []domain.OrderItem{
		{MenuItemID: "waffle", Quantity: 2},
		{MenuItemID: "juice", Quantity: 5},
	})
	require.ErrorIs(t, err, domain.ErrOutOfStock)

	assert.Equal(t, 10, stockOf(t, l, "waffle"), "reserved lines released on failure")
	assert.Equal(t, 1, stockOf(t, l, "juice"))
}

func TestSetStockIdempotent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	addItem(t, l, "waffle", 2)

	require.NoError(t, l.SetStock(ctx, "t1", "waffle", 20, "set-1"))
	assert.Equal(t, 20, stockOf(t, l, "waffle"))

	require.NoError(t, l.Reserve(ctx, "t1", "waffle", 5))
	require.NoError(t, l.SetStock(ctx, "t1", "waffle", 20, "set-1"))
	assert.Equal(t, 15, stockOf(t, l, "waffle"), "replayed key must not re-apply")
}

func TestAdjustStock(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	addItem(t, l, "waffle", 3)

	require.NoError(t, l.AdjustStock(ctx, "t1", "waffle", 5, "adj-1"))
	assert.Equal(t, 8, stockOf(t, l, "waffle"))

	require.NoError(t, l.AdjustStock(ctx, "t1", "waffle", 5, "adj-1"))
	assert.Equal(t, 8, stockOf(t, l, "waffle"), "replayed key must not re-apply")

	require.NoError(t, l.AdjustStock(ctx, "t1", "waffle", -8, "adj-2"))
	assert.Equal(t, 0, stockOf(t, l, "waffle"))

	err := l.AdjustStock(ctx, "t1", "waffle", -1, "adj-3")
	require.ErrorIs(t, err, domain.ErrOutOfStock)
	assert.Equal(t, 0, stockOf(t, l, "waffle"))
}

func TestUpdateItemDoesNotTouchStock(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	addItem(t, l, "waffle", 6)

	updated, err := l.UpdateItem(ctx, &domain.MenuItem{
		ID: "waffle", TenantID: "t1", Name: "Belgian Waffle", Price: 700, Stock: 999, IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Belgian Waffle", updated.Name)
	assert.Equal(t, 6, updated.Stock)
}

func TestStockEventsPublished(t *testing.T) {
	repo := repository.NewMemory()
	h := hub.New(hub.RepoSnapshot(repo), 16, time.Hour)
	l := New(repo.Menu, repo.Keys, h)

	var events []domain.Event
	h.Tap(func(ev domain.Event) { events = append(events, ev) })

	ctx := context.Background()
	_, err := l.AddItem(ctx, &domain.MenuItem{ID: "waffle", TenantID: "t1", Name: "Waffle", Price: 500, Stock: 5})
	require.NoError(t, err)
	require.NoError(t, l.Reserve(ctx, "t1", "waffle", 2))

	require.Len(t, events, 2)
	assert.Equal(t, domain.EventMenuChanged, events[0].Type)
	assert.Equal(t, domain.EventStockChanged, events[1].Type)
	assert.Equal(t, 3, events[1].Item.Stock)
	assert.Equal(t, uint64(2), events[1].Seq)
}
