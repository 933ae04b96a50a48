package offline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festival-orders/internal/domain"
	"festival-orders/internal/hub"
	"festival-orders/internal/ledger"
	"festival-orders/internal/lifecycle"
	"festival-orders/internal/repository"
	"festival-orders/internal/stats"
)

func newExecutor(t *testing.T) (*CoreExecutor, *repository.Repository) {
	t.Helper()
	repo := repository.NewMemory()
	h := hub.New(hub.RepoSnapshot(repo), 16, time.Hour)
	led := ledger.New(repo.Menu, repo.Keys, h)
	agg := stats.New(repo.Stats, repo.Orders)
	lc := lifecycle.New(repo, led, agg, h)

	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.Tenants.Create(ctx, &domain.Tenant{
		ID: "t1", DisplayName: "Waffle Stand", OwnerID: "owner-1", IsOpen: true, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, repo.Menu.AddItem(ctx, &domain.MenuItem{
		ID: "waffle", TenantID: "t1", Name: "Waffle", Price: 500, Stock: 10, IsActive: true,
	}))
	return &CoreExecutor{Lifecycle: lc, Ledger: led}, repo
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestExecutePlaceOrderIsIdempotentPerOpID(t *testing.T) {
	exec, repo := newExecutor(t)
	ctx := context.Background()

	op := Operation{
		ID: "op-1", TenantID: "t1", Type: OpPlaceOrder,
		Payload: mustMarshal(t, domain.PlaceOrderRequest{
			Customer: domain.Customer{Class: "3-A", Name: "Sato"},
			Items:    []domain.PlaceOrderItem{{MenuItemID: "waffle", Quantity: 2}},
		}),
	}

	require.NoError(t, exec.Execute(ctx, op))
	require.NoError(t, exec.Execute(ctx, op), "replay after a partially observed attempt")

	orders, err := repo.Orders.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, orders, 1, "op id doubles as idempotency key")

	it, err := repo.Menu.GetItem(ctx, "t1", "waffle")
	require.NoError(t, err)
	assert.Equal(t, 8, it.Stock)
}

func TestExecuteStockDeltaAppliedOnce(t *testing.T) {
	exec, repo := newExecutor(t)
	ctx := context.Background()

	op := Operation{
		ID: "op-2", TenantID: "t1", Type: OpUpdateStock,
		Payload: mustMarshal(t, StockPayload{ItemID: "waffle", Delta: intp(5)}),
	}
	require.NoError(t, exec.Execute(ctx, op))
	require.NoError(t, exec.Execute(ctx, op))

	it, err := repo.Menu.GetItem(ctx, "t1", "waffle")
	require.NoError(t, err)
	assert.Equal(t, 15, it.Stock)
}

func TestExecuteStatusConflictSurfaces(t *testing.T) {
	exec, _ := newExecutor(t)
	ctx := context.Background()

	require.NoError(t, exec.Execute(ctx, Operation{
		ID: "op-place", TenantID: "t1", Type: OpPlaceOrder,
		Payload: mustMarshal(t, domain.PlaceOrderRequest{
			Customer: domain.Customer{Class: "3-A", Name: "Sato"},
			Items:    []domain.PlaceOrderItem{{MenuItemID: "waffle", Quantity: 1}},
		}),
	}))
	o, err := exec.Lifecycle.Orders(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, o, 1)

	err = exec.Execute(ctx, Operation{
		ID: "op-status", TenantID: "t1", Type: OpUpdateStatus,
		Payload: mustMarshal(t, StatusPayload{OrderID: o[0].ID, Status: "paid"}),
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.False(t, domain.IsNetwork(err), "conflicts must not be absorbed into the queue")
}

func TestExecuteRejectsMalformedPayloads(t *testing.T) {
	exec, _ := newExecutor(t)
	ctx := context.Background()

	err := exec.Execute(ctx, Operation{ID: "op-x", TenantID: "t1", Type: OpUpdateStock, Payload: []byte("{}")})
	require.ErrorIs(t, err, domain.ErrValidation)

	err = exec.Execute(ctx, Operation{ID: "op-y", TenantID: "t1", Type: "unknown"})
	require.ErrorIs(t, err, domain.ErrValidation)
}
