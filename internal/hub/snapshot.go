package hub

import (
	"context"

	"festival-orders/internal/domain"
	"festival-orders/internal/repository"
)

// RepoSnapshot builds the canonical SnapshotFunc over the store.
func RepoSnapshot(repo *repository.Repository) SnapshotFunc {
	return func(ctx context.Context, tenantID string) (*domain.Snapshot, error) {
		tenant, err := repo.Tenants.Get(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		menu, err := repo.Menu.List(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		orders, err := repo.Orders.List(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		return &domain.Snapshot{Tenant: tenant, Menu: menu, Orders: orders}, nil
	}
}
