// Package registry manages the per-vendor tenant namespaces.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"festival-orders/internal/common/logger"
	"festival-orders/internal/domain"
	"festival-orders/internal/hub"
	"festival-orders/internal/repository"
)

type Registry struct {
	tenants repository.TenantRepo
	hub     *hub.Hub
	lg      *logger.Logger
}

func New(tenants repository.TenantRepo, h *hub.Hub) *Registry {
	return &Registry{tenants: tenants, hub: h, lg: logger.New("registry")}
}

// CreateTenant assigns an immutable id; the tenant starts open with no wait.
func (r *Registry) CreateTenant(ctx context.Context, ownerID, displayName string) (*domain.Tenant, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(displayName) == "" {
		return nil, fmt.Errorf("%w: display name is required", domain.ErrValidation)
	}
	now := time.Now().UTC()
	t := &domain.Tenant{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		OwnerID:     ownerID,
		IsOpen:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.tenants.Create(ctx, t); err != nil {
		return nil, err
	}
	r.lg.Info("tenant_created", map[string]any{"tenant_id": t.ID, "owner_id": ownerID})
	r.hub.Publish(domain.Event{TenantID: t.ID, Type: domain.EventTenantChanged, Tenant: t})
	return t, nil
}

func (r *Registry) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	return r.tenants.Get(ctx, id)
}

func (r *Registry) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	return r.tenants.List(ctx)
}

// SetOpen flips the accepting-orders flag; in-flight orders are untouched.
func (r *Registry) SetOpen(ctx context.Context, id string, open bool) (*domain.Tenant, error) {
	return r.mutate(ctx, id, func(t *domain.Tenant) error {
		t.IsOpen = open
		return nil
	})
}

func (r *Registry) SetWaitTime(ctx context.Context, id string, minutes int) (*domain.Tenant, error) {
	if minutes < 0 {
		return nil, fmt.Errorf("%w: wait time must be >= 0", domain.ErrValidation)
	}
	return r.mutate(ctx, id, func(t *domain.Tenant) error {
		t.WaitTimeMinutes = minutes
		return nil
	})
}

func (r *Registry) mutate(ctx context.Context, id string, apply func(*domain.Tenant) error) (*domain.Tenant, error) {
	t, err := r.tenants.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now().UTC()
	if err := r.tenants.Update(ctx, t); err != nil {
		return nil, err
	}
	r.hub.Publish(domain.Event{TenantID: t.ID, Type: domain.EventTenantChanged, Tenant: t})
	return t, nil
}
