package registry

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

func newTestRegistry() (*Registry, *hub.Hub) {
	repo := repository.NewMemory()
	h := hub.New(hub.RepoSnapshot(repo), 16, time.Hour)
	return New(repo.Tenants, h), h
}

func TestCreateTenant(t *testing.T) {
	r, h := newTestRegistry()
	ctx := context.Background()

	var events []domain.Event
	h.Tap(func(ev domain.Event) { events = append(events, ev) })

	tn, err := r.CreateTenant(ctx, "owner-1", "Waffle Stand")
	require.NoError(t, err)
	assert.NotEmpty(t, tn.ID)
	assert.True(t, tn.IsOpen)
	assert.Zero(t, tn.WaitTimeMinutes)

	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTenantChanged, events[0].Type)

	_, err = r.CreateTenant(ctx, "", "Waffle Stand")
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = r.CreateTenant(ctx, "owner-1", "  ")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSetOpenAndWaitTime(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	tn, err := r.CreateTenant(ctx, "owner-1", "Waffle Stand")
	require.NoError(t, err)

	closed, err := r.SetOpen(ctx, tn.ID, false)
	require.NoError(t, err)
	assert.False(t, closed.IsOpen)

	waited, err := r.SetWaitTime(ctx, tn.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, 15, waited.WaitTimeMinutes)

	_, err = r.SetWaitTime(ctx, tn.ID, -1)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.SetOpen(ctx, "nope", true)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
