package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festival-orders/internal/domain"
)

func emptySnapshot(ctx context.Context, tenantID string) (*domain.Snapshot, error) {
	return &domain.Snapshot{}, nil
}

// collector gathers callback deliveries and signals each one.
type collector struct {
	mu     sync.Mutex
	events []domain.Event
	got    chan struct{}
}

func newCollector() *collector {
	return &collector{got: make(chan struct{}, 128)}
}

func (c *collector) fn(ev domain.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []domain.Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.events...)
}

func TestSubscribeSnapshotFirst(t *testing.T) {
	h := New(emptySnapshot, 16, time.Hour)
	col := newCollector()

	unsub, err := h.Subscribe(context.Background(), "t1", col.fn)
	require.NoError(t, err)
	defer unsub()

	h.Publish(domain.Event{TenantID: "t1", Type: domain.EventOrderPlaced})

	events := col.wait(t, 2)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventSnapshot, events[0].Type)
	require.NotNil(t, events[0].Snapshot)
	assert.Equal(t, domain.EventOrderPlaced, events[1].Type)
	assert.Equal(t, uint64(1), events[1].Seq)
}

func TestAllSubscribersSeeSameOrder(t *testing.T) {
	h := New(emptySnapshot, 64, time.Hour)
	a, b := newCollector(), newCollector()

	unsubA, err := h.Subscribe(context.Background(), "t1", a.fn)
	require.NoError(t, err)
	defer unsubA()
	unsubB, err := h.Subscribe(context.Background(), "t1", b.fn)
	require.NoError(t, err)
	defer unsubB()

	types := []domain.EventType{
		domain.EventOrderPlaced, domain.EventStockChanged, domain.EventOrderStatus, domain.EventMenuChanged,
	}
	for _, ty := range types {
		h.Publish(domain.Event{TenantID: "t1", Type: ty})
	}

	evA := a.wait(t, len(types)+1)
	evB := b.wait(t, len(types)+1)
	require.Len(t, evA, len(types)+1)
	require.Len(t, evB, len(types)+1)

	for i := 1; i < len(evA); i++ {
		assert.Equal(t, evA[i].Type, evB[i].Type)
		assert.Equal(t, evA[i].Seq, evB[i].Seq)
		assert.Equal(t, uint64(i), evA[i].Seq)
	}
}

func TestTenantStreamsAreIndependent(t *testing.T) {
	h := New(emptySnapshot, 16, time.Hour)
	col := newCollector()

	unsub, err := h.Subscribe(context.Background(), "t1", col.fn)
	require.NoError(t, err)
	defer unsub()

	h.Publish(domain.Event{TenantID: "t2", Type: domain.EventOrderPlaced})
	h.Publish(domain.Event{TenantID: "t1", Type: domain.EventStockChanged})

	events := col.wait(t, 2)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventStockChanged, events[1].Type)
	assert.Equal(t, uint64(1), events[1].Seq, "other tenants do not advance this stream")
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := New(emptySnapshot, 16, time.Hour)
	col := newCollector()

	unsub, err := h.Subscribe(context.Background(), "t1", col.fn)
	require.NoError(t, err)
	col.wait(t, 1) // snapshot

	unsub()
	unsub()
	h.Publish(domain.Event{TenantID: "t1", Type: domain.EventOrderPlaced})

	select {
	case <-col.got:
		t.Fatal("unsubscribed callback must not receive events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTapSeesEveryTenant(t *testing.T) {
	h := New(emptySnapshot, 16, time.Hour)
	var mu sync.Mutex
	var keys []string
	h.Tap(func(ev domain.Event) {
		mu.Lock()
		keys = append(keys, ev.TenantID+"/"+string(ev.Type))
		mu.Unlock()
	})

	h.Publish(domain.Event{TenantID: "t1", Type: domain.EventOrderPlaced})
	h.Publish(domain.Event{TenantID: "t2", Type: domain.EventStockChanged})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"t1/order.placed", "t2/stock.changed"}, keys)
}

func TestPollRedeliversSnapshot(t *testing.T) {
	h := New(emptySnapshot, 16, time.Hour)
	col := newCollector()

	unsub, err := h.Subscribe(context.Background(), "t1", col.fn)
	require.NoError(t, err)
	defer unsub()
	col.wait(t, 1)

	h.pollOnce(context.Background())

	events := col.wait(t, 1)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventSnapshot, last.Type)
	require.NotNil(t, last.Snapshot)
}
