// Package hub fans committed tenant mutations out to realtime subscribers.
// Every subscriber of a tenant observes the same event order; a cooperative
// poll re-delivers full snapshots so a stalled push channel converges back to
// canonical state.
package hub

import (
	"context"
	"sync"
	"time"

	"festival-orders/internal/common/logger"
	"festival-orders/internal/domain"
)

// SnapshotFunc fetches the current canonical state of a tenant.
type SnapshotFunc func(ctx context.Context, tenantID string) (*domain.Snapshot, error)

type Hub struct {
	mu       sync.Mutex
	streams  map[string]*stream
	taps     []func(domain.Event)
	snapshot SnapshotFunc

	buffer       int
	pollInterval time.Duration
	lg           *logger.Logger
}

type stream struct {
	seq     uint64
	nextSub uint64
	subs    map[uint64]*subscriber
}

type subscriber struct {
	ch     chan domain.Event
	lagged bool
}

func New(snapshot SnapshotFunc, buffer int, pollInterval time.Duration) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Hub{
		streams:      make(map[string]*stream),
		snapshot:     snapshot,
		buffer:       buffer,
		pollInterval: pollInterval,
		lg:           logger.New("hub"),
	}
}

func (h *Hub) streamLocked(tenantID string) *stream {
	st, ok := h.streams[tenantID]
	if !ok {
		st = &stream{subs: make(map[uint64]*subscriber)}
		h.streams[tenantID] = st
	}
	return st
}

// Subscribe registers the callback and returns an idempotent unsubscribe
// function. The callback first receives a snapshot event, then incremental
// events in per-tenant commit order. Events committed between registration
// and the snapshot fetch may be delivered again after the snapshot; applying
// them is idempotent against state already contained in it.
func (h *Hub) Subscribe(ctx context.Context, tenantID string, fn func(domain.Event)) (func(), error) {
	sub := &subscriber{ch: make(chan domain.Event, h.buffer)}

	h.mu.Lock()
	st := h.streamLocked(tenantID)
	id := st.nextSub
	st.nextSub++
	st.subs[id] = sub
	h.mu.Unlock()

	snap, err := h.snapshot(ctx, tenantID)
	if err != nil {
		h.removeSub(tenantID, id)
		return nil, err
	}

	go func() {
		fn(domain.Event{TenantID: tenantID, Type: domain.EventSnapshot, At: time.Now().UTC(), Snapshot: snap})
		for ev := range sub.ch {
			fn(ev)
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { h.removeSub(tenantID, id) })
	}
	return unsubscribe, nil
}

func (h *Hub) removeSub(tenantID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.streams[tenantID]
	if !ok {
		return
	}
	sub, ok := st.subs[id]
	if !ok {
		return
	}
	delete(st.subs, id)
	close(sub.ch)
}

// Publish assigns the tenant's next sequence number and fans the event out.
// A subscriber whose buffer is full is marked lagged and skipped; the poll
// loop brings it back in sync with a fresh snapshot.
func (h *Hub) Publish(ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.streamLocked(ev.TenantID)
	st.seq++
	ev.Seq = st.seq
	for _, tap := range h.taps {
		tap(ev)
	}
	for _, sub := range st.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.lagged = true
			h.lg.Debug("subscriber_lagged", map[string]any{"tenant_id": ev.TenantID})
		}
	}
}

// Tap registers a forwarder invoked for every published event of every
// tenant, in publish order. Used by the AMQP bridge.
func (h *Hub) Tap(fn func(domain.Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.taps = append(h.taps, fn)
}

// StartPolling runs the reconciliation loop until ctx is cancelled: each
// interval every subscribed tenant gets a fresh snapshot event, which is
// idempotent against diffs that were already applied.
func (h *Hub) StartPolling(ctx context.Context) {
	go func() {
		t := time.NewTicker(h.pollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				h.pollOnce(ctx)
			}
		}
	}()
}

func (h *Hub) pollOnce(ctx context.Context) {
	h.mu.Lock()
	tenants := make([]string, 0, len(h.streams))
	for id, st := range h.streams {
		if len(st.subs) > 0 {
			tenants = append(tenants, id)
		}
	}
	h.mu.Unlock()

	for _, tenantID := range tenants {
		snap, err := h.snapshot(ctx, tenantID)
		if err != nil {
			h.lg.Error("poll_snapshot_failed", err, map[string]any{"tenant_id": tenantID})
			continue
		}
		ev := domain.Event{TenantID: tenantID, Type: domain.EventSnapshot, At: time.Now().UTC(), Snapshot: snap}
		h.mu.Lock()
		st, ok := h.streams[tenantID]
		if ok {
			for _, sub := range st.subs {
				select {
				case sub.ch <- ev:
					sub.lagged = false
				default:
				}
			}
		}
		h.mu.Unlock()
	}
}
