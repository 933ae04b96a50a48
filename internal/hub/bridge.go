package hub

import (
	"context"
	"encoding/json"

	"festival-orders/internal/common/logger"
	"festival-orders/internal/common/mq"
	"festival-orders/internal/domain"
)

// Bridge forwards every committed event to the AMQP topic exchange with
// routing key tenant.<id>.<event-type>, so out-of-process consumers (kitchen
// displays) see the same per-tenant stream. Publishing happens on a single
// goroutine fed from a buffered channel to keep the hub's publish path free
// of broker latency.
type Bridge struct {
	client *mq.Client
	events chan domain.Event
	lg     *logger.Logger
}

func NewBridge(client *mq.Client) *Bridge {
	return &Bridge{
		client: client,
		events: make(chan domain.Event, 256),
		lg:     logger.New("hub-bridge"),
	}
}

// Attach taps the hub and starts the forwarding loop.
func (b *Bridge) Attach(ctx context.Context, h *Hub) {
	h.Tap(func(ev domain.Event) {
		select {
		case b.events <- ev:
		default:
			b.lg.Error("bridge_overflow", nil, map[string]any{"tenant_id": ev.TenantID, "seq": ev.Seq})
		}
	})
	go b.run(ctx)
}

func (b *Bridge) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			body, err := json.Marshal(ev)
			if err != nil {
				b.lg.Error("bridge_marshal_failed", err, nil)
				continue
			}
			key := "tenant." + ev.TenantID + "." + string(ev.Type)
			if err := b.client.PublishPersistent(ctx, mq.EventsExchange, key, body); err != nil {
				b.lg.Error("bridge_publish_failed", err, map[string]any{"routing_key": key})
			}
		}
	}
}
