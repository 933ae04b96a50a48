// kitchen-display tails the kitchen queue and prints each order event as it
// is committed, so stall staff see placements and status changes without
// holding a websocket to the coordinator. Malformed deliveries are dead-
// lettered instead of requeued.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"

	"festival-orders/internal/common/config"
	"festival-orders/internal/common/logger"
	"festival-orders/internal/common/mq"
	"festival-orders/internal/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml")
	prefetch := flag.Int("prefetch", 10, "unacked deliveries per consumer")
	flag.Parse()

	lg := logger.New("kitchen-display")

	path := *configPath
	if path == "" {
		found, err := config.FindConfig()
		if err != nil {
			return fmt.Errorf("no config file found, pass -config")
		}
		path = found
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Rabbit.Host == "" {
		return fmt.Errorf("rabbitmq host is required for the kitchen display")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := mq.Dial(cfg.Rabbit.Host, cfg.Rabbit.Port, cfg.Rabbit.User, cfg.Rabbit.Pass)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer client.Close()
	if err := client.DeclareAll(); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	deliveries, err := client.Consume(mq.KitchenQueue, "kitchen-display", *prefetch)
	if err != nil {
		return fmt.Errorf("consume %s: %w", mq.KitchenQueue, err)
	}
	lg.Info("consumer_started", map[string]any{"queue": mq.KitchenQueue})

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			handle(lg, d)
		}
	}
}

func handle(lg *logger.Logger, d amqp.Delivery) {
	var ev domain.Event
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		lg.Error("bad_delivery", err, map[string]any{"routing_key": d.RoutingKey})
		_ = d.Nack(false, false) // dead-letter, do not requeue
		return
	}

	fields := map[string]any{"tenant_id": ev.TenantID, "seq": ev.Seq}
	if ev.Order != nil {
		fields["order_id"] = ev.Order.ID
		fields["pickup"] = ev.Order.PickupNumber
		fields["status"] = string(ev.Order.Status)
	}
	lg.Info(string(ev.Type), fields)
	_ = d.Ack(false)
}
