package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"festival-orders/internal/api"
	"festival-orders/internal/common/config"
	"festival-orders/internal/common/db"
	"festival-orders/internal/common/httpx"
	"festival-orders/internal/common/logger"
	"festival-orders/internal/common/mq"
	"festival-orders/internal/hub"
	"festival-orders/internal/ledger"
	"festival-orders/internal/lifecycle"
	"festival-orders/internal/offline"
	"festival-orders/internal/ratelimit"
	"festival-orders/internal/registry"
	"festival-orders/internal/repository"
	"festival-orders/internal/stats"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	lg := logger.New("festival-orders")

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo *repository.Repository
	switch cfg.Storage {
	case "postgres":
		dsn := db.DSN(cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Pass, cfg.Database.Name)
		if err := repository.Migrate(dsn); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		conn, err := db.Connect(ctx, cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Pass, cfg.Database.Name)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer conn.Close()
		repo = repository.NewPostgres(conn.Pool)
		lg.Info("storage_ready", map[string]any{"backend": "postgres", "host": cfg.Database.Host})
	default:
		repo = repository.NewMemory()
		lg.Info("storage_ready", map[string]any{"backend": "memory"})
	}

	h := hub.New(hub.RepoSnapshot(repo), cfg.Hub.BufferSize, cfg.Hub.PollInterval.Std())
	h.StartPolling(ctx)

	if cfg.Rabbit.Host != "" {
		client, err := mq.Dial(cfg.Rabbit.Host, cfg.Rabbit.Port, cfg.Rabbit.User, cfg.Rabbit.Pass)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer client.Close()
		if err := client.DeclareAll(); err != nil {
			return fmt.Errorf("declare topology: %w", err)
		}
		hub.NewBridge(client).Attach(ctx, h)
		lg.Info("event_bridge_attached", map[string]any{"exchange": mq.EventsExchange})
	}

	reg := registry.New(repo.Tenants, h)
	led := ledger.New(repo.Menu, repo.Keys, h)
	agg := stats.New(repo.Stats, repo.Orders)
	lc := lifecycle.New(repo, led, agg, h)
	limiter := ratelimit.New(rateRules(cfg.Rate))

	queue, err := offline.Open(cfg.Offline.JournalPath, &offline.CoreExecutor{Lifecycle: lc, Ledger: led}, offline.Config{
		MaxRetries:  cfg.Offline.MaxRetries,
		BaseBackoff: cfg.Offline.BaseBackoff.Std(),
		MaxBackoff:  cfg.Offline.MaxBackoff.Std(),
	})
	if err != nil {
		return fmt.Errorf("open offline journal: %w", err)
	}
	// drain anything left over from a previous run
	go func() {
		if err := queue.Replay(ctx); err != nil && ctx.Err() == nil {
			lg.Error("offline_replay_failed", err, nil)
		}
	}()

	handler := api.NewHandler(reg, led, lc, agg, h, limiter, queue)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	lg.Info("server_starting", map[string]any{"addr": addr})
	return httpx.New(addr, handler.Router()).Run(ctx)
}

func rateRules(cfg map[string]config.RateRule) map[string]ratelimit.Rule {
	if len(cfg) == 0 {
		return ratelimit.DefaultRules
	}
	rules := make(map[string]ratelimit.Rule, len(cfg))
	for action, r := range cfg {
		rules[action] = ratelimit.Rule{
			MaxRequests:   r.MaxRequests,
			Window:        r.Window.Std(),
			BlockDuration: r.BlockDuration.Std(),
		}
	}
	return rules
}
