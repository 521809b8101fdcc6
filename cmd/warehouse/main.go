package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"Warehouse/internal/config"
	"Warehouse/internal/inventory"
	"Warehouse/pkg/kit"
)

const service = "warehouse"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := kit.NewLogger(service, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("configuration loaded", zap.Stringer("config", cfg))

	if err := run(context.Background(), cfg, log); err != nil {
		log.Fatal("warehouse stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &inventory.Server{
		Service: inventory.NewService(store, log, inventory.NewMetrics(reg)),
		Log:     log,
	}
	if cfg.RateLimit.Writes > 0 {
		s.WriteLimiter = kit.NewIPRateLimiter(cfg.RateLimit.Writes, cfg.RateLimit.Window)
		s.WriteLimiter.TrustForwarded = cfg.RateLimit.TrustProxy
	}

	h := inventory.NewHandler(s, inventory.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
	})

	return kit.RunHTTPServer(ctx, cfg.Addr(), h, log, cfg.Shutdown.Timeout)
}

func openStore(ctx context.Context, cfg *config.Config) (inventory.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return inventory.NewMemStore(), func() {}, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		ps := inventory.NewPostgresStore(pool)
		if err := ps.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return ps, pool.Close, nil

	default:
		fs := inventory.NewFileStore(cfg.Store.Path)
		if err := fs.EnsureExists(); err != nil {
			return nil, nil, fmt.Errorf("prepare store file: %w", err)
		}
		return fs, func() {}, nil
	}
}
