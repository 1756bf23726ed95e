// cartd runs the cart resilience engine as a local daemon: it keeps the
// authoritative cart state in memory, confirms mutations against the remote
// order service with retry, and persists recovery snapshots so a crash or a
// failed sync never loses the user's cart.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/harvestly/cart-engine/api/routes"
	"github.com/harvestly/cart-engine/internal/backup"
	"github.com/harvestly/cart-engine/internal/boundary"
	cartstore "github.com/harvestly/cart-engine/internal/cart"
	"github.com/harvestly/cart-engine/internal/retry"
	ordersync "github.com/harvestly/cart-engine/internal/sync"
	"github.com/harvestly/cart-engine/pkg/config"
	"github.com/harvestly/cart-engine/pkg/keyval"
	"github.com/harvestly/cart-engine/pkg/logger"
	"github.com/harvestly/cart-engine/pkg/metrics"
)

const shutdownGrace = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "cartd"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cartd",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	kv, closeKV, err := newKeyvalStore(context.Background(), cfg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap storage", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	met := metrics.NewCartMetrics(registry)

	backupStore, err := backup.NewStore(kv, logg, met)
	if err != nil {
		logg.Error(context.Background(), "failed to create backup store", err)
		os.Exit(1)
	}

	orderClient, err := ordersync.NewHTTPClient(cfg.OrderService)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service client", err)
		os.Exit(1)
	}
	scheduler := retry.New(cfg.Retry, logg)
	coordinator := ordersync.NewCoordinator(orderClient, scheduler, logg, met)

	store, err := cartstore.NewStore(context.Background(), cartstore.StoreParams{
		Syncer:  coordinator,
		Backup:  backupStore,
		Session: kv,
		Logger:  logg,
		Metrics: met,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart store", err)
		os.Exit(1)
	}

	reporter := boundary.NewLogReporter(logg)
	region := boundary.New(boundary.Options{
		Component:  "cart_panel",
		MaxRetries: cfg.Boundary.MaxRetries,
		Reporter:   reporter,
		Logger:     logg,
		Metrics:    met,
		Preserve: func(ctx context.Context) error {
			return backupStore.Preserve(ctx, store.State().Items, backup.ReasonBoundary)
		},
		Restore: func(ctx context.Context) error {
			if !store.RecoverCart(ctx) {
				return errors.New("no preserved state to restore")
			}
			return nil
		},
		Reset: func(ctx context.Context) error {
			var err error
			if !store.Clear(ctx) {
				err = errors.New("clearing cart state failed")
			}
			return multierr.Append(err, backupStore.Clear(ctx))
		},
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"backend": cfg.Backup.Backend,
	})
	logg.Info(ctx, "starting cart engine")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, kv, store, region, reporter, registry),
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "cart engine stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	var closeErr error
	closeErr = multierr.Append(closeErr, server.Shutdown(shutdownCtx))
	store.Close()
	if closeKV != nil {
		closeErr = multierr.Append(closeErr, closeKV())
	}
	if closeErr != nil {
		logg.Error(ctx, "error shutting down", closeErr)
		os.Exit(1)
	}
	logg.Info(ctx, "cart engine shutting down gracefully")
}

// newKeyvalStore selects the persistence backend for session state and
// recovery snapshots.
func newKeyvalStore(ctx context.Context, cfg *config.Config) (keyval.Store, func() error, error) {
	switch cfg.Backup.Backend {
	case config.BackupBackendRedis:
		client, err := keyval.NewRedis(ctx, cfg.Redis, cfg.App.SessionID)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	case config.BackupBackendSQLite:
		client, err := keyval.NewSQLite(cfg.SQLite)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	default:
		return keyval.NewFile(cfg.Backup.FilePath), nil, nil
	}
}
