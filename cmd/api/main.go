package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/feedledger-backend/api/routes"
	"github.com/angelmondragon/feedledger-backend/internal/analytics"
	"github.com/angelmondragon/feedledger-backend/internal/analytics/query"
	"github.com/angelmondragon/feedledger-backend/internal/ledger"
	"github.com/angelmondragon/feedledger-backend/internal/locations"
	"github.com/angelmondragon/feedledger-backend/internal/reconcile"
	"github.com/angelmondragon/feedledger-backend/internal/stock"
	"github.com/angelmondragon/feedledger-backend/pkg/config"
	"github.com/angelmondragon/feedledger-backend/pkg/db"
	"github.com/angelmondragon/feedledger-backend/pkg/env"
	"github.com/angelmondragon/feedledger-backend/pkg/keylock"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
	"github.com/angelmondragon/feedledger-backend/pkg/metrics"
	"github.com/angelmondragon/feedledger-backend/pkg/migrate"
	"github.com/angelmondragon/feedledger-backend/pkg/outbox"
	"github.com/angelmondragon/feedledger-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	services, err := buildServices(cfg, logg, dbClient, redisClient, registry)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	addr := ":" + env.First(cfg.App.Port, "PORT")
	id := env.First("local", "DYNO", "HOSTNAME")
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, registry, metrics.NewHTTPMetrics(registry), services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (routes.Services, error) {
	conn := dbClient.DB()

	store, err := stock.NewStore(stock.NewRepository(conn), cfg.Ledger.DefaultMinQuantity())
	if err != nil {
		return routes.Services{}, err
	}
	resolver, err := locations.NewResolver(locations.NewRepository(conn))
	if err != nil {
		return routes.Services{}, err
	}
	locker, err := buildLocker(cfg.Ledger, logg, redisClient)
	if err != nil {
		return routes.Services{}, err
	}

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Tx:        dbClient,
		Repo:      ledger.NewRepository(conn),
		Stock:     store,
		Locations: resolver,
		Locker:    locker,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Metrics:   metrics.NewLedgerMetrics(reg),
		Logger:    logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	reconciler, err := reconcile.NewService(store, ledgerSvc, logg)
	if err != nil {
		return routes.Services{}, err
	}

	analyticsSvc, err := analytics.NewService(store, query.NewConsumptionReader(conn), cfg.Ledger.StatsWindowDays, time.Now)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Stock:      store,
		Ledger:     ledgerSvc,
		Reconciler: reconciler,
		Analytics:  analyticsSvc,
	}, nil
}

// buildLocker serialises mutations per stock key. Redis locks are needed once
// more than one api replica writes to the same database.
func buildLocker(cfg config.LedgerConfig, logg *logger.Logger, redisClient *redis.Client) (keylock.Locker, error) {
	if !cfg.UseRedisLocks {
		return keylock.NewLocal(cfg.LockWait), nil
	}
	locker, err := keylock.NewRedis(keylock.RedisParams{
		Client:  redisClient,
		KeyFunc: redisClient.StockLockKey,
		TTL:     cfg.LockTTL,
		Wait:    cfg.LockWait,
		OnReleaseError: func(ctx context.Context, key string, err error) {
			logg.Error(logg.WithStockKey(ctx, key), "stock lock release failed", err)
		},
	})
	if err != nil {
		return nil, err
	}
	return locker, nil
}
