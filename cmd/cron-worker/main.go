package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/feedledger-backend/internal/analytics"
	"github.com/angelmondragon/feedledger-backend/internal/analytics/query"
	"github.com/angelmondragon/feedledger-backend/internal/cron"
	"github.com/angelmondragon/feedledger-backend/internal/stock"
	"github.com/angelmondragon/feedledger-backend/pkg/config"
	"github.com/angelmondragon/feedledger-backend/pkg/db"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
	"github.com/angelmondragon/feedledger-backend/pkg/metrics"
	"github.com/angelmondragon/feedledger-backend/pkg/migrate"
	"github.com/angelmondragon/feedledger-backend/pkg/outbox"
	"github.com/angelmondragon/feedledger-backend/pkg/redis"
)

const workerName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: workerName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	if err := run(logg); err != nil {
		logg.Error(context.Background(), "cron worker failed", err)
		os.Exit(1)
	}
}

func run(logg *logger.Logger) error {
	boot := context.Background()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = workerName
	logg = logger.New(logger.Options{
		ServiceName: workerName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(boot, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer logClose(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(boot, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	lock, closeLock, err := buildLock(boot, cfg, logg)
	if err != nil {
		return err
	}
	defer closeLock()

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Schedule:   cfg.Cron.Schedule,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	ctx, stop := signal.NotifyContext(boot, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

// buildLock picks the in-process lock for single-replica deployments and a
// Redis lock otherwise. The returned func closes whatever was opened.
func buildLock(ctx context.Context, cfg *config.Config, logg *logger.Logger) (cron.Lock, func(), error) {
	if cfg.Cron.ProcessLock {
		return &cron.ProcessLock{}, func() {}, nil
	}
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	closeFn := func() { logClose(logg, "redis", redisClient.Close) }
	lock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("create cron lock: %w", err)
	}
	return lock, closeFn, nil
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()

	store, err := stock.NewStore(stock.NewRepository(conn), cfg.Ledger.DefaultMinQuantity())
	if err != nil {
		return nil, err
	}
	stats, err := analytics.NewService(store, query.NewConsumptionReader(conn), cfg.Ledger.StatsWindowDays, time.Now)
	if err != nil {
		return nil, err
	}

	lowStock, err := cron.NewLowStockScanJob(cron.LowStockScanJobParams{
		Logger:     logg,
		DB:         dbClient,
		Stats:      stats,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Metrics:    metrics.NewStockMetrics(prometheus.DefaultRegisterer),
		WindowDays: cfg.Ledger.StatsWindowDays,
		AlertDays:  cfg.Cron.AutonomyAlertDays,
	})
	if err != nil {
		return nil, err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Repository:   outbox.NewRepository(conn),
		DLQ:          outbox.NewDLQRepository(conn),
		Retention:    cfg.Cron.OutboxRetentionDays,
		DLQRetention: cfg.Cron.DLQRetentionDays,
		MinAttempts:  cfg.Cron.OutboxMinAttempts,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(lowStock, retention)
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cycle:" + env
}

func logClose(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
