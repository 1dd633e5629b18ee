package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/feedledger-backend/pkg/config"
	"github.com/angelmondragon/feedledger-backend/pkg/db"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
	"github.com/angelmondragon/feedledger-backend/pkg/metrics"
	"github.com/angelmondragon/feedledger-backend/pkg/migrate"
	"github.com/angelmondragon/feedledger-backend/pkg/outbox"
	"github.com/angelmondragon/feedledger-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/feedledger-backend/pkg/outbox/registry"
	"github.com/angelmondragon/feedledger-backend/pkg/pubsub"
	"github.com/angelmondragon/feedledger-backend/pkg/redis"
)

func main() {
	boot := context.Background()
	logg := logger.New(logger.Options{ServiceName: publisherName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(boot, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(logg, boot, "failed to load config", err)
	}
	cfg.Service.Kind = publisherName
	logg = logger.New(logger.Options{
		ServiceName: publisherName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(boot, cfg.DB, logg)
	if err != nil {
		fatal(logg, boot, "failed to bootstrap database", err)
	}
	defer closeQuietly(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(boot, cfg, logg, dbClient); err != nil {
		fatal(logg, boot, "failed to run dev migrations", err)
	}

	pubsubClient, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		fatal(logg, boot, "failed to bootstrap pubsub", err)
	}
	defer closeQuietly(logg, "pubsub client", pubsubClient.Close)

	redisClient, err := redis.New(boot, cfg.Redis, logg)
	if err != nil {
		fatal(logg, boot, "failed to bootstrap redis", err)
	}
	defer closeQuietly(logg, "redis", redisClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		fatal(logg, boot, "failed to build event registry", err)
	}

	service, err := buildService(cfg, logg, dbClient, pubsubClient, redisClient, eventRegistry)
	if err != nil {
		fatal(logg, boot, "failed to create outbox publisher", err)
	}

	ctx, stop := signal.NotifyContext(boot, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"topics":      eventRegistry.Topics(),
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, pubsubClient *pubsub.Client, redisClient *redis.Client, eventRegistry *registry.EventRegistry) (*Service, error) {
	guard, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return nil, err
	}
	conn := dbClient.DB()
	return NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(conn),
		DLQRepository: outbox.NewDLQRepository(conn),
		Registry:      eventRegistry,
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		Guard:         guard,
	})
}

func fatal(logg *logger.Logger, ctx context.Context, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
