package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/feedledger-backend/api/controllers"
	analyticscontrollers "github.com/angelmondragon/feedledger-backend/api/controllers/analytics"
	movementcontrollers "github.com/angelmondragon/feedledger-backend/api/controllers/movements"
	reconcilecontrollers "github.com/angelmondragon/feedledger-backend/api/controllers/reconcile"
	stockcontrollers "github.com/angelmondragon/feedledger-backend/api/controllers/stock"
	"github.com/angelmondragon/feedledger-backend/api/middleware"
	"github.com/angelmondragon/feedledger-backend/internal/analytics"
	"github.com/angelmondragon/feedledger-backend/internal/ledger"
	"github.com/angelmondragon/feedledger-backend/pkg/config"
	"github.com/angelmondragon/feedledger-backend/pkg/db"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
	"github.com/angelmondragon/feedledger-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/feedledger-backend/pkg/redis"
)

// RedisClient backs request idempotency and is pinged by the readiness probe.
type RedisClient interface {
	pkgredis.IdempotencyStore
	Ping(ctx context.Context) error
}

// Services are the domain entry points exposed over HTTP.
type Services struct {
	Stock      stockcontrollers.Reader
	Ledger     ledger.Service
	Reconciler reconcilecontrollers.Reconciler
	Analytics  analytics.Service
}

// NewRouter wires the HTTP surface. redisClient may be nil, in which case
// idempotency keys are not enforced. gatherer may be nil to disable /metrics.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient RedisClient,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		idempotencyStore pkgredis.IdempotencyStore
		redisPinger      controllers.Pinger
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		redisPinger = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.Dependency{Name: "db", Pinger: dbP},
			controllers.Dependency{Name: "redis", Pinger: redisPinger},
		))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/feed", func(r chi.Router) {
		r.Use(middleware.ClientID())
		r.Use(middleware.Idempotency(idempotencyStore, requestIdempotencyTTL(cfg), logg))

		r.Route("/stock", func(r chi.Router) {
			r.Get("/", stockcontrollers.List(svc.Stock, logg))
			r.Post("/restock", stockcontrollers.Restock(svc.Ledger, logg))
			r.Post("/consume", stockcontrollers.Consume(svc.Ledger, logg))
			r.Get("/{stockId}", stockcontrollers.Detail(svc.Stock, logg))
			r.Patch("/{stockId}/threshold", stockcontrollers.UpdateThreshold(svc.Stock, logg))
		})

		r.Route("/movements", func(r chi.Router) {
			r.Get("/", movementcontrollers.List(svc.Ledger, logg))
			r.Post("/{movementId}/reverse", movementcontrollers.Reverse(svc.Ledger, logg))
		})

		r.Post("/daily-entries/reconcile", reconcilecontrollers.Reconcile(svc.Reconciler, logg))

		r.Get("/stats", analyticscontrollers.Stats(svc.Analytics, logg))
		r.Get("/totals", analyticscontrollers.Totals(svc.Analytics, logg))
		r.Get("/consumption-trend", analyticscontrollers.ConsumptionTrend(svc.Analytics, logg))
	})

	return r
}

func requestIdempotencyTTL(cfg *config.Config) time.Duration {
	if cfg == nil {
		return 0
	}
	return cfg.Eventing.RequestIdempotencyTTL
}
