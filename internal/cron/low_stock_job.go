package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/internal/analytics/types"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
	"github.com/angelmondragon/feedledger-backend/pkg/metrics"
	"github.com/angelmondragon/feedledger-backend/pkg/outbox"
	"github.com/angelmondragon/feedledger-backend/pkg/outbox/payloads"
)

const defaultAutonomyAlertDays = 3

// autonomyAggregateID is the fixed aggregate for organisation-wide autonomy alerts.
var autonomyAggregateID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("feedledger.autonomy"))

type statsReader interface {
	Stats(ctx context.Context, windowDays int) (*types.Stats, error)
}

type LowStockScanJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Stats      statsReader
	Outbox     outboxEmitter
	Metrics    *metrics.StockMetrics
	WindowDays int
	// AlertDays is the autonomy floor below which an alert is queued.
	AlertDays int
}

// NewLowStockScanJob refreshes the stock gauges and queues an autonomy alert
// when remaining feed covers fewer than AlertDays days.
func NewLowStockScanJob(params LowStockScanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Stats == nil {
		return nil, fmt.Errorf("stats reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	alertDays := params.AlertDays
	if alertDays <= 0 {
		alertDays = defaultAutonomyAlertDays
	}
	return &lowStockScanJob{
		logg:       params.Logger,
		db:         params.DB,
		stats:      params.Stats,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		windowDays: params.WindowDays,
		alertDays:  alertDays,
		now:        time.Now,
	}, nil
}

type lowStockScanJob struct {
	logg       *logger.Logger
	db         txRunner
	stats      statsReader
	outbox     outboxEmitter
	metrics    *metrics.StockMetrics
	windowDays int
	alertDays  int
	now        func() time.Time
}

func (j *lowStockScanJob) Name() string { return "low-stock-scan" }

func (j *lowStockScanJob) Run(ctx context.Context) error {
	stats, err := j.stats.Stats(ctx, j.windowDays)
	if err != nil {
		return fmt.Errorf("load stock stats: %w", err)
	}

	byFeedType := make(map[string]float64, len(stats.ByFeedType))
	for _, total := range stats.ByFeedType {
		byFeedType[string(total.FeedType)] = total.QuantityKg.InexactFloat64()
	}
	j.metrics.SetSnapshot(byFeedType, stats.LowStockCount, stats.DaysAutonomy.InexactFloat64(), stats.AvgDailyConsumption.InexactFloat64())

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"total_quantity_kg": stats.TotalQuantityKg.StringFixed(2),
		"low_stock_count":   stats.LowStockCount,
		"days_autonomy":     stats.DaysAutonomy.StringFixed(1),
		"window_days":       stats.WindowDays,
	})

	// Without consumption autonomy is reported as zero; that is not an alert.
	floor := decimal.NewFromInt(int64(j.alertDays))
	if !stats.AvgDailyConsumption.IsPositive() || !stats.DaysAutonomy.LessThan(floor) {
		j.logg.Info(logCtx, "stock scan complete")
		return nil
	}

	detectedAt := j.now().UTC()
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFeedAutonomyLow,
			AggregateType: enums.AggregateFeedStockItem,
			AggregateID:   autonomyAggregateID,
			OccurredAt:    detectedAt,
			Data: payloads.AutonomyLowEvent{
				TotalQuantityKg:     stats.TotalQuantityKg,
				AvgDailyConsumption: stats.AvgDailyConsumption,
				DaysAutonomy:        stats.DaysAutonomy,
				ThresholdDays:       j.alertDays,
				WindowDays:          stats.WindowDays,
				DetectedAt:          detectedAt,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("queue autonomy alert: %w", err)
	}
	j.logg.Warn(logCtx, "feed autonomy below alert floor")
	return nil
}
