package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics instruments stock mutations.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	quantity   *prometheus.CounterVec
	lockWait   *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedledger_ledger_operations_total",
		Help: "Ledger operations by kind and outcome (error code or ok).",
	}, []string{"operation", "outcome"})
	quantity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedledger_ledger_quantity_kg_total",
		Help: "Kilograms moved through committed movements.",
	}, []string{"feed_type", "movement_type"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedledger_ledger_lock_wait_seconds",
		Help:    "Time spent waiting for a stock item lock.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"operation"})
	reg.MustRegister(operations, quantity, lockWait)
	return &LedgerMetrics{operations: operations, quantity: quantity, lockWait: lockWait}
}

// ObserveOperation counts one ledger call with its outcome.
func (m *LedgerMetrics) ObserveOperation(operation, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// AddQuantity accumulates committed kilograms.
func (m *LedgerMetrics) AddQuantity(feedType, movementType string, kg float64) {
	if m == nil || m.quantity == nil || kg <= 0 {
		return
	}
	m.quantity.WithLabelValues(normalizeLabel(feedType), normalizeLabel(movementType)).Add(kg)
}

func (m *LedgerMetrics) ObserveLockWait(operation string, wait time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.WithLabelValues(normalizeLabel(operation)).Observe(wait.Seconds())
}

// StockMetrics exposes the latest stock scan as gauges.
type StockMetrics struct {
	quantity     *prometheus.GaugeVec
	lowItems     prometheus.Gauge
	daysAutonomy prometheus.Gauge
	avgDaily     prometheus.Gauge
}

func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	quantity := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feedledger_stock_quantity_kg",
		Help: "On-hand feed by feed type.",
	}, []string{"feed_type"})
	lowItems := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feedledger_stock_low_items",
		Help: "Stock items at or below their alert threshold.",
	})
	daysAutonomy := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feedledger_stock_days_autonomy",
		Help: "Days of feed left at the recent average consumption.",
	})
	avgDaily := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feedledger_stock_avg_daily_consumption_kg",
		Help: "Average daily consumption over the stats window.",
	})
	reg.MustRegister(quantity, lowItems, daysAutonomy, avgDaily)
	return &StockMetrics{quantity: quantity, lowItems: lowItems, daysAutonomy: daysAutonomy, avgDaily: avgDaily}
}

// SetSnapshot replaces every gauge with the values of one scan.
func (m *StockMetrics) SetSnapshot(byFeedType map[string]float64, lowItems int, daysAutonomy, avgDaily float64) {
	if m == nil || m.quantity == nil {
		return
	}
	m.quantity.Reset()
	for feedType, kg := range byFeedType {
		m.quantity.WithLabelValues(normalizeLabel(feedType)).Set(kg)
	}
	m.lowItems.Set(float64(lowItems))
	m.daysAutonomy.Set(daysAutonomy)
	m.avgDaily.Set(avgDaily)
}
