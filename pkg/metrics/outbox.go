package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OutboxMetrics tracks what the publisher does with each outbox row.
type OutboxMetrics struct {
	outcomes *prometheus.CounterVec
	batch    prometheus.Histogram
	pending  prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	factory := promauto.With(reg)
	return &OutboxMetrics{
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedledger_outbox_events_total",
			Help: "Outbox rows handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batch: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedledger_outbox_batch_duration_seconds",
			Help:    "Wall time of one publish batch including the transaction.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feedledger_outbox_batch_rows",
			Help: "Rows claimed by the most recent publish batch.",
		}),
	}
}

func (m *OutboxMetrics) Observe(eventType, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveBatch records one poll. rows is zero for an idle poll.
func (m *OutboxMetrics) ObserveBatch(rows int, elapsed time.Duration) {
	if m == nil || m.batch == nil {
		return
	}
	m.pending.Set(float64(rows))
	if rows > 0 {
		m.batch.Observe(elapsed.Seconds())
	}
}
