package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1767225600, 0) }

	m.ObserveJob("low-stock-scan", 250*time.Millisecond, nil)
	m.ObserveJob("low-stock-scan", time.Second, errors.New("db down"))
	m.ObserveJob("outbox-retention", time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("low-stock-scan", CronOutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("low-stock-scan", CronOutcomeFailure)))
	assert.Equal(t, 1767225600.0, testutil.ToFloat64(m.lastSuccess.WithLabelValues("outbox-retention")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	hist := histogramFor(t, mfs, "feedledger_cron_job_duration_seconds", "low-stock-scan")
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 1.25, hist.GetSampleSum(), 1e-9)
}

func TestCronJobMetricsSkippedAndUnknownJob(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	m.IncSkipped()
	m.IncSkipped()
	m.ObserveJob("", 0, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.skipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", CronOutcomeSuccess)))
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	var m *CronJobMetrics
	assert.NotPanics(t, func() {
		m.ObserveJob("x", time.Second, nil)
		m.IncSkipped()
		NewCronJobMetrics(nil).ObserveJob("x", time.Second, errors.New("x"))
	})
}

func histogramFor(t *testing.T, mfs []*dto.MetricFamily, name, job string) *dto.Histogram {
	t.Helper()
	metric, err := metricWithLabel(mfs, name, "job", job)
	require.NoError(t, err)
	return metric.GetHistogram()
}
