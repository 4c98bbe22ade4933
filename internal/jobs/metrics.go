package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lowStock    *prometheus.GaugeVec
	stockHealth *prometheus.GaugeVec
	keysPurged  prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetStockSnapshot publishes the last low stock snapshot for a franchise.
func (m *Metrics) SetStockSnapshot(franchiseID string, lowStock, healthPercentage int) {
	if m == nil || franchiseID == "" {
		return
	}
	m.lowStock.WithLabelValues(franchiseID).Set(float64(lowStock))
	m.stockHealth.WithLabelValues(franchiseID).Set(float64(healthPercentage))
}

// AddPurgedKeys counts idempotency keys removed by the cleanup job.
func (m *Metrics) AddPurgedKeys(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.keysPurged.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	lowStock := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "franchise_inventory_low_stock_items",
		Help: "Items at or below their reorder target at the last snapshot.",
	}, []string{"franchise"})
	health := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "franchise_inventory_health_percentage",
		Help: "Share of items above their reorder target at the last snapshot.",
	}, []string{"franchise"})
	purged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_idempotency_keys_purged_total",
		Help: "Idempotency keys removed by the retention job.",
	})
	registerer.MustRegister(runs, failures, duration, lowStock, health, purged)
	return &Metrics{
		runs:        runs,
		failures:    failures,
		duration:    duration,
		lowStock:    lowStock,
		stockHealth: health,
		keysPurged:  purged,
	}
}
