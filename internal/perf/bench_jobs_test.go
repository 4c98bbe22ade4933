package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/odyssey-erp/franchise-ops/internal/jobs"
)

func TestStockJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	for i := 0; i < 40; i++ {
		tracker := metrics.Track("inventory.low_stock_snapshot")
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending snapshot tracker: %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		tracker := metrics.Track("maintenance.idempotency_cleanup")
		time.Sleep(10 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending cleanup tracker: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		tracker := metrics.Track("inventory.low_stock_snapshot")
		if err := tracker.End(errors.New("redis timeout")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}
	metrics.SetStockSnapshot("fr-1", 3, 80)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": "inventory.low_stock_snapshot", "status": "success"})
	failure := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": "inventory.low_stock_snapshot", "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no snapshot executions recorded")
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("snapshot success ratio too low: %f", ratio)
	}

	if mean := histogramMean(t, families, "odyssey_job_duration_seconds", map[string]string{"job": "maintenance.idempotency_cleanup"}); mean > 2.0 {
		t.Fatalf("cleanup duration above budget: %f", mean)
	}
	if low := metricValue(t, families, "franchise_inventory_low_stock_items", map[string]string{"franchise": "fr-1"}); low != 3 {
		t.Fatalf("expected 3 low stock items, got %f", low)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
