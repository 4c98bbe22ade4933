package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, metrics.Track("inventory:low_stock_snapshot").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("inventory:low_stock_snapshot").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("inventory:low_stock_snapshot", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("inventory:low_stock_snapshot", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("inventory:low_stock_snapshot")))
}

func TestSnapshotGauges(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.SetStockSnapshot("fr-1", 3, 70)
	metrics.SetStockSnapshot("fr-1", 2, 80)
	metrics.AddPurgedKeys(4)
	metrics.AddPurgedKeys(0)

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.lowStock.WithLabelValues("fr-1")))
	require.Equal(t, 80.0, testutil.ToFloat64(metrics.stockHealth.WithLabelValues("fr-1")))
	require.Equal(t, 4.0, testutil.ToFloat64(metrics.keysPurged))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	require.NoError(t, metrics.Track("x").End(nil))
	metrics.SetStockSnapshot("fr-1", 1, 1)
	metrics.AddPurgedKeys(1)
}
