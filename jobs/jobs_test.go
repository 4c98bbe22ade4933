package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/franchise-ops/internal/inventory"
	jobmetrics "github.com/odyssey-erp/franchise-ops/internal/jobs"
)

type stubStock struct {
	franchises []string
	stats      map[string]inventory.Stats
	err        error
	seen       []string
}

func (s *stubStock) ListFranchises(ctx context.Context) ([]string, error) {
	return s.franchises, nil
}

func (s *stubStock) Stats(ctx context.Context, franchiseID string) (inventory.Stats, error) {
	s.seen = append(s.seen, franchiseID)
	if s.err != nil {
		return inventory.Stats{}, s.err
	}
	return s.stats[franchiseID], nil
}

func TestLowStockSnapshotCoversEveryFranchise(t *testing.T) {
	stock := &stubStock{
		franchises: []string{"fr-1", "fr-2"},
		stats: map[string]inventory.Stats{
			"fr-1": {TotalItems: 4, HealthyCount: 2, LowStockCount: 1, OutOfStockCount: 1, HealthPercentage: 50},
			"fr-2": {TotalItems: 1, HealthyCount: 1, HealthPercentage: 100},
		},
	}
	job := NewLowStockSnapshotJob(stock, stock, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewLowStockSnapshotTask("")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []string{"fr-1", "fr-2"}, stock.seen)
}

func TestLowStockSnapshotSingleFranchise(t *testing.T) {
	stock := &stubStock{franchises: []string{"fr-1", "fr-2"}}
	job := NewLowStockSnapshotJob(stock, stock, nil, nil)
	task, err := NewLowStockSnapshotTask("fr-2")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []string{"fr-2"}, stock.seen)
}

func TestLowStockSnapshotPropagatesFailure(t *testing.T) {
	stock := &stubStock{franchises: []string{"fr-1"}, err: errors.New("db down")}
	job := NewLowStockSnapshotJob(stock, stock, nil, nil)
	task, err := NewLowStockSnapshotTask("")
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
}

func TestLowStockSnapshotRejectsBadPayload(t *testing.T) {
	stock := &stubStock{}
	job := NewLowStockSnapshotJob(stock, stock, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLowStockSnapshot, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubPurger struct {
	retention time.Duration
	removed   int64
}

func (p *stubPurger) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	p.retention = olderThan
	return p.removed, nil
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	purger := &stubPurger{removed: 3}
	job := NewIdempotencyCleanupJob(purger, nil, nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, DefaultIdempotencyRetention, purger.retention)

	task, err := NewIdempotencyCleanupTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, purger.retention)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealth(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h.MountRoutes(r)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rr
	}

	rr := serve(NewHandler(nil, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2}}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 2, body.Pending)

	rr = serve(NewHandler(stubInspector{err: errors.New("redis down")}, nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
