package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/franchise-ops/internal/inventory"
	jobmetrics "github.com/odyssey-erp/franchise-ops/internal/jobs"
)

// FranchiseLister enumerates franchises holding stock.
type FranchiseLister interface {
	ListFranchises(ctx context.Context) ([]string, error)
}

// StockStats computes stock health for one franchise.
type StockStats interface {
	Stats(ctx context.Context, franchiseID string) (inventory.Stats, error)
}

// LowStockSnapshotJob exports per-franchise stock health as gauges and logs.
type LowStockSnapshotJob struct {
	Franchises FranchiseLister
	Stock      StockStats
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewLowStockSnapshotJob wires dependencies for the snapshot handler.
func NewLowStockSnapshotJob(franchises FranchiseLister, stock StockStats, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockSnapshotJob {
	return &LowStockSnapshotJob{Franchises: franchises, Stock: stock, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLowStockSnapshot tasks.
func (j *LowStockSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stock == nil {
		return errors.New("low stock snapshot: handler not configured")
	}
	var payload LowStockSnapshotPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := time.Now()
	tracker := j.Metrics.Track(TaskLowStockSnapshot)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	franchises := []string{payload.FranchiseID}
	if payload.FranchiseID == "" {
		if j.Franchises == nil {
			resultErr = errors.New("low stock snapshot: franchise lister not configured")
			return resultErr
		}
		ids, err := j.Franchises.ListFranchises(ctx)
		if err != nil {
			resultErr = err
			logger.Error("list franchises", slog.Any("error", err))
			return resultErr
		}
		franchises = ids
	}

	for _, id := range franchises {
		stats, err := j.Stock.Stats(ctx, id)
		if err != nil {
			resultErr = err
			logger.Error("compute stock stats", slog.String("franchise_id", id), slog.Any("error", err))
			return resultErr
		}
		low := stats.LowStockCount + stats.OutOfStockCount
		j.Metrics.SetStockSnapshot(id, low, stats.HealthPercentage)
		level := slog.LevelInfo
		if low > 0 {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "stock snapshot",
			slog.String("franchise_id", id),
			slog.Int("total_items", stats.TotalItems),
			slog.Int("low_stock", stats.LowStockCount),
			slog.Int("out_of_stock", stats.OutOfStockCount),
			slog.Int("health_percentage", stats.HealthPercentage),
		)
	}

	logger.Info("completed stock snapshot",
		slog.Int("franchises", len(franchises)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LowStockSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskLowStockSnapshot))
}
