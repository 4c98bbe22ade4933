package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockSnapshot recomputes stock health for every franchise.
	TaskLowStockSnapshot = "inventory:low_stock_snapshot"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// DefaultIdempotencyRetention is how long GRN submission keys are remembered.
const DefaultIdempotencyRetention = 7 * 24 * time.Hour

// LowStockSnapshotPayload optionally narrows the snapshot to one franchise.
type LowStockSnapshotPayload struct {
	FranchiseID string `json:"franchise_id,omitempty"`
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewLowStockSnapshotTask constructs the snapshot task. An empty franchise
// covers every franchise.
func NewLowStockSnapshotTask(franchiseID string) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockSnapshotPayload{FranchiseID: franchiseID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockSnapshot, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
