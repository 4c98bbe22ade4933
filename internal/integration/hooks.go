package integration

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/franchise-ops/internal/cod"
	"github.com/odyssey-erp/franchise-ops/internal/orders"
	"github.com/odyssey-erp/franchise-ops/internal/receiving"
)

// Message is one outbound event.
type Message struct {
	RoutingKey string
	ID         string
	Timestamp  time.Time
	Body       []byte
	Headers    map[string]any
}

// Publisher delivers messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// StockSnapshotter queues a stock health refresh for one franchise.
type StockSnapshotter interface {
	EnqueueLowStockSnapshot(ctx context.Context, franchiseID string) (*asynq.TaskInfo, error)
}

// Hooks forwards committed domain events from the operational modules to the
// message broker and queues stock snapshots after stock moved.
type Hooks struct {
	publisher Publisher
	snapshots StockSnapshotter
	logger    *slog.Logger
}

// NewHooks constructs integration hooks. A nil publisher turns every hook
// into a no-op.
func NewHooks(publisher Publisher, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{publisher: publisher, logger: logger.With(slog.String("component", "integration"))}
}

// WithStockSnapshots queues a low stock snapshot after every event that
// moved stock. Enqueue failures are logged and never fail the hook.
func (h *Hooks) WithStockSnapshots(snapshots StockSnapshotter) *Hooks {
	h.snapshots = snapshots
	return h
}

func (h *Hooks) refreshStock(ctx context.Context, franchiseID string) {
	if h.snapshots == nil || franchiseID == "" {
		return
	}
	if _, err := h.snapshots.EnqueueLowStockSnapshot(ctx, franchiseID); err != nil {
		h.logger.WarnContext(ctx, "enqueue stock snapshot", slog.String("franchise_id", franchiseID), slog.Any("error", err))
	}
}

// movesStock lists order states whose entry deducts or restores stock.
func movesStock(to orders.Status) bool {
	switch to {
	case orders.StatusPacked, orders.StatusDispatched, orders.StatusCancelled, orders.StatusReturnCompleted:
		return true
	}
	return false
}

func (h *Hooks) publish(ctx context.Context, routingKey, franchiseID, id string, at time.Time, data any) error {
	if at.IsZero() {
		return errors.New("integration: event time required")
	}
	body, err := json.Marshal(envelope{
		ID:          id,
		Type:        routingKey,
		FranchiseID: franchiseID,
		OccurredAt:  at.UTC(),
		Data:        data,
	})
	if err != nil {
		return err
	}
	err = h.publisher.Publish(ctx, Message{
		RoutingKey: routingKey,
		ID:         id,
		Timestamp:  at.UTC(),
		Body:       body,
		Headers:    map[string]any{"franchise_id": franchiseID, "event_type": routingKey},
	})
	if err != nil {
		return err
	}
	h.logger.DebugContext(ctx, "event published", slog.String("routing_key", routingKey), slog.String("message_id", id))
	return nil
}

// HandleOrderStatusChanged publishes an order status change.
func (h *Hooks) HandleOrderStatusChanged(ctx context.Context, evt orders.StatusChangedEvent) error {
	if h == nil {
		return nil
	}
	if movesStock(evt.To) {
		h.refreshStock(ctx, evt.FranchiseID)
	}
	if h.publisher == nil {
		return nil
	}
	if evt.OrderID == "" {
		return errors.New("integration: order id required")
	}
	id := messageID("ORDER", evt.OrderID, string(evt.To), strconv.FormatInt(evt.At.UnixNano(), 10))
	return h.publish(ctx, RoutingOrderStatusChanged, evt.FranchiseID, id, evt.At, orderStatusData{
		OrderID:     evt.OrderID,
		From:        string(evt.From),
		To:          string(evt.To),
		PaymentMode: string(evt.PaymentMode),
		Total:       evt.Total,
	})
}

// HandleGRNPosted publishes a posted GRN and its payable.
func (h *Hooks) HandleGRNPosted(ctx context.Context, evt receiving.GRNPostedEvent) error {
	if h == nil {
		return nil
	}
	h.refreshStock(ctx, evt.FranchiseID)
	if h.publisher == nil {
		return nil
	}
	if evt.GRNID == "" {
		return errors.New("integration: grn id required")
	}
	return h.publish(ctx, RoutingGRNPosted, evt.FranchiseID, messageID("GRN", evt.GRNID), evt.ReceivedAt, grnPostedData{
		GRNID:            evt.GRNID,
		PONumber:         evt.PONumber,
		Vendor:           evt.Vendor,
		POMatched:        evt.POMatched,
		TotalPayable:     evt.TotalPayable,
		TotalDeductions:  evt.TotalDeductions,
		SettlementStatus: evt.SettlementStatus,
	})
}

// HandleCODDeposited publishes a confirmed cash deposit.
func (h *Hooks) HandleCODDeposited(ctx context.Context, evt cod.DepositedEvent) error {
	if h == nil || h.publisher == nil {
		return nil
	}
	if evt.TransactionID == "" {
		return errors.New("integration: cod transaction id required")
	}
	return h.publish(ctx, RoutingCODDeposited, evt.FranchiseID, messageID("COD", evt.TransactionID), evt.DepositedAt, codDepositedData{
		TransactionID: evt.TransactionID,
		OrderID:       evt.OrderID,
		Amount:        evt.Amount,
		BankReference: evt.BankReference,
	})
}

var _ orders.IntegrationHandler = (*Hooks)(nil)
var _ receiving.IntegrationHandler = (*Hooks)(nil)
var _ cod.IntegrationHandler = (*Hooks)(nil)
var _ Publisher = (*Broker)(nil)
