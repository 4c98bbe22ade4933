package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/franchise-ops/internal/cod"
	"github.com/odyssey-erp/franchise-ops/internal/orders"
	"github.com/odyssey-erp/franchise-ops/internal/receiving"
)

type recordingPublisher struct {
	messages []Message
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, msg Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func TestHandleOrderStatusChanged(t *testing.T) {
	pub := &recordingPublisher{}
	hooks := NewHooks(pub, nil)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	evt := orders.StatusChangedEvent{
		OrderID:     "ord-1",
		FranchiseID: "fr-1",
		From:        orders.StatusOutForDelivery,
		To:          orders.StatusDelivered,
		PaymentMode: orders.PaymentCOD,
		Total:       decimal.RequireFromString("125.50"),
		At:          at,
	}

	require.NoError(t, hooks.HandleOrderStatusChanged(context.Background(), evt))
	require.NoError(t, hooks.HandleOrderStatusChanged(context.Background(), evt))
	require.Len(t, pub.messages, 2)

	msg := pub.messages[0]
	require.Equal(t, RoutingOrderStatusChanged, msg.RoutingKey)
	require.Equal(t, msg.ID, pub.messages[1].ID)
	require.Equal(t, "fr-1", msg.Headers["franchise_id"])

	var body struct {
		ID          string `json:"id"`
		FranchiseID string `json:"franchise_id"`
		Data        struct {
			OrderID string `json:"order_id"`
			To      string `json:"to"`
			Total   string `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	require.Equal(t, msg.ID, body.ID)
	require.Equal(t, "ord-1", body.Data.OrderID)
	require.Equal(t, "delivered", body.Data.To)
	require.Equal(t, "125.5", body.Data.Total)
}

func TestMessageIDsDifferPerTransition(t *testing.T) {
	pub := &recordingPublisher{}
	hooks := NewHooks(pub, nil)
	at := time.Now()
	base := orders.StatusChangedEvent{OrderID: "ord-1", FranchiseID: "fr-1", At: at}

	first, second := base, base
	first.To = orders.StatusPacked
	second.To = orders.StatusDispatched
	require.NoError(t, hooks.HandleOrderStatusChanged(context.Background(), first))
	require.NoError(t, hooks.HandleOrderStatusChanged(context.Background(), second))
	require.NotEqual(t, pub.messages[0].ID, pub.messages[1].ID)
}

func TestHandleGRNPostedAndDeposit(t *testing.T) {
	pub := &recordingPublisher{}
	hooks := NewHooks(pub, nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, hooks.HandleGRNPosted(ctx, receiving.GRNPostedEvent{
		GRNID: "grn-1", FranchiseID: "fr-1", PONumber: "PO-1", TotalPayable: decimal.NewFromInt(850), ReceivedAt: now,
	}))
	require.NoError(t, hooks.HandleCODDeposited(ctx, cod.DepositedEvent{
		TransactionID: "tx-1", FranchiseID: "fr-1", Amount: decimal.NewFromInt(20), BankReference: "BR1", DepositedAt: now,
	}))
	require.Len(t, pub.messages, 2)
	require.Equal(t, RoutingGRNPosted, pub.messages[0].RoutingKey)
	require.Equal(t, RoutingCODDeposited, pub.messages[1].RoutingKey)
}

func TestHooksValidateAndPropagate(t *testing.T) {
	ctx := context.Background()

	var nilHooks *Hooks
	require.NoError(t, nilHooks.HandleGRNPosted(ctx, receiving.GRNPostedEvent{}))
	require.NoError(t, NewHooks(nil, nil).HandleCODDeposited(ctx, cod.DepositedEvent{}))

	pub := &recordingPublisher{}
	hooks := NewHooks(pub, nil)
	require.Error(t, hooks.HandleGRNPosted(ctx, receiving.GRNPostedEvent{ReceivedAt: time.Now()}))
	require.Error(t, hooks.HandleCODDeposited(ctx, cod.DepositedEvent{TransactionID: "tx-1"}))
	require.Empty(t, pub.messages)

	boom := errors.New("broker down")
	hooks = NewHooks(&recordingPublisher{err: boom}, nil)
	err := hooks.HandleCODDeposited(ctx, cod.DepositedEvent{TransactionID: "tx-1", DepositedAt: time.Now()})
	require.ErrorIs(t, err, boom)
}

type recordingSnapshots struct {
	franchises []string
	err        error
}

func (s *recordingSnapshots) EnqueueLowStockSnapshot(ctx context.Context, franchiseID string) (*asynq.TaskInfo, error) {
	s.franchises = append(s.franchises, franchiseID)
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{Queue: "default"}, nil
}

func TestStockMovingEventsQueueSnapshots(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	snapshots := &recordingSnapshots{}
	hooks := NewHooks(nil, nil).WithStockSnapshots(snapshots)

	for _, to := range []orders.Status{orders.StatusPreparing, orders.StatusPacked, orders.StatusDelivered, orders.StatusReturnCompleted} {
		require.NoError(t, hooks.HandleOrderStatusChanged(ctx, orders.StatusChangedEvent{OrderID: "ord-1", FranchiseID: "fr-1", To: to, At: now}))
	}
	require.NoError(t, hooks.HandleGRNPosted(ctx, receiving.GRNPostedEvent{GRNID: "grn-1", FranchiseID: "fr-2", ReceivedAt: now}))
	require.Equal(t, []string{"fr-1", "fr-1", "fr-2"}, snapshots.franchises)

	pub := &recordingPublisher{}
	hooks = NewHooks(pub, nil).WithStockSnapshots(&recordingSnapshots{err: errors.New("redis down")})
	require.NoError(t, hooks.HandleOrderStatusChanged(ctx, orders.StatusChangedEvent{OrderID: "ord-1", FranchiseID: "fr-1", To: orders.StatusCancelled, At: now}))
	require.Len(t, pub.messages, 1)
}
