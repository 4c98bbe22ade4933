package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StatusChangedEvent is emitted after an order status change commits.
type StatusChangedEvent struct {
	OrderID     string
	FranchiseID string
	From        Status
	To          Status
	PaymentMode PaymentMode
	Total       decimal.Decimal
	At          time.Time
}

// IntegrationHandler receives order events after commit.
type IntegrationHandler interface {
	HandleOrderStatusChanged(ctx context.Context, evt StatusChangedEvent) error
}
