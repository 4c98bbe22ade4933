package cod

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DepositedEvent is emitted after cash is confirmed in the bank.
type DepositedEvent struct {
	TransactionID string
	FranchiseID   string
	OrderID       string
	Amount        decimal.Decimal
	BankReference string
	DepositedAt   time.Time
}

// IntegrationHandler receives COD events after commit.
type IntegrationHandler interface {
	HandleCODDeposited(ctx context.Context, evt DepositedEvent) error
}
