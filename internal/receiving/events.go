package receiving

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// GRNPostedEvent is emitted after a GRN and its payable commit.
type GRNPostedEvent struct {
	GRNID            string
	FranchiseID      string
	PONumber         string
	Vendor           string
	POMatched        bool
	TotalPayable     decimal.Decimal
	TotalDeductions  decimal.Decimal
	SettlementStatus string
	ReceivedAt       time.Time
}

// IntegrationHandler receives receiving events after commit.
type IntegrationHandler interface {
	HandleGRNPosted(ctx context.Context, evt GRNPostedEvent) error
}
