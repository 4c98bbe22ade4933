package integration

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routing keys of the events published on the exchange.
const (
	RoutingOrderStatusChanged = "franchise.order.status_changed"
	RoutingGRNPosted          = "franchise.grn.posted"
	RoutingCODDeposited       = "franchise.cod.deposited"
)

// envelope wraps every payload with its identity and origin.
type envelope struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	FranchiseID string    `json:"franchise_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Data        any       `json:"data"`
}

type orderStatusData struct {
	OrderID     string          `json:"order_id"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	PaymentMode string          `json:"payment_mode"`
	Total       decimal.Decimal `json:"total"`
}

type grnPostedData struct {
	GRNID            string          `json:"grn_id"`
	PONumber         string          `json:"po_number"`
	Vendor           string          `json:"vendor"`
	POMatched        bool            `json:"po_matched"`
	TotalPayable     decimal.Decimal `json:"total_payable"`
	TotalDeductions  decimal.Decimal `json:"total_deductions"`
	SettlementStatus string          `json:"settlement_status"`
}

type codDepositedData struct {
	TransactionID string          `json:"transaction_id"`
	OrderID       string          `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	BankReference string          `json:"bank_reference"`
}

// messageID derives a stable id so consumers can drop redeliveries.
func messageID(kind string, parts ...string) string {
	return uuid.NewSHA1(uuid.Nil, []byte(kind+":"+strings.Join(parts, ":"))).String()
}
