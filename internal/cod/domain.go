package cod

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// Status is the settlement state of collected cash.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDeposited Status = "deposited"
)

// ParseStatus validates a status filter value.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusDeposited:
		return StatusDeposited, nil
	}
	return "", shared.InvalidInput("cod: unknown status %q", raw)
}

// Transaction is cash collected on delivery of one order.
type Transaction struct {
	ID            string          `json:"id"`
	FranchiseID   string          `json:"franchise_id"`
	OrderID       string          `json:"order_id"`
	HotelName     string          `json:"hotel_name"`
	Amount        decimal.Decimal `json:"amount"`
	CollectedBy   string          `json:"collected_by"`
	Timestamp     time.Time       `json:"timestamp"`
	Status        Status          `json:"status"`
	BankReference string          `json:"bank_reference,omitempty"`
	DepositDate   *time.Time      `json:"deposit_date,omitempty"`
}

// CollectionInput describes cash handed over by a delivery partner.
type CollectionInput struct {
	OrderID     string
	HotelName   string
	Amount      decimal.Decimal
	CollectedBy string
}

// Filter narrows listings and summaries. Zero values match everything.
type Filter struct {
	Status Status
	From   *time.Time
	To     *time.Time
}

// Matches reports whether tx falls inside the filter.
func (f Filter) Matches(tx Transaction) bool {
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.From != nil && tx.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// Summary aggregates collected cash. TotalToDeposit + TotalDeposited always
// equals TotalCollected over the same transaction set.
type Summary struct {
	TotalToDeposit   decimal.Decimal `json:"total_to_deposit"`
	TotalDeposited   decimal.Decimal `json:"total_deposited"`
	TotalCollected   decimal.Decimal `json:"total_collected"`
	PendingTxCount   int             `json:"pending_tx_count"`
	DepositedTxCount int             `json:"deposited_tx_count"`
}

// ComputeSummary folds transactions into a Summary.
func ComputeSummary(txs []Transaction) Summary {
	sum := Summary{TotalToDeposit: decimal.Zero, TotalDeposited: decimal.Zero, TotalCollected: decimal.Zero}
	for _, tx := range txs {
		sum.TotalCollected = sum.TotalCollected.Add(tx.Amount)
		switch tx.Status {
		case StatusDeposited:
			sum.TotalDeposited = sum.TotalDeposited.Add(tx.Amount)
			sum.DepositedTxCount++
		default:
			sum.TotalToDeposit = sum.TotalToDeposit.Add(tx.Amount)
			sum.PendingTxCount++
		}
	}
	return sum
}

// ErrTransactionNotFound indicates an unknown COD transaction.
var ErrTransactionNotFound = fmt.Errorf("cod: transaction %w", shared.ErrNotFound)
