package cod

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// Collect validates input and stores a pending transaction inside tx. Order
// delivery uses it so the cash record commits with the status change.
func Collect(ctx context.Context, tx TxRepository, franchiseID string, input CollectionInput, now time.Time) (Transaction, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return Transaction{}, err
	}
	if strings.TrimSpace(input.OrderID) == "" {
		return Transaction{}, shared.InvalidInput("cod: order id required")
	}
	if !input.Amount.IsPositive() {
		return Transaction{}, shared.InvalidInput("cod: amount must be positive")
	}
	record := Transaction{
		ID:          uuid.NewString(),
		FranchiseID: franchiseID,
		OrderID:     strings.TrimSpace(input.OrderID),
		HotelName:   input.HotelName,
		Amount:      input.Amount,
		CollectedBy: input.CollectedBy,
		Timestamp:   now,
		Status:      StatusPending,
	}
	if err := tx.InsertTransaction(ctx, record); err != nil {
		return Transaction{}, err
	}
	return record, nil
}
