package receiving

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

const (
	// LedgerTypeVendorPayable marks amounts owed to a vendor.
	LedgerTypeVendorPayable = "vendor_payable"
	// LedgerStatusPending is the state of a payable awaiting settlement.
	LedgerStatusPending = "Pending Settlement"

	SettlementFull     = "Full"
	SettlementAdjusted = "Adjusted"

	RemarkOK       = "OK"
	RemarkShortage = "Shortage"
)

// POItem is an expected product line. Either UnitPrice or TotalAmount is set.
type POItem struct {
	ProductID   string              `json:"product_id"`
	Name        string              `json:"name"`
	ExpectedQty int64               `json:"expected_qty"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	TotalAmount decimal.NullDecimal `json:"total_amount"`
}

// EffectiveUnitPrice prefers the explicit unit price and otherwise spreads
// the line total over the expected quantity.
func (i POItem) EffectiveUnitPrice() decimal.Decimal {
	if i.UnitPrice.Valid {
		return i.UnitPrice.Decimal
	}
	if i.TotalAmount.Valid && i.ExpectedQty > 0 {
		return i.TotalAmount.Decimal.Div(decimal.NewFromInt(i.ExpectedQty))
	}
	return decimal.Zero
}

// PurchaseOrder is an open order placed with a vendor.
type PurchaseOrder struct {
	ID          string    `json:"id"`
	PONumber    string    `json:"po_number"`
	FranchiseID string    `json:"franchise_id"`
	Vendor      string    `json:"vendor"`
	Items       []POItem  `json:"items"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReceivedLine is what the store counted on arrival.
type ReceivedLine struct {
	ProductID    string `json:"product_id"`
	ReceivedQty  int64  `json:"received_qty"`
	DamageQty    int64  `json:"damage_qty"`
	DamageReason string `json:"damage_reason"`
}

// GRNItem is one reconciled line of a goods received note.
type GRNItem struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	OrderedQty     int64           `json:"ordered_qty"`
	ReceivedQty    int64           `json:"received_qty"`
	DamageQty      int64           `json:"damage_qty"`
	AcceptedQty    int64           `json:"accepted_qty"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	PayableAmount  decimal.Decimal `json:"payable_amount"`
	Deduction      decimal.Decimal `json:"deduction"`
	DamageReason   string          `json:"damage_reason,omitempty"`
	Remarks        string          `json:"remarks"`
}

// PaymentSummary totals a GRN for vendor settlement.
type PaymentSummary struct {
	TotalOriginalAmount decimal.Decimal `json:"total_original_amount"`
	TotalPayableAmount  decimal.Decimal `json:"total_payable_amount"`
	TotalDeductions     decimal.Decimal `json:"total_deductions"`
	SettlementStatus    string          `json:"settlement_status"`
}

// GRN is an immutable goods received note.
type GRN struct {
	ID             string         `json:"id"`
	FranchiseID    string         `json:"franchise_id"`
	PONumber       string         `json:"po_number"`
	Vendor         string         `json:"vendor"`
	ReceivedDate   time.Time      `json:"received_date"`
	POMatched      bool           `json:"po_matched"`
	Items          []GRNItem      `json:"items"`
	PaymentSummary PaymentSummary `json:"payment_summary"`
	CreatedAt      time.Time      `json:"created_at"`
}

// LedgerEntry is an append-only vendor payable.
type LedgerEntry struct {
	ID             string          `json:"id"`
	FranchiseID    string          `json:"franchise_id"`
	Date           time.Time       `json:"date"`
	Type           string          `json:"type"`
	Vendor         string          `json:"vendor"`
	Reference      string          `json:"reference"`
	GRNID          string          `json:"grn_id"`
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	Deductions     decimal.Decimal `json:"deductions"`
	Status         string          `json:"status"`
}

// validateLines rejects negative counts, damage above receipt, blank or
// duplicate products and empty submissions.
func validateLines(lines []ReceivedLine) (map[string]ReceivedLine, error) {
	if len(lines) == 0 {
		return nil, shared.InvalidInput("receiving: at least one received line required")
	}
	byProduct := make(map[string]ReceivedLine, len(lines))
	for i, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		switch {
		case id == "":
			return nil, shared.InvalidInput("receiving: line %d: product id required", i+1)
		case line.ReceivedQty < 0:
			return nil, shared.InvalidInput("receiving: line %d: received quantity must be >= 0", i+1)
		case line.DamageQty < 0:
			return nil, shared.InvalidInput("receiving: line %d: damage quantity must be >= 0", i+1)
		case line.DamageQty > line.ReceivedQty:
			return nil, shared.InvalidInput("receiving: line %d: damage exceeds received quantity", i+1)
		}
		if _, dup := byProduct[id]; dup {
			return nil, shared.InvalidInput("receiving: line %d: duplicate product %s", i+1, id)
		}
		line.ProductID = id
		line.DamageReason = strings.TrimSpace(line.DamageReason)
		byProduct[id] = line
	}
	return byProduct, nil
}

// Reconcile prices every expected item against what arrived.
func Reconcile(expected []POItem, received map[string]ReceivedLine) ([]GRNItem, PaymentSummary) {
	summary := PaymentSummary{
		TotalOriginalAmount: decimal.Zero,
		TotalPayableAmount:  decimal.Zero,
		TotalDeductions:     decimal.Zero,
	}
	items := make([]GRNItem, 0, len(expected))
	for _, exp := range expected {
		line := received[exp.ProductID]
		accepted := line.ReceivedQty - line.DamageQty
		price := exp.EffectiveUnitPrice()
		original := price.Mul(decimal.NewFromInt(exp.ExpectedQty))
		payable := price.Mul(decimal.NewFromInt(accepted))
		if !exp.UnitPrice.Valid && exp.TotalAmount.Valid && exp.ExpectedQty > 0 {
			// a quoted line total is owed as quoted, shares are taken from it
			original = exp.TotalAmount.Decimal
			payable = original.Mul(decimal.NewFromInt(accepted)).Div(decimal.NewFromInt(exp.ExpectedQty))
		}
		item := GRNItem{
			ProductID:      exp.ProductID,
			Name:           exp.Name,
			OrderedQty:     exp.ExpectedQty,
			ReceivedQty:    line.ReceivedQty,
			DamageQty:      line.DamageQty,
			AcceptedQty:    accepted,
			UnitPrice:      price,
			OriginalAmount: original,
			PayableAmount:  payable,
			Deduction:      original.Sub(payable),
			DamageReason:   line.DamageReason,
		}
		switch {
		case line.DamageReason != "":
			item.Remarks = line.DamageReason
		case accepted < exp.ExpectedQty:
			item.Remarks = RemarkShortage
		default:
			item.Remarks = RemarkOK
		}
		summary.TotalOriginalAmount = summary.TotalOriginalAmount.Add(original)
		summary.TotalPayableAmount = summary.TotalPayableAmount.Add(payable)
		summary.TotalDeductions = summary.TotalDeductions.Add(item.Deduction)
		items = append(items, item)
	}
	summary.SettlementStatus = SettlementFull
	if summary.TotalDeductions.IsPositive() {
		summary.SettlementStatus = SettlementAdjusted
	}
	return items, summary
}

var (
	// ErrGRNNotFound indicates an unknown GRN.
	ErrGRNNotFound = fmt.Errorf("receiving: grn %w", shared.ErrNotFound)
	// ErrPurchaseOrderNotFound indicates no open PO matched.
	ErrPurchaseOrderNotFound = fmt.Errorf("receiving: purchase order %w", shared.ErrNotFound)
)
