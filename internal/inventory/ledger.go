package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// Ledger mutations live here so that other packages can move stock inside
// their own transaction while the rules stay in one place.

func normaliseLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, shared.InvalidInput("inventory: at least one line required")
	}
	merged := make([]Line, 0, len(lines))
	index := make(map[string]int, len(lines))
	for i, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			return nil, shared.InvalidInput("inventory: line %d: product id required", i+1)
		}
		if line.Qty <= 0 {
			return nil, shared.InvalidInput("inventory: line %d: quantity must be positive", i+1)
		}
		if pos, ok := index[id]; ok {
			merged[pos].Qty += line.Qty
			continue
		}
		index[id] = len(merged)
		merged = append(merged, Line{ProductID: id, Qty: line.Qty})
	}
	return merged, nil
}

func productIDs(lines []Line) []string {
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	return ids
}

func shortfalls(lines []Line, items map[string]Item) []DeductionError {
	var short []DeductionError
	for _, line := range lines {
		item, ok := items[line.ProductID]
		if !ok {
			short = append(short, DeductionError{ProductID: line.ProductID, Requested: line.Qty, Shortfall: line.Qty})
			continue
		}
		if item.CurrentStock < line.Qty {
			short = append(short, DeductionError{
				ProductID: line.ProductID,
				Name:      item.Name,
				Requested: line.Qty,
				Available: item.CurrentStock,
				Shortfall: line.Qty - item.CurrentStock,
			})
		}
	}
	return short
}

// ApplyDeduction deducts every line that has enough stock and reports the
// ones that do not. Short lines are left untouched.
func ApplyDeduction(ctx context.Context, tx TxRepository, franchiseID string, lines []Line, now time.Time) ([]DeductionError, error) {
	lines, err := normaliseLines(lines)
	if err != nil {
		return nil, err
	}
	items, err := tx.GetItemsForUpdate(ctx, franchiseID, productIDs(lines))
	if err != nil {
		return nil, err
	}
	short := shortfalls(lines, items)
	blocked := make(map[string]bool, len(short))
	for _, s := range short {
		blocked[s.ProductID] = true
	}
	for _, line := range lines {
		if blocked[line.ProductID] {
			continue
		}
		item := items[line.ProductID]
		if err := tx.SaveStock(ctx, franchiseID, line.ProductID, item.CurrentStock-line.Qty, now); err != nil {
			return nil, err
		}
	}
	return short, nil
}

// DeductAll deducts the lines only when every one of them can be honoured.
// Otherwise nothing is written and the shortfalls are returned.
func DeductAll(ctx context.Context, tx TxRepository, franchiseID string, lines []Line, now time.Time) ([]DeductionError, error) {
	lines, err := normaliseLines(lines)
	if err != nil {
		return nil, err
	}
	items, err := tx.GetItemsForUpdate(ctx, franchiseID, productIDs(lines))
	if err != nil {
		return nil, err
	}
	if short := shortfalls(lines, items); len(short) > 0 {
		return short, nil
	}
	for _, line := range lines {
		if err := tx.SaveStock(ctx, franchiseID, line.ProductID, items[line.ProductID].CurrentStock-line.Qty, now); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// ApplyAddition increases stock unconditionally. Unknown SKUs are created
// with a zero reorder target.
func ApplyAddition(ctx context.Context, tx TxRepository, franchiseID string, lines []AddLine, now time.Time) error {
	ids := make([]string, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return shared.InvalidInput("inventory: line %d: product id required", i+1)
		}
		if line.Qty < 0 {
			return shared.InvalidInput("inventory: line %d: quantity must be >= 0", i+1)
		}
		if line.Price.IsNegative() {
			return shared.InvalidInput("inventory: line %d: price must be >= 0", i+1)
		}
		ids = append(ids, line.ProductID)
	}
	items, err := tx.GetItemsForUpdate(ctx, franchiseID, ids)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if line.Qty == 0 {
			continue
		}
		item, ok := items[line.ProductID]
		if !ok {
			item = Item{ID: line.ProductID, FranchiseID: franchiseID, Name: line.Name, Unit: line.Unit, Price: line.Price, LastUpdated: now}
			if item.Name == "" {
				item.Name = line.ProductID
			}
			item.CurrentStock = line.Qty
			if err := tx.InsertItem(ctx, item); err != nil {
				return err
			}
			items[line.ProductID] = item
			continue
		}
		item.CurrentStock += line.Qty
		if err := tx.SaveStock(ctx, franchiseID, line.ProductID, item.CurrentStock, now); err != nil {
			return err
		}
		items[line.ProductID] = item
	}
	return nil
}
