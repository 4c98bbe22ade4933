package inventory

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// Item is the authoritative stock record of one SKU in a franchise.
type Item struct {
	ID           string          `json:"id"`
	FranchiseID  string          `json:"franchise_id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	CurrentStock int64           `json:"current_stock"`
	MBQ          int64           `json:"mbq"`
	Unit         string          `json:"unit"`
	Price        decimal.Decimal `json:"price"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// IsHealthy reports stock strictly above the reorder target.
func (i Item) IsHealthy() bool {
	return i.CurrentStock > i.MBQ
}

// IsLow reports stock at or below the reorder target, including out of stock.
func (i Item) IsLow() bool {
	return i.CurrentStock <= i.MBQ
}

// Line is one quantity movement for a SKU.
type Line struct {
	ProductID string `json:"product_id"`
	Qty       int64  `json:"qty"`
}

// AddLine is an inbound movement; Name, Unit and Price seed the catalogue
// when the SKU is new.
type AddLine struct {
	ProductID string
	Name      string
	Unit      string
	Price     decimal.Decimal
	Qty       int64
}

// DeductionError describes one line that could not be deducted.
type DeductionError = shared.ShortItem

// Stats summarises stock health for a franchise.
type Stats struct {
	TotalItems       int             `json:"total_items"`
	HealthyCount     int             `json:"healthy_count"`
	LowStockCount    int             `json:"low_stock_count"`
	OutOfStockCount  int             `json:"out_of_stock_count"`
	TotalValue       decimal.Decimal `json:"total_value"`
	HealthPercentage int             `json:"health_percentage"`
}

// ComputeStats derives Stats from a full item scan.
func ComputeStats(items []Item) Stats {
	stats := Stats{TotalItems: len(items), TotalValue: decimal.Zero}
	for _, item := range items {
		switch {
		case item.IsHealthy():
			stats.HealthyCount++
		case item.CurrentStock == 0:
			stats.OutOfStockCount++
		default:
			stats.LowStockCount++
		}
		stats.TotalValue = stats.TotalValue.Add(item.Price.Mul(decimal.NewFromInt(item.CurrentStock)))
	}
	if stats.TotalItems == 0 {
		stats.HealthPercentage = 100
		return stats
	}
	stats.HealthPercentage = int(math.Round(float64(stats.HealthyCount) / float64(stats.TotalItems) * 100))
	return stats
}

var (
	// ErrItemNotFound indicates an unknown SKU.
	ErrItemNotFound = fmt.Errorf("inventory: item %w", shared.ErrNotFound)
	// ErrInvalidQuantity rejects absolute stock below zero.
	ErrInvalidQuantity = &shared.DomainError{Kind: shared.KindInvalidInput, Message: "inventory: quantity must be >= 0"}
)
