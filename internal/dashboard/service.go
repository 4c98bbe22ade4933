package dashboard

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/franchise-ops/internal/cod"
	"github.com/odyssey-erp/franchise-ops/internal/inventory"
	"github.com/odyssey-erp/franchise-ops/internal/orders"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// InventoryStats supplies stock health.
type InventoryStats interface {
	Stats(ctx context.Context, franchiseID string) (inventory.Stats, error)
}

// OrderStats supplies order counts and revenue.
type OrderStats interface {
	Stats(ctx context.Context, franchiseID string) (orders.Stats, error)
}

// CashSummary supplies COD totals.
type CashSummary interface {
	Summary(ctx context.Context, franchiseID string, filter cod.Filter) (cod.Summary, error)
}

// Summary is the combined franchise view.
type Summary struct {
	FranchiseID string          `json:"franchise_id"`
	Inventory   inventory.Stats `json:"inventory"`
	Orders      orders.Stats    `json:"orders"`
	COD         cod.Summary     `json:"cod"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Service assembles dashboard summaries.
type Service struct {
	inventory InventoryStats
	orders    OrderStats
	cash      CashSummary
	cache     *Cache
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the three sources. cache may be nil.
func NewService(inv InventoryStats, ord OrderStats, cash CashSummary, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		inventory: inv,
		orders:    ord,
		cash:      cash,
		cache:     cache,
		logger:    logger.With(slog.String("component", "dashboard")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Summary loads the three aggregates concurrently.
func (s *Service) Summary(ctx context.Context, franchiseID string) (Summary, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return Summary{}, err
	}
	var out Summary
	err := s.cache.FetchJSON(ctx, summaryKey(franchiseID), &out, func(ctx context.Context) (any, error) {
		return s.load(ctx, franchiseID)
	})
	if err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, franchiseID string) (Summary, error) {
	data := Summary{FranchiseID: franchiseID, GeneratedAt: s.now()}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := s.inventory.Stats(ctx, franchiseID)
		if err != nil {
			return err
		}
		data.Inventory = stats
		return nil
	})

	g.Go(func() error {
		stats, err := s.orders.Stats(ctx, franchiseID)
		if err != nil {
			return err
		}
		data.Orders = stats
		return nil
	})

	g.Go(func() error {
		summary, err := s.cash.Summary(ctx, franchiseID, cod.Filter{})
		if err != nil {
			return err
		}
		data.COD = summary
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "load dashboard summary", slog.String("franchise_id", franchiseID), slog.Any("error", err))
		return Summary{}, err
	}
	return data, nil
}
