package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/franchise-ops/internal/observability"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListItems(ctx context.Context, franchiseID string) ([]Item, error)
	GetItem(ctx context.Context, franchiseID, productID string) (Item, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations.
type Service struct {
	repo    RepositoryPort
	locker  shared.Locker
	audit   AuditPort
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService builds Service. locker, audit and metrics may be nil.
func NewService(repo RepositoryPort, locker shared.Locker, audit AuditPort, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		audit:   audit,
		logger:  logger.With(slog.String("component", "inventory")),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// UpsertInput carries catalogue fields for a SKU.
type UpsertInput struct {
	ProductID string
	Name      string
	Category  string
	MBQ       int64
	Unit      string
	Price     decimal.Decimal
}

// List returns every item of the franchise.
func (s *Service) List(ctx context.Context, franchiseID string) ([]Item, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, franchiseID)
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, franchiseID, productID string) (Item, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return Item{}, err
	}
	return s.repo.GetItem(ctx, franchiseID, productID)
}

// UpsertItem creates or updates catalogue data. Stock of an existing row is
// never touched; new rows start at zero.
func (s *Service) UpsertItem(ctx context.Context, franchiseID string, input UpsertInput) (Item, error) {
	input.ProductID = strings.TrimSpace(input.ProductID)
	input.Name = strings.TrimSpace(input.Name)
	switch {
	case input.ProductID == "":
		return Item{}, shared.InvalidInput("inventory: product id required")
	case input.Name == "":
		return Item{}, shared.InvalidInput("inventory: name required")
	case input.MBQ < 0:
		return Item{}, shared.InvalidInput("inventory: mbq must be >= 0")
	case input.Price.IsNegative():
		return Item{}, shared.InvalidInput("inventory: price must be >= 0")
	}
	release, err := shared.Acquire(ctx, s.locker, franchiseID)
	if err != nil {
		return Item{}, err
	}
	defer release()

	var saved Item
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetItemsForUpdate(ctx, franchiseID, []string{input.ProductID})
		if err != nil {
			return err
		}
		saved = Item{
			ID:          input.ProductID,
			FranchiseID: franchiseID,
			Name:        input.Name,
			Category:    input.Category,
			MBQ:         input.MBQ,
			Unit:        input.Unit,
			Price:       input.Price,
			LastUpdated: s.now(),
		}
		if current, ok := existing[input.ProductID]; ok {
			saved.CurrentStock = current.CurrentStock
		}
		return tx.UpsertItem(ctx, saved)
	})
	if err != nil {
		return Item{}, s.fail("upsert item", franchiseID, err)
	}
	s.record(ctx, franchiseID, "inventory.item.upserted", saved.ID, map[string]any{"mbq": saved.MBQ, "price": saved.Price.String()})
	return saved, nil
}

// SetStock overwrites the stock of a known SKU. Negative quantities are
// rejected, never clamped.
func (s *Service) SetStock(ctx context.Context, franchiseID, productID string, qty int64) (Item, error) {
	if qty < 0 {
		return Item{}, ErrInvalidQuantity
	}
	release, err := shared.Acquire(ctx, s.locker, franchiseID)
	if err != nil {
		return Item{}, err
	}
	defer release()

	var item Item
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items, err := tx.GetItemsForUpdate(ctx, franchiseID, []string{productID})
		if err != nil {
			return err
		}
		current, ok := items[productID]
		if !ok {
			return ErrItemNotFound
		}
		item = current
		item.CurrentStock = qty
		item.LastUpdated = s.now()
		return tx.SaveStock(ctx, franchiseID, productID, qty, item.LastUpdated)
	})
	if err != nil {
		return Item{}, s.fail("set stock", franchiseID, err)
	}
	s.record(ctx, franchiseID, "inventory.stock.set", productID, map[string]any{"qty": qty})
	return item, nil
}

// Deduct applies every line that has enough stock and reports the rest.
// The applied lines are committed even when some lines fall short.
func (s *Service) Deduct(ctx context.Context, franchiseID string, lines []Line) ([]DeductionError, error) {
	release, err := shared.Acquire(ctx, s.locker, franchiseID)
	if err != nil {
		return nil, err
	}
	defer release()

	var short []DeductionError
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		short, err = ApplyDeduction(ctx, tx, franchiseID, lines, s.now())
		return err
	})
	if err != nil {
		return nil, s.fail("deduct", franchiseID, err)
	}
	if len(short) > 0 {
		s.metrics.ObserveShortfall("inventory", len(short))
		s.logger.WarnContext(ctx, "deduction partially applied",
			slog.String("franchise_id", franchiseID), slog.Int("short_lines", len(short)))
	}
	s.record(ctx, franchiseID, "inventory.stock.deducted", "batch", map[string]any{"lines": len(lines), "short": len(short)})
	return short, nil
}

// Add increases stock unconditionally, creating unknown SKUs.
func (s *Service) Add(ctx context.Context, franchiseID string, lines []AddLine) error {
	if len(lines) == 0 {
		return shared.InvalidInput("inventory: at least one line required")
	}
	release, err := shared.Acquire(ctx, s.locker, franchiseID)
	if err != nil {
		return err
	}
	defer release()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return ApplyAddition(ctx, tx, franchiseID, lines, s.now())
	})
	if err != nil {
		return s.fail("add", franchiseID, err)
	}
	s.record(ctx, franchiseID, "inventory.stock.added", "batch", map[string]any{"lines": len(lines)})
	return nil
}

// LowStockItems lists items at or below their reorder target.
func (s *Service) LowStockItems(ctx context.Context, franchiseID string) ([]Item, error) {
	items, err := s.List(ctx, franchiseID)
	if err != nil {
		return nil, err
	}
	low := make([]Item, 0)
	for _, item := range items {
		if item.IsLow() {
			low = append(low, item)
		}
	}
	return low, nil
}

// Stats computes stock health from a fresh scan.
func (s *Service) Stats(ctx context.Context, franchiseID string) (Stats, error) {
	items, err := s.List(ctx, franchiseID)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(items), nil
}

func (s *Service) fail(op, franchiseID string, err error) error {
	if shared.KindOf(err) == "" {
		s.logger.Error("inventory operation failed",
			slog.String("op", op), slog.String("franchise_id", franchiseID), slog.Any("error", err))
		return fmt.Errorf("inventory: %s: %w", op, err)
	}
	return err
}

func (s *Service) record(ctx context.Context, franchiseID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		FranchiseID: franchiseID,
		Action:      action,
		Entity:      "inventory_item",
		EntityID:    entityID,
		Meta:        meta,
		At:          s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
