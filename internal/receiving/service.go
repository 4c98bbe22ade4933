package receiving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/franchise-ops/internal/inventory"
	"github.com/odyssey-erp/franchise-ops/internal/observability"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

const idempotencyModule = "receiving.grn"

// unmatchedVendor labels GRNs posted without a purchase order.
const unmatchedVendor = "Unknown Vendor"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPurchaseOrders(ctx context.Context, franchiseID string) ([]PurchaseOrder, error)
	ListGRNs(ctx context.Context, franchiseID string) ([]GRN, error)
	GetGRN(ctx context.Context, franchiseID, id string) (GRN, error)
	ListLedgerEntries(ctx context.Context, franchiseID string) ([]LedgerEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// DefaultUnitPrice prices unmatched receipts of SKUs the store does not know.
	DefaultUnitPrice decimal.Decimal
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Locker      shared.Locker
	Audit       AuditPort
	Idempotency IdempotencyPort
	Integration IntegrationHandler
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Service reconciles vendor deliveries against purchase orders.
type Service struct {
	repo        RepositoryPort
	cfg         ServiceConfig
	locker      shared.Locker
	audit       AuditPort
	idempotency IdempotencyPort
	integration IntegrationHandler
	logger      *slog.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		cfg:         cfg,
		locker:      deps.Locker,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		integration: deps.Integration,
		logger:      logger.With(slog.String("component", "receiving")),
		metrics:     deps.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SubmitGRNInput is a store's count of a vendor delivery.
type SubmitGRNInput struct {
	PONumber       string
	ReceivedDate   time.Time
	Items          []ReceivedLine
	IdempotencyKey string
}

// ImportPurchaseOrderInput is a purchase order from the procurement feed.
type ImportPurchaseOrderInput struct {
	PONumber string
	Vendor   string
	Items    []POItem
}

// SubmitGRN reconciles a delivery, consumes the PO, posts the GRN, adds the
// accepted stock and appends the vendor payable, all in one transaction.
func (s *Service) SubmitGRN(ctx context.Context, franchiseID string, input SubmitGRNInput) (GRN, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return GRN{}, err
	}
	ref := strings.TrimSpace(input.PONumber)
	if ref == "" {
		return GRN{}, shared.InvalidInput("receiving: po number required")
	}
	received, err := validateLines(input.Items)
	if err != nil {
		return GRN{}, err
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && s.idempotency != nil {
		key = franchiseID + ":" + key
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return GRN{}, err
		}
	}

	grn, entry, err := s.postGRN(ctx, franchiseID, ref, input, received)
	if err != nil {
		if key != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
				s.logger.WarnContext(ctx, "release idempotency key failed", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return GRN{}, err
	}

	if !grn.POMatched {
		s.logger.WarnContext(ctx, "grn posted without matching purchase order",
			slog.String("franchise_id", franchiseID), slog.String("po_number", ref), slog.String("grn_id", grn.ID))
	}
	s.metrics.ObserveGRN(grn.POMatched, grn.PaymentSummary.SettlementStatus)
	s.record(ctx, franchiseID, "receiving.grn.posted", "grn", grn.ID, map[string]any{
		"po_number":  grn.PONumber,
		"po_matched": grn.POMatched,
		"payable":    grn.PaymentSummary.TotalPayableAmount.String(),
		"ledger_id":  entry.ID,
	})
	if s.integration != nil {
		evt := GRNPostedEvent{
			GRNID:            grn.ID,
			FranchiseID:      franchiseID,
			PONumber:         grn.PONumber,
			Vendor:           grn.Vendor,
			POMatched:        grn.POMatched,
			TotalPayable:     grn.PaymentSummary.TotalPayableAmount,
			TotalDeductions:  grn.PaymentSummary.TotalDeductions,
			SettlementStatus: grn.PaymentSummary.SettlementStatus,
			ReceivedAt:       grn.ReceivedDate,
		}
		if err := s.integration.HandleGRNPosted(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "publish grn posted failed", slog.String("grn_id", grn.ID), slog.Any("error", err))
		}
	}
	return grn, nil
}

func (s *Service) postGRN(ctx context.Context, franchiseID, ref string, input SubmitGRNInput, received map[string]ReceivedLine) (GRN, LedgerEntry, error) {
	release, err := shared.Acquire(ctx, s.locker, franchiseID)
	if err != nil {
		return GRN{}, LedgerEntry{}, err
	}
	defer release()

	var (
		grn   GRN
		entry LedgerEntry
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		now := s.now()
		receivedDate := input.ReceivedDate
		if receivedDate.IsZero() {
			receivedDate = now
		}
		grn = GRN{
			ID:           uuid.NewString(),
			FranchiseID:  franchiseID,
			PONumber:     ref,
			ReceivedDate: receivedDate,
			CreatedAt:    now,
		}

		po, err := tx.FindPurchaseOrderForUpdate(ctx, franchiseID, ref)
		switch {
		case err == nil:
			if err := checkAgainstPO(po, received); err != nil {
				return err
			}
			grn.POMatched = true
			grn.PONumber = po.PONumber
			grn.Vendor = po.Vendor
			if err := tx.DeletePurchaseOrder(ctx, franchiseID, po.ID); err != nil {
				return err
			}
		case errors.Is(err, ErrPurchaseOrderNotFound):
			po, err = s.synthesizePO(ctx, tx, franchiseID, ref, input.Items)
			if err != nil {
				return err
			}
			grn.Vendor = po.Vendor
		default:
			return err
		}

		grn.Items, grn.PaymentSummary = Reconcile(po.Items, received)
		if err := tx.InsertGRN(ctx, grn); err != nil {
			return err
		}

		additions := make([]inventory.AddLine, 0, len(grn.Items))
		for _, item := range grn.Items {
			if item.AcceptedQty > 0 {
				additions = append(additions, inventory.AddLine{ProductID: item.ProductID, Name: item.Name, Price: item.UnitPrice, Qty: item.AcceptedQty})
			}
		}
		if len(additions) > 0 {
			if err := inventory.ApplyAddition(ctx, tx.Inventory(), franchiseID, additions, now); err != nil {
				return err
			}
		}

		entry = LedgerEntry{
			ID:             uuid.NewString(),
			FranchiseID:    franchiseID,
			Date:           receivedDate,
			Type:           LedgerTypeVendorPayable,
			Vendor:         grn.Vendor,
			Reference:      grn.PONumber,
			GRNID:          grn.ID,
			Amount:         grn.PaymentSummary.TotalPayableAmount,
			OriginalAmount: grn.PaymentSummary.TotalOriginalAmount,
			Deductions:     grn.PaymentSummary.TotalDeductions,
			Status:         LedgerStatusPending,
		}
		return tx.InsertLedgerEntry(ctx, entry)
	})
	if err != nil {
		return GRN{}, LedgerEntry{}, s.fail("submit grn", franchiseID, err)
	}
	return grn, entry, nil
}

func checkAgainstPO(po PurchaseOrder, received map[string]ReceivedLine) error {
	onPO := make(map[string]bool, len(po.Items))
	for _, item := range po.Items {
		onPO[item.ProductID] = true
	}
	for id := range received {
		if !onPO[id] {
			return shared.InvalidInput("receiving: product %s is not on purchase order %s", id, po.PONumber)
		}
	}
	return nil
}

// synthesizePO builds expected lines from the receipt itself, priced from
// the catalogue or, for unknown or unpriced SKUs, the configured default.
func (s *Service) synthesizePO(ctx context.Context, tx TxRepository, franchiseID, ref string, lines []ReceivedLine) (PurchaseOrder, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, strings.TrimSpace(line.ProductID))
	}
	known, err := tx.Inventory().GetItemsForUpdate(ctx, franchiseID, ids)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po := PurchaseOrder{PONumber: ref, FranchiseID: franchiseID, Vendor: unmatchedVendor}
	for i, line := range lines {
		id := ids[i]
		price := s.cfg.DefaultUnitPrice
		name := id
		if item, ok := known[id]; ok {
			name = item.Name
			if item.Price.IsPositive() {
				price = item.Price
			}
		}
		po.Items = append(po.Items, POItem{
			ProductID:   id,
			Name:        name,
			ExpectedQty: line.ReceivedQty,
			UnitPrice:   decimal.NewNullDecimal(price),
		})
	}
	return po, nil
}

// ImportPurchaseOrder stores an open PO from the procurement feed.
func (s *Service) ImportPurchaseOrder(ctx context.Context, franchiseID string, input ImportPurchaseOrderInput) (PurchaseOrder, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return PurchaseOrder{}, err
	}
	po, err := buildPurchaseOrder(franchiseID, input, s.now())
	if err != nil {
		return PurchaseOrder{}, err
	}
	release, err := shared.Acquire(ctx, s.locker, franchiseID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer release()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindPurchaseOrderForUpdate(ctx, franchiseID, po.PONumber)
		switch {
		case err == nil && existing.PONumber == po.PONumber:
			return shared.NewError(shared.KindConflict, "receiving: purchase order %s already open", po.PONumber)
		case err != nil && !errors.Is(err, ErrPurchaseOrderNotFound):
			return err
		}
		return tx.InsertPurchaseOrder(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, s.fail("import purchase order", franchiseID, err)
	}
	s.record(ctx, franchiseID, "receiving.po.imported", "purchase_order", po.ID, map[string]any{"po_number": po.PONumber, "vendor": po.Vendor})
	return po, nil
}

func buildPurchaseOrder(franchiseID string, input ImportPurchaseOrderInput, now time.Time) (PurchaseOrder, error) {
	number := strings.TrimSpace(input.PONumber)
	vendor := strings.TrimSpace(input.Vendor)
	switch {
	case number == "":
		return PurchaseOrder{}, shared.InvalidInput("receiving: po number required")
	case vendor == "":
		return PurchaseOrder{}, shared.InvalidInput("receiving: vendor required")
	case len(input.Items) == 0:
		return PurchaseOrder{}, shared.InvalidInput("receiving: at least one po item required")
	}
	seen := make(map[string]bool, len(input.Items))
	items := make([]POItem, 0, len(input.Items))
	for i, item := range input.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		switch {
		case item.ProductID == "":
			return PurchaseOrder{}, shared.InvalidInput("receiving: po item %d: product id required", i+1)
		case seen[item.ProductID]:
			return PurchaseOrder{}, shared.InvalidInput("receiving: po item %d: duplicate product %s", i+1, item.ProductID)
		case item.ExpectedQty <= 0:
			return PurchaseOrder{}, shared.InvalidInput("receiving: po item %d: expected quantity must be positive", i+1)
		case !item.UnitPrice.Valid && !item.TotalAmount.Valid:
			return PurchaseOrder{}, shared.InvalidInput("receiving: po item %d: unit price or total amount required", i+1)
		case item.UnitPrice.Valid && item.UnitPrice.Decimal.IsNegative(),
			item.TotalAmount.Valid && item.TotalAmount.Decimal.IsNegative():
			return PurchaseOrder{}, shared.InvalidInput("receiving: po item %d: amounts must be >= 0", i+1)
		}
		if item.Name == "" {
			item.Name = item.ProductID
		}
		seen[item.ProductID] = true
		items = append(items, item)
	}
	return PurchaseOrder{
		ID:          uuid.NewString(),
		PONumber:    number,
		FranchiseID: franchiseID,
		Vendor:      vendor,
		Items:       items,
		CreatedAt:   now,
	}, nil
}

// ListOpenPurchaseOrders returns POs not yet received.
func (s *Service) ListOpenPurchaseOrders(ctx context.Context, franchiseID string) ([]PurchaseOrder, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return nil, err
	}
	return s.repo.ListPurchaseOrders(ctx, franchiseID)
}

// ListGRNs returns posted GRNs.
func (s *Service) ListGRNs(ctx context.Context, franchiseID string) ([]GRN, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return nil, err
	}
	return s.repo.ListGRNs(ctx, franchiseID)
}

// GetGRN returns one GRN.
func (s *Service) GetGRN(ctx context.Context, franchiseID, id string) (GRN, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return GRN{}, err
	}
	return s.repo.GetGRN(ctx, franchiseID, id)
}

// ListLedgerEntries returns the vendor payable ledger.
func (s *Service) ListLedgerEntries(ctx context.Context, franchiseID string) ([]LedgerEntry, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return nil, err
	}
	return s.repo.ListLedgerEntries(ctx, franchiseID)
}

func (s *Service) fail(op, franchiseID string, err error) error {
	if shared.KindOf(err) == "" {
		s.logger.Error("receiving operation failed",
			slog.String("op", op), slog.String("franchise_id", franchiseID), slog.Any("error", err))
		return fmt.Errorf("receiving: %s: %w", op, err)
	}
	return err
}

func (s *Service) record(ctx context.Context, franchiseID, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		FranchiseID: franchiseID,
		Action:      action,
		Entity:      entity,
		EntityID:    entityID,
		Meta:        meta,
		At:          s.now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
