package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/franchise-ops/internal/cod"
	"github.com/odyssey-erp/franchise-ops/internal/inventory"
	"github.com/odyssey-erp/franchise-ops/internal/observability"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

const (
	// DefaultReturnWindow bounds how long after delivery a return may be requested.
	DefaultReturnWindow = 48 * time.Hour

	minReturnReason = 10
	minRejectReason = 5
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListOrders(ctx context.Context, franchiseID string, filter Filter) ([]Order, error)
	GetOrder(ctx context.Context, franchiseID, id string) (Order, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	ReturnWindow time.Duration
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Locker      shared.Locker
	Audit       AuditPort
	Integration IntegrationHandler
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Service drives the order lifecycle.
type Service struct {
	repo         RepositoryPort
	locker       shared.Locker
	audit        AuditPort
	integration  IntegrationHandler
	logger       *slog.Logger
	metrics      *observability.Metrics
	returnWindow time.Duration
	now          func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig, deps ServiceDeps) *Service {
	if cfg.ReturnWindow <= 0 {
		cfg.ReturnWindow = DefaultReturnWindow
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		locker:       deps.Locker,
		audit:        deps.Audit,
		integration:  deps.Integration,
		logger:       logger.With(slog.String("component", "orders")),
		metrics:      deps.Metrics,
		returnWindow: cfg.ReturnWindow,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateItem is one line of a new order.
type CreateItem struct {
	ProductID string
	Name      string
	Quantity  int64
	Unit      string
	UnitPrice decimal.Decimal
}

// CreateInput describes a new order.
type CreateInput struct {
	HotelName         string
	PaymentMode       string
	DeliveryPartnerID string
	Items             []CreateItem
	Note              string
}

// TransitionExtra carries data some transitions require.
type TransitionExtra struct {
	NumberOfPackages  int
	DeliveryPartnerID string
	Note              string
}

// CreateOrder validates and stores a new order in status new.
func (s *Service) CreateOrder(ctx context.Context, franchiseID string, input CreateInput) (Order, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return Order{}, err
	}
	order, err := s.buildOrder(franchiseID, input)
	if err != nil {
		return Order{}, err
	}
	release, err := shared.Acquire(ctx, s.locker, franchiseID)
	if err != nil {
		return Order{}, err
	}
	defer release()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return Order{}, s.fail("create order", franchiseID, err)
	}
	s.record(ctx, franchiseID, "orders.created", order.ID, map[string]any{"total": order.Total.String(), "items": len(order.Items)})
	return order, nil
}

func (s *Service) buildOrder(franchiseID string, input CreateInput) (Order, error) {
	hotel := strings.TrimSpace(input.HotelName)
	if hotel == "" {
		return Order{}, shared.InvalidInput("orders: hotel name required")
	}
	mode, err := ParsePaymentMode(input.PaymentMode)
	if err != nil {
		return Order{}, err
	}
	if len(input.Items) == 0 {
		return Order{}, shared.InvalidInput("orders: at least one item required")
	}
	seen := make(map[string]bool, len(input.Items))
	items := make([]Item, 0, len(input.Items))
	total := decimal.Zero
	for i, line := range input.Items {
		id := strings.TrimSpace(line.ProductID)
		switch {
		case id == "":
			return Order{}, shared.InvalidInput("orders: item %d: product id required", i+1)
		case seen[id]:
			return Order{}, shared.InvalidInput("orders: item %d: duplicate product %s", i+1, id)
		case line.Quantity <= 0:
			return Order{}, shared.InvalidInput("orders: item %d: quantity must be positive", i+1)
		case line.UnitPrice.IsNegative():
			return Order{}, shared.InvalidInput("orders: item %d: unit price must be >= 0", i+1)
		}
		seen[id] = true
		name := line.Name
		if name == "" {
			name = id
		}
		items = append(items, Item{ProductID: id, Name: name, Quantity: line.Quantity, Unit: line.Unit, UnitPrice: line.UnitPrice})
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
	}
	order := Order{
		ID:                uuid.NewString(),
		FranchiseID:       franchiseID,
		HotelName:         hotel,
		Items:             items,
		Total:             total,
		PaymentMode:       mode,
		DeliveryPartnerID: strings.TrimSpace(input.DeliveryPartnerID),
		CreatedAt:         s.now(),
		ReturnRequests:    []ReturnRequest{},
	}
	order.moveTo(StatusNew, order.CreatedAt, input.Note)
	return order, nil
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, franchiseID, orderID string) (Order, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return Order{}, err
	}
	return s.repo.GetOrder(ctx, franchiseID, orderID)
}

// List returns orders matching filter.
func (s *Service) List(ctx context.Context, franchiseID string, filter Filter) ([]Order, error) {
	if err := shared.RequireFranchise(franchiseID); err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx, franchiseID, filter)
}

// Stats recomputes order buckets from a fresh scan.
func (s *Service) Stats(ctx context.Context, franchiseID string) (Stats, error) {
	orders, err := s.List(ctx, franchiseID, Filter{})
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(orders), nil
}

// UpdateStatus moves an order forward. Stock deduction at pack/dispatch,
// restock on cancel and COD creation on delivery commit atomically with the
// status change.
func (s *Service) UpdateStatus(ctx context.Context, franchiseID, orderID, newStatus string, extra TransitionExtra) (Order, error) {
	to, err := ParseStatus(newStatus)
	if err != nil {
		return Order{}, err
	}
	if to.IsReturn() {
		return Order{}, shared.NewError(shared.KindInvalidTransition, "orders: %s is set through the return operations", to)
	}
	var from Status
	order, err := s.mutate(ctx, franchiseID, orderID, "update status", func(ctx context.Context, tx TxRepository, order *Order, now time.Time) error {
		from = order.Status
		if !CanTransition(order.Status, to) {
			return shared.NewError(shared.KindInvalidTransition, "orders: cannot move from %s to %s", order.Status, to)
		}
		switch to {
		case StatusPacked:
			if extra.NumberOfPackages < 1 {
				return shared.InvalidInput("orders: number of packages must be at least 1")
			}
			order.NumberOfPackages = extra.NumberOfPackages
		case StatusDispatched:
			if partner := strings.TrimSpace(extra.DeliveryPartnerID); partner != "" {
				order.DeliveryPartnerID = partner
			}
			if order.DeliveryPartnerID == "" {
				return shared.NewError(shared.KindMissingAssignment, "orders: delivery partner required to dispatch")
			}
		}
		if (to == StatusPacked || to == StatusDispatched) && !order.StockDeducted {
			short, err := inventory.DeductAll(ctx, tx.Inventory(), franchiseID, order.stockLines(), now)
			if err != nil {
				return err
			}
			if len(short) > 0 {
				return shared.InsufficientStock(short)
			}
			order.StockDeducted = true
		}
		if to == StatusCancelled && order.StockDeducted {
			if err := inventory.ApplyAddition(ctx, tx.Inventory(), franchiseID, order.restockLines(), now); err != nil {
				return err
			}
			order.StockDeducted = false
		}
		if to == StatusDelivered {
			delivered := now
			order.DeliveredAt = &delivered
			if order.PaymentMode == PaymentCOD {
				if _, err := cod.Collect(ctx, tx.Cash(), franchiseID, cod.CollectionInput{
					OrderID:     order.ID,
					HotelName:   order.HotelName,
					Amount:      order.Total,
					CollectedBy: order.DeliveryPartnerID,
				}, now); err != nil {
					return err
				}
			}
		}
		order.moveTo(to, now, extra.Note)
		return nil
	})
	if err != nil {
		var de *shared.DomainError
		if errors.As(err, &de) && de.Kind == shared.KindInsufficientStock {
			s.metrics.ObserveShortfall("orders", len(de.Items))
		}
		return Order{}, err
	}
	s.afterTransition(ctx, order, from, order.Status)
	return order, nil
}

// RequestReturn appends a pending return request to a delivered order.
func (s *Service) RequestReturn(ctx context.Context, franchiseID, orderID string, items []ReturnItem, reason string) (Order, error) {
	reason = strings.TrimSpace(reason)
	var from Status
	order, err := s.mutate(ctx, franchiseID, orderID, "request return", func(ctx context.Context, tx TxRepository, order *Order, now time.Time) error {
		from = order.Status
		if !order.Status.WasDelivered() || order.DeliveredAt == nil {
			return shared.NewError(shared.KindInvalidTransition, "orders: returns need a delivered order, status is %s", order.Status)
		}
		if len([]rune(reason)) < minReturnReason {
			return shared.InvalidInput("orders: return reason must be at least %d characters", minReturnReason)
		}
		if len(items) == 0 {
			return shared.InvalidInput("orders: at least one return item required")
		}
		ordered := order.orderedQty()
		returned := order.ReturnedQty()
		seen := make(map[string]bool, len(items))
		clean := make([]ReturnItem, 0, len(items))
		for i, item := range items {
			id := strings.TrimSpace(item.ProductID)
			if _, ok := ordered[id]; !ok {
				return shared.InvalidInput("orders: return item %d: product %q not on order", i+1, item.ProductID)
			}
			if seen[id] {
				return shared.InvalidInput("orders: return item %d: duplicate product %s", i+1, id)
			}
			if item.Quantity < 1 {
				return shared.InvalidInput("orders: return item %d: quantity must be at least 1", i+1)
			}
			seen[id] = true
			if remaining := ordered[id] - returned[id]; item.Quantity > remaining {
				return shared.NewError(shared.KindOverReturn, "orders: product %s: requested %d, returnable %d", id, item.Quantity, remaining)
			}
			clean = append(clean, ReturnItem{ProductID: id, Quantity: item.Quantity})
		}
		if now.After(order.DeliveredAt.Add(s.returnWindow)) {
			return shared.NewError(shared.KindWindowExpired, "orders: return window of %s after delivery has passed", s.returnWindow)
		}
		order.ReturnRequests = append(order.ReturnRequests, ReturnRequest{
			Items:       clean,
			Reason:      reason,
			Status:      ReturnPending,
			RequestedAt: now,
		})
		order.logTimeline(StatusReturnRequested, now, reason)
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.afterTransition(ctx, order, from, StatusReturnRequested)
	return order, nil
}

// ReviewReturn approves or rejects a pending return request.
func (s *Service) ReviewReturn(ctx context.Context, franchiseID, orderID string, idx int, approve bool, reason string) (Order, error) {
	reason = strings.TrimSpace(reason)
	return s.updateReturn(ctx, franchiseID, orderID, idx, "review return", func(order *Order, req *ReturnRequest, now time.Time) (Status, error) {
		if req.Status != ReturnPending {
			return "", shared.NewError(shared.KindInvalidTransition, "orders: return %d is %s, only pending can be reviewed", idx, req.Status)
		}
		reviewed := now
		req.ReviewedAt = &reviewed
		req.ReviewReason = reason
		if approve {
			req.Status = ReturnApproved
			return StatusReturnApproved, nil
		}
		if len([]rune(reason)) < minRejectReason {
			return "", shared.InvalidInput("orders: rejection reason must be at least %d characters", minRejectReason)
		}
		req.Status = ReturnRejected
		return StatusReturnRejected, nil
	})
}

// AssignPickup sets or replaces the partner collecting an approved return.
func (s *Service) AssignPickup(ctx context.Context, franchiseID, orderID string, idx int, partnerID string) (Order, error) {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return Order{}, shared.InvalidInput("orders: pickup partner required")
	}
	return s.updateReturn(ctx, franchiseID, orderID, idx, "assign pickup", func(order *Order, req *ReturnRequest, now time.Time) (Status, error) {
		if req.Status != ReturnApproved && req.Status != ReturnPickupAssigned {
			return "", shared.NewError(shared.KindInvalidTransition, "orders: return %d is %s, pickup needs approval", idx, req.Status)
		}
		req.Status = ReturnPickupAssigned
		req.PickupPartnerID = partnerID
		return StatusReturnPickupAssigned, nil
	})
}

// MarkReturnPickedUp records that the partner collected the goods.
func (s *Service) MarkReturnPickedUp(ctx context.Context, franchiseID, orderID string, idx int) (Order, error) {
	return s.updateReturn(ctx, franchiseID, orderID, idx, "mark return picked up", func(order *Order, req *ReturnRequest, now time.Time) (Status, error) {
		if req.Status != ReturnPickupAssigned {
			return "", shared.NewError(shared.KindInvalidTransition, "orders: return %d is %s, expected pickup_assigned", idx, req.Status)
		}
		picked := now
		req.PickedUpAt = &picked
		req.Status = ReturnPickedUp
		return StatusReturnPickedUp, nil
	})
}

// CompleteReturn closes a picked up return and puts the goods back in stock.
func (s *Service) CompleteReturn(ctx context.Context, franchiseID, orderID string, idx int) (Order, error) {
	var from Status
	order, err := s.mutate(ctx, franchiseID, orderID, "complete return", func(ctx context.Context, tx TxRepository, order *Order, now time.Time) error {
		from = order.Status
		req, err := order.returnRequest(idx)
		if err != nil {
			return err
		}
		if req.Status != ReturnPickedUp {
			return shared.NewError(shared.KindInvalidTransition, "orders: return %d is %s, expected picked_up", idx, req.Status)
		}
		lines := make([]inventory.AddLine, 0, len(req.Items))
		for _, item := range req.Items {
			line := order.itemLine(item.ProductID)
			lines = append(lines, inventory.AddLine{ProductID: item.ProductID, Name: line.Name, Unit: line.Unit, Price: line.UnitPrice, Qty: item.Quantity})
		}
		if err := inventory.ApplyAddition(ctx, tx.Inventory(), franchiseID, lines, now); err != nil {
			return err
		}
		completed := now
		req.CompletedAt = &completed
		req.Status = ReturnCompleted
		order.ReturnRequests[idx] = req
		order.logTimeline(StatusReturnCompleted, now, "")
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.afterTransition(ctx, order, from, StatusReturnCompleted)
	return order, nil
}

func (s *Service) updateReturn(ctx context.Context, franchiseID, orderID string, idx int, op string, fn func(order *Order, req *ReturnRequest, now time.Time) (Status, error)) (Order, error) {
	var from, next Status
	order, err := s.mutate(ctx, franchiseID, orderID, op, func(ctx context.Context, tx TxRepository, order *Order, now time.Time) error {
		from = order.Status
		req, err := order.returnRequest(idx)
		if err != nil {
			return err
		}
		next, err = fn(order, &req, now)
		if err != nil {
			return err
		}
		order.ReturnRequests[idx] = req
		note := ""
		if next == StatusReturnApproved || next == StatusReturnRejected {
			note = req.ReviewReason
		}
		order.logTimeline(next, now, note)
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.afterTransition(ctx, order, from, next)
	return order, nil
}

// mutate runs fn on a locked copy of the order and saves it in the same
// transaction. Any error leaves the stored order untouched.
func (s *Service) mutate(ctx context.Context, franchiseID, orderID, op string, fn func(ctx context.Context, tx TxRepository, order *Order, now time.Time) error) (Order, error) {
	release, err := shared.Acquire(ctx, s.locker, franchiseID)
	if err != nil {
		return Order{}, err
	}
	defer release()

	var result Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, franchiseID, orderID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, &order, s.now()); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return Order{}, s.fail(op, franchiseID, err)
	}
	return result, nil
}

// afterTransition reports a committed change. For return steps to is the
// return marker while from is the unchanged delivery status.
func (s *Service) afterTransition(ctx context.Context, order Order, from, to Status) {
	s.metrics.ObserveOrderTransition(string(to))
	s.logger.InfoContext(ctx, "order status changed",
		slog.String("franchise_id", order.FranchiseID),
		slog.String("order_id", order.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	s.record(ctx, order.FranchiseID, "orders.status_changed", order.ID, map[string]any{"from": string(from), "to": string(to)})
	if s.integration == nil {
		return
	}
	at := s.now()
	if n := len(order.Timeline); n > 0 {
		at = order.Timeline[n-1].Time
	}
	evt := StatusChangedEvent{
		OrderID:     order.ID,
		FranchiseID: order.FranchiseID,
		From:        from,
		To:          to,
		PaymentMode: order.PaymentMode,
		Total:       order.Total,
		At:          at,
	}
	if err := s.integration.HandleOrderStatusChanged(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "publish order status failed", slog.String("order_id", order.ID), slog.Any("error", err))
	}
}

func (o Order) stockLines() []inventory.Line {
	lines := make([]inventory.Line, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, inventory.Line{ProductID: item.ProductID, Qty: item.Quantity})
	}
	return lines
}

func (o Order) restockLines() []inventory.AddLine {
	lines := make([]inventory.AddLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, inventory.AddLine{ProductID: item.ProductID, Name: item.Name, Unit: item.Unit, Price: item.UnitPrice, Qty: item.Quantity})
	}
	return lines
}

func (s *Service) fail(op, franchiseID string, err error) error {
	if shared.KindOf(err) == "" {
		s.logger.Error("orders operation failed",
			slog.String("op", op), slog.String("franchise_id", franchiseID), slog.Any("error", err))
		return fmt.Errorf("orders: %s: %w", op, err)
	}
	return err
}

func (s *Service) record(ctx context.Context, franchiseID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		FranchiseID: franchiseID,
		Action:      action,
		Entity:      "order",
		EntityID:    entityID,
		Meta:        meta,
		At:          s.now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
