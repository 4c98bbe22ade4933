package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusNew                  Status = "new"
	StatusPreparing            Status = "preparing"
	StatusPacked               Status = "packed"
	StatusReady                Status = "ready"
	StatusDispatched           Status = "dispatched"
	StatusOutForDelivery       Status = "out_for_delivery"
	StatusDelivered            Status = "delivered"
	StatusReceived             Status = "received"
	StatusCancelled            Status = "cancelled"
	StatusReturnRequested      Status = "return_requested"
	StatusReturnApproved       Status = "return_approved"
	StatusReturnRejected       Status = "return_rejected"
	StatusReturnPickupAssigned Status = "return_pickup_assigned"
	StatusReturnPickedUp       Status = "return_picked_up"
	StatusReturnCompleted      Status = "return_completed"
)

var allStatuses = []Status{
	StatusNew, StatusPreparing, StatusPacked, StatusReady, StatusDispatched, StatusOutForDelivery,
	StatusDelivered, StatusReceived, StatusCancelled, StatusReturnRequested, StatusReturnApproved,
	StatusReturnRejected, StatusReturnPickupAssigned, StatusReturnPickedUp, StatusReturnCompleted,
}

// transitions lists forward moves reachable through UpdateStatus. Return
// states never become the order status; they mark timeline entries of the
// return sub-flow, which runs alongside delivered and received.
var transitions = map[Status][]Status{
	StatusNew:            {StatusPreparing, StatusPacked, StatusCancelled},
	StatusPreparing:      {StatusPacked, StatusCancelled},
	StatusPacked:         {StatusReady, StatusDispatched, StatusCancelled},
	StatusReady:          {StatusDispatched, StatusCancelled},
	StatusDispatched:     {StatusOutForDelivery, StatusDelivered, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
	StatusDelivered:      {StatusReceived},
}

// ParseStatus rejects values outside the closed set.
func ParseStatus(raw string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, s := range allStatuses {
		if s == candidate {
			return s, nil
		}
	}
	return "", shared.InvalidInput("orders: unknown status %q", raw)
}

// CanTransition reports whether UpdateStatus may move from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsReturn reports the return sub-states.
func (s Status) IsReturn() bool {
	switch s {
	case StatusReturnRequested, StatusReturnApproved, StatusReturnRejected,
		StatusReturnPickupAssigned, StatusReturnPickedUp, StatusReturnCompleted:
		return true
	}
	return false
}

// WasDelivered reports states that imply the goods reached the customer.
func (s Status) WasDelivered() bool {
	return s == StatusDelivered || s == StatusReceived
}

// ReturnStatus is the state of one return request.
type ReturnStatus string

const (
	ReturnPending        ReturnStatus = "pending"
	ReturnApproved       ReturnStatus = "approved"
	ReturnRejected       ReturnStatus = "rejected"
	ReturnPickupAssigned ReturnStatus = "pickup_assigned"
	ReturnPickedUp       ReturnStatus = "picked_up"
	ReturnCompleted      ReturnStatus = "completed"
)

// PaymentMode is how the customer settles the order.
type PaymentMode string

const (
	PaymentCOD     PaymentMode = "cod"
	PaymentPrepaid PaymentMode = "prepaid"
	PaymentCredit  PaymentMode = "credit"
)

// ParsePaymentMode validates a payment mode.
func ParsePaymentMode(raw string) (PaymentMode, error) {
	switch mode := PaymentMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case PaymentCOD, PaymentPrepaid, PaymentCredit:
		return mode, nil
	}
	return "", shared.InvalidInput("orders: unknown payment mode %q", raw)
}

// Item is one ordered product line.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// TimelineEntry records one status change.
type TimelineEntry struct {
	Status Status    `json:"status"`
	Time   time.Time `json:"time"`
	Note   string    `json:"note,omitempty"`
}

// ReturnItem is a quantity of one product sent back.
type ReturnItem struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// ReturnRequest is a customer's request to send goods back.
type ReturnRequest struct {
	Items           []ReturnItem `json:"items"`
	Reason          string       `json:"reason"`
	Status          ReturnStatus `json:"status"`
	RequestedAt     time.Time    `json:"requested_at"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty"`
	ReviewReason    string       `json:"review_reason,omitempty"`
	PickupPartnerID string       `json:"pickup_partner_id,omitempty"`
	PickedUpAt      *time.Time   `json:"picked_up_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// Order is a customer (hotel) order owned by a franchise.
type Order struct {
	ID                string          `json:"id"`
	FranchiseID       string          `json:"franchise_id"`
	HotelName         string          `json:"hotel_name"`
	Status            Status          `json:"status"`
	Items             []Item          `json:"items"`
	Total             decimal.Decimal `json:"total"`
	PaymentMode       PaymentMode     `json:"payment_mode"`
	DeliveryPartnerID string          `json:"delivery_partner_id,omitempty"`
	NumberOfPackages  int             `json:"number_of_packages"`
	StockDeducted     bool            `json:"stock_deducted"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	Timeline          []TimelineEntry `json:"timeline"`
	ReturnRequests    []ReturnRequest `json:"return_requests"`
}

// moveTo sets the status and appends the timeline entry.
func (o *Order) moveTo(status Status, at time.Time, note string) {
	o.Status = status
	o.logTimeline(status, at, note)
}

// logTimeline appends an entry without touching the order status. Entry
// times never go backwards even if the clock does.
func (o *Order) logTimeline(status Status, at time.Time, note string) {
	if n := len(o.Timeline); n > 0 && at.Before(o.Timeline[n-1].Time) {
		at = o.Timeline[n-1].Time
	}
	o.Timeline = append(o.Timeline, TimelineEntry{Status: status, Time: at, Note: note})
}

// ReturnState is the status of the latest return request, or empty when the
// order has none.
func (o Order) ReturnState() ReturnStatus {
	if n := len(o.ReturnRequests); n > 0 {
		return o.ReturnRequests[n-1].Status
	}
	return ""
}

// HasOpenReturn reports a return request that is neither rejected nor completed.
func (o Order) HasOpenReturn() bool {
	for _, req := range o.ReturnRequests {
		if req.Status != ReturnRejected && req.Status != ReturnCompleted {
			return true
		}
	}
	return false
}

func (o Order) orderedQty() map[string]int64 {
	out := make(map[string]int64, len(o.Items))
	for _, item := range o.Items {
		out[item.ProductID] += item.Quantity
	}
	return out
}

// ReturnedQty sums quantities across requests that were not rejected.
func (o Order) ReturnedQty() map[string]int64 {
	out := make(map[string]int64)
	for _, req := range o.ReturnRequests {
		if req.Status == ReturnRejected {
			continue
		}
		for _, item := range req.Items {
			out[item.ProductID] += item.Quantity
		}
	}
	return out
}

func (o Order) itemLine(productID string) Item {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return item
		}
	}
	return Item{ProductID: productID}
}

func (o Order) returnRequest(idx int) (ReturnRequest, error) {
	if idx < 0 || idx >= len(o.ReturnRequests) {
		return ReturnRequest{}, fmt.Errorf("orders: return request %d %w", idx, shared.ErrNotFound)
	}
	return o.ReturnRequests[idx], nil
}

// Stats buckets orders of a franchise. Returns counts delivered orders with
// an open return request; they stay in Delivered as well.
type Stats struct {
	Total            int             `json:"total"`
	New              int             `json:"new"`
	Processing       int             `json:"processing"`
	InTransit        int             `json:"in_transit"`
	Delivered        int             `json:"delivered"`
	Cancelled        int             `json:"cancelled"`
	Returns          int             `json:"returns"`
	DeliveredRevenue decimal.Decimal `json:"delivered_revenue"`
	CODLiability     decimal.Decimal `json:"cod_liability"`
}

// ComputeStats derives Stats from a full scan.
func ComputeStats(orders []Order) Stats {
	stats := Stats{Total: len(orders), DeliveredRevenue: decimal.Zero, CODLiability: decimal.Zero}
	for _, o := range orders {
		switch {
		case o.Status == StatusNew:
			stats.New++
		case o.Status == StatusPreparing, o.Status == StatusPacked, o.Status == StatusReady:
			stats.Processing++
		case o.Status == StatusDispatched, o.Status == StatusOutForDelivery:
			stats.InTransit++
		case o.Status == StatusDelivered, o.Status == StatusReceived:
			stats.Delivered++
		case o.Status == StatusCancelled:
			stats.Cancelled++
		}
		if o.HasOpenReturn() {
			stats.Returns++
		}
		if o.Status.WasDelivered() {
			stats.DeliveredRevenue = stats.DeliveredRevenue.Add(o.Total)
			if o.PaymentMode == PaymentCOD {
				stats.CODLiability = stats.CODLiability.Add(o.Total)
			}
		}
	}
	return stats
}

// Filter narrows order listings.
type Filter struct {
	Status      Status
	PaymentMode PaymentMode
}

// ErrOrderNotFound indicates an unknown order.
var ErrOrderNotFound = fmt.Errorf("orders: order %w", shared.ErrNotFound)
