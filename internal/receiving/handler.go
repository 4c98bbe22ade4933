package receiving

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/franchise-ops/internal/platform/httpx"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// Handler exposes receiving endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers receiving routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/purchase-orders", h.listPurchaseOrders)
	r.Post("/purchase-orders", h.importPurchaseOrder)
	r.Get("/grns", h.listGRNs)
	r.Post("/grns", h.submitGRN)
	r.Get("/grns/{id}", h.getGRN)
	r.Get("/ledger", h.ledger)
}

type purchaseOrderRequest struct {
	PONumber string   `json:"po_number" validate:"required"`
	Vendor   string   `json:"vendor" validate:"required"`
	Items    []POItem `json:"items" validate:"required,min=1"`
}

type grnRequest struct {
	PONumber     string         `json:"po_number" validate:"required"`
	ReceivedDate string         `json:"received_date"`
	Items        []ReceivedLine `json:"items" validate:"required,min=1"`
}

func franchiseOf(r *http.Request) string {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.FranchiseID
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	pos, err := h.service.ListOpenPurchaseOrders(r.Context(), franchiseOf(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_orders": pos})
}

func (h *Handler) importPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req purchaseOrderRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.ImportPurchaseOrder(r.Context(), franchiseOf(r), ImportPurchaseOrderInput(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) submitGRN(w http.ResponseWriter, r *http.Request) {
	var req grnRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := SubmitGRNInput{
		PONumber:       req.PONumber,
		Items:          req.Items,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.ReceivedDate != "" {
		t, err := parseDate(req.ReceivedDate)
		if err != nil {
			httpx.RespondError(w, shared.InvalidInput("receiving: invalid received_date %q", req.ReceivedDate))
			return
		}
		input.ReceivedDate = t
	}
	grn, err := h.service.SubmitGRN(r.Context(), franchiseOf(r), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grn)
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func (h *Handler) listGRNs(w http.ResponseWriter, r *http.Request) {
	grns, err := h.service.ListGRNs(r.Context(), franchiseOf(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grns": grns})
}

func (h *Handler) getGRN(w http.ResponseWriter, r *http.Request) {
	grn, err := h.service.GetGRN(r.Context(), franchiseOf(r), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListLedgerEntries(r.Context(), franchiseOf(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.validator.Struct(target)
}
