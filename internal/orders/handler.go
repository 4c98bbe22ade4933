package orders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/franchise-ops/internal/platform/httpx"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// Handler exposes order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.get)
	r.Post("/{id}/status", h.updateStatus)
	r.Post("/{id}/returns", h.requestReturn)
	r.Route("/{id}/returns/{idx}", func(r chi.Router) {
		r.Post("/review", h.reviewReturn)
		r.Post("/pickup", h.assignPickup)
		r.Post("/picked-up", h.markPickedUp)
		r.Post("/complete", h.completeReturn)
	})
}

type createRequest struct {
	HotelName         string              `json:"hotel_name" validate:"required"`
	PaymentMode       string              `json:"payment_mode" validate:"required"`
	DeliveryPartnerID string              `json:"delivery_partner_id"`
	Note              string              `json:"note"`
	Items             []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity" validate:"gte=1"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type statusRequest struct {
	Status            string `json:"status" validate:"required"`
	NumberOfPackages  int    `json:"number_of_packages"`
	DeliveryPartnerID string `json:"delivery_partner_id"`
	Note              string `json:"note"`
}

type returnRequest struct {
	Reason string       `json:"reason"`
	Items  []ReturnItem `json:"items"`
}

type reviewRequest struct {
	Approve *bool  `json:"approve" validate:"required"`
	Reason  string `json:"reason"`
}

type pickupRequest struct {
	PartnerID string `json:"partner_id"`
}

func franchiseOf(r *http.Request) string {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.FranchiseID
}

func returnIndex(r *http.Request) (int, error) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil || idx < 0 {
		return 0, shared.InvalidInput("orders: invalid return index %q", chi.URLParam(r, "idx"))
	}
	return idx, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var filter Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("payment_mode"); raw != "" {
		mode, err := ParsePaymentMode(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.PaymentMode = mode
	}
	orders, err := h.service.List(r.Context(), franchiseOf(r), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateInput{
		HotelName:         req.HotelName,
		PaymentMode:       req.PaymentMode,
		DeliveryPartnerID: req.DeliveryPartnerID,
		Note:              req.Note,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, CreateItem(item))
	}
	order, err := h.service.CreateOrder(r.Context(), franchiseOf(r), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), franchiseOf(r), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), franchiseOf(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), franchiseOf(r), chi.URLParam(r, "id"), req.Status, TransitionExtra{
		NumberOfPackages:  req.NumberOfPackages,
		DeliveryPartnerID: req.DeliveryPartnerID,
		Note:              req.Note,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) requestReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.RequestReturn(r.Context(), franchiseOf(r), chi.URLParam(r, "id"), req.Items, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) reviewReturn(w http.ResponseWriter, r *http.Request) {
	idx, err := returnIndex(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reviewRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.ReviewReturn(r.Context(), franchiseOf(r), chi.URLParam(r, "id"), idx, *req.Approve, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) assignPickup(w http.ResponseWriter, r *http.Request) {
	idx, err := returnIndex(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req pickupRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.AssignPickup(r.Context(), franchiseOf(r), chi.URLParam(r, "id"), idx, req.PartnerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) markPickedUp(w http.ResponseWriter, r *http.Request) {
	idx, err := returnIndex(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.MarkReturnPickedUp(r.Context(), franchiseOf(r), chi.URLParam(r, "id"), idx)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) completeReturn(w http.ResponseWriter, r *http.Request) {
	idx, err := returnIndex(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.CompleteReturn(r.Context(), franchiseOf(r), chi.URLParam(r, "id"), idx)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.validator.Struct(target)
}
