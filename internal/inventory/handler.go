package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/franchise-ops/internal/platform/httpx"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// Handler exposes inventory endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.listItems)
	r.Get("/items/{id}", h.getItem)
	r.Put("/items/{id}", h.upsertItem)
	r.Put("/items/{id}/stock", h.setStock)
	r.Post("/deduct", h.deduct)
	r.Post("/add", h.add)
	r.Get("/low-stock", h.lowStock)
	r.Get("/stats", h.stats)
}

type upsertRequest struct {
	Name     string          `json:"name" validate:"required"`
	Category string          `json:"category"`
	MBQ      int64           `json:"mbq" validate:"gte=0"`
	Unit     string          `json:"unit"`
	Price    decimal.Decimal `json:"price"`
}

type setStockRequest struct {
	Quantity *int64 `json:"quantity" validate:"required"`
}

type linesRequest struct {
	Items []lineRequest `json:"items" validate:"required,min=1,dive"`
}

type lineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Name      string `json:"name"`
	Unit      string          `json:"unit"`
	Price     decimal.Decimal `json:"price"`
	Qty       int64           `json:"qty"`
}

func franchiseOf(r *http.Request) string {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.FranchiseID
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), franchiseOf(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), franchiseOf(r), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) upsertItem(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpsertItem(r.Context(), franchiseOf(r), UpsertInput{
		ProductID: chi.URLParam(r, "id"),
		Name:      req.Name,
		Category:  req.Category,
		MBQ:       req.MBQ,
		Unit:      req.Unit,
		Price:     req.Price,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.SetStock(r.Context(), franchiseOf(r), chi.URLParam(r, "id"), *req.Quantity)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deduct(w http.ResponseWriter, r *http.Request) {
	var req linesRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines := make([]Line, len(req.Items))
	for i, item := range req.Items {
		lines[i] = Line{ProductID: item.ProductID, Qty: item.Qty}
	}
	short, err := h.service.Deduct(r.Context(), franchiseOf(r), lines)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if short == nil {
		short = []DeductionError{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"errors": short, "applied": len(short) == 0})
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	var req linesRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines := make([]AddLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = AddLine{ProductID: item.ProductID, Name: item.Name, Unit: item.Unit, Price: item.Price, Qty: item.Qty}
	}
	if err := h.service.Add(r.Context(), franchiseOf(r), lines); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStockItems(r.Context(), franchiseOf(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), franchiseOf(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		h.logger.Debug("inventory request rejected", slog.Any("error", err))
		return err
	}
	return h.validator.Struct(target)
}
