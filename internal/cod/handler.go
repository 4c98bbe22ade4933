package cod

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/franchise-ops/internal/platform/httpx"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// Handler exposes COD endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers COD routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/transactions", h.list)
	r.Post("/transactions", h.collect)
	r.Post("/transactions/{id}/deposit", h.deposit)
	r.Get("/summary", h.summary)
}

type collectRequest struct {
	OrderID     string          `json:"order_id" validate:"required"`
	HotelName   string          `json:"hotel_name"`
	Amount      decimal.Decimal `json:"amount"`
	CollectedBy string          `json:"collected_by"`
}

type depositRequest struct {
	BankReference string `json:"bank_reference"`
}

func franchiseOf(r *http.Request) string {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.FranchiseID
}

// parseFilter reads status, from and to (RFC3339 or YYYY-MM-DD) query parameters.
func parseFilter(r *http.Request) (Filter, error) {
	var filter Filter
	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			return Filter{}, err
		}
		filter.Status = status
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw, name == "to")
		if err != nil {
			return Filter{}, shared.InvalidInput("cod: invalid %s: %s", name, raw)
		}
		*dst = &t
	}
	return filter, nil
}

func parseTime(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	txs, err := h.service.ListTransactions(r.Context(), franchiseOf(r), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) collect(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	record, err := h.service.RecordCollection(r.Context(), franchiseOf(r), CollectionInput{
		OrderID:     req.OrderID,
		HotelName:   req.HotelName,
		Amount:      req.Amount,
		CollectedBy: req.CollectedBy,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, record)
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	record, err := h.service.MarkDeposited(r.Context(), franchiseOf(r), chi.URLParam(r, "id"), req.BankReference)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "cod deposited", slog.String("tx_id", record.ID))
	httpx.JSON(w, http.StatusOK, record)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.Summary(r.Context(), franchiseOf(r), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
