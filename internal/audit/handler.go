package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/franchise-ops/internal/platform/httpx"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// TimelineService is the contract the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
	Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

// Handler serves the audit trail.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/timeline", h.timeline)
	r.Get("/timeline.csv", h.export)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	if err := writeCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func writeCSV(w http.ResponseWriter, rows []TimelineRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"at", "actor", "action", "entity", "entity_id", "meta"}); err != nil {
		return err
	}
	for _, row := range rows {
		meta := ""
		if len(row.Meta) > 0 {
			raw, err := json.Marshal(row.Meta)
			if err != nil {
				return err
			}
			meta = string(raw)
		}
		if err := cw.Write([]string{row.At.UTC().Format(time.RFC3339), row.Actor, row.Action, row.Entity, row.EntityID, meta}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	actor, _ := shared.ActorFromContext(r.Context())
	now := h.now().UTC()

	toStr := strings.TrimSpace(q.Get("to"))
	if toStr == "" {
		toStr = now.Format(time.DateOnly)
	}
	toDay, err := time.Parse(time.DateOnly, toStr)
	if err != nil {
		return TimelineFilters{}, shared.InvalidInput("audit: invalid to: %s", toStr)
	}
	fromStr := strings.TrimSpace(q.Get("from"))
	if fromStr == "" {
		fromStr = toDay.Add(-defaultDateRange).Format(time.DateOnly)
	}
	fromDay, err := time.Parse(time.DateOnly, fromStr)
	if err != nil {
		return TimelineFilters{}, shared.InvalidInput("audit: invalid from: %s", fromStr)
	}
	if fromDay.After(toDay) || toDay.Sub(fromDay) > maxDateRange {
		return TimelineFilters{}, shared.InvalidInput("audit: invalid range %s..%s", fromStr, toStr)
	}

	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		return TimelineFilters{}, shared.InvalidInput("audit: invalid page")
	}
	pageSize, err := positiveInt(q.Get("page_size"), defaultPageSize)
	if err != nil {
		return TimelineFilters{}, shared.InvalidInput("audit: invalid page_size")
	}

	return TimelineFilters{
		FranchiseID: actor.FranchiseID,
		From:        fromDay,
		To:          toDay.Add(24*time.Hour - time.Nanosecond),
		Actor:       strings.TrimSpace(q.Get("actor")),
		Entity:      strings.TrimSpace(q.Get("entity")),
		Action:      strings.TrimSpace(q.Get("action")),
		Page:        page,
		PageSize:    pageSize,
	}, nil
}

func positiveInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
