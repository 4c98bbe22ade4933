package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

type stubTimelineRepo struct {
	windowRows []TimelineRow
	allRows    []TimelineRow
	lastWindow WindowParams
	lastAll    TimelineFilters
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	s.lastWindow = arg
	return s.windowRows, nil
}

func (s *stubTimelineRepo) TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	s.lastAll = filters
	return s.allRows, nil
}

func row(ts, action, entity, id string) TimelineRow {
	at, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{At: at, Actor: "u-1", Action: action, Entity: entity, EntityID: id}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{windowRows: []TimelineRow{
		row("2025-03-10T10:00:00Z", "orders.status_changed", "order", "o-1"),
		row("2025-03-09T09:00:00Z", "receiving.grn.posted", "grn", "g-1"),
		row("2025-03-08T08:00:00Z", "cod.deposited", "cod_transaction", "c-1"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{FranchiseID: "fr-1", Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 3, result.Paging.NextPage)
	require.Equal(t, 1, result.Paging.PrevPage)
	require.Equal(t, 3, repo.lastWindow.Limit)
	require.Equal(t, 2, repo.lastWindow.Offset)
	require.Equal(t, "fr-1", repo.lastWindow.FranchiseID)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	result, err := NewService(repo).Timeline(context.Background(), TimelineFilters{FranchiseID: "fr-1", PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize+1, repo.lastWindow.Limit)
	require.Equal(t, 1, result.Paging.Page)
	require.Empty(t, result.Rows)
	require.False(t, result.Paging.HasNext)
}

func TestServiceRequiresFranchise(t *testing.T) {
	svc := NewService(&stubTimelineRepo{})
	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = svc.Export(context.Background(), TimelineFilters{FranchiseID: " "})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func newTestRouter(svc TimelineService) chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.ContextWithActor(r.Context(), shared.Actor{FranchiseID: "fr-1"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	h := NewHandler(nil, svc)
	h.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	h.MountRoutes(r)
	return r
}

func TestHandlerDefaultsToLastWeek(t *testing.T) {
	repo := &stubTimelineRepo{}
	r := newTestRouter(NewService(repo))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/timeline?entity=order", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), repo.lastWindow.From)
	require.Equal(t, time.Date(2025, 3, 10, 23, 59, 59, 999999999, time.UTC), repo.lastWindow.To)
	require.Equal(t, "order", repo.lastWindow.Entity)
}

func TestHandlerRejectsBadFilters(t *testing.T) {
	r := newTestRouter(NewService(&stubTimelineRepo{}))
	for _, query := range []string{"from=2025-03-11&to=2025-03-10", "from=2024-01-01&to=2025-03-10", "to=yesterday", "page=0"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/timeline?"+query, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestHandlerExportsCSV(t *testing.T) {
	repo := &stubTimelineRepo{allRows: []TimelineRow{
		{At: time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC), Actor: "u-1", Action: "cod.deposited", Entity: "cod_transaction", EntityID: "c-1", Meta: map[string]any{"bank_reference": "BR-1"}},
	}}
	r := newTestRouter(NewService(repo))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/timeline.csv", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "at,actor,action,entity,entity_id,meta", lines[0])
	require.Equal(t, `2025-03-09T09:00:00Z,u-1,cod.deposited,cod_transaction,c-1,"{""bank_reference"":""BR-1""}"`, lines[1])
	require.Equal(t, "fr-1", repo.lastAll.FranchiseID)
}
