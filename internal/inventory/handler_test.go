package inventory

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	h := NewHandler(slog.Default(), NewService(repo, nil, nil, nil, nil))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithActor(req.Context(), shared.Actor{FranchiseID: req.Header.Get("X-Franchise-ID")})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.MountRoutes(r)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body)).WithContext(context.Background())
	req.Header.Set("X-Franchise-ID", franchise)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerDeductReturnsShortfalls(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "towel", 2, 10, "1")
	router := newTestRouter(repo)

	rr := doRequest(t, router, http.MethodPost, "/deduct", `{"items":[{"product_id":"towel","qty":10}]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Errors  []DeductionError `json:"errors"`
		Applied bool             `json:"applied"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.False(t, body.Applied)
	require.Len(t, body.Errors, 1)
	require.EqualValues(t, 8, body.Errors[0].Shortfall)
}

func TestHandlerSetStockRejectsNegative(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "towel", 2, 10, "1")
	router := newTestRouter(repo)

	rr := doRequest(t, router, http.MethodPut, "/items/towel/stock", `{"quantity":-4}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), string(shared.KindInvalidInput))

	rr = doRequest(t, router, http.MethodPut, "/items/ghost/stock", `{"quantity":4}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, router, http.MethodPut, "/items/towel/stock", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerStats(t *testing.T) {
	repo := newMemoryRepo()
	seed(repo, "towel", 20, 10, "1")
	router := newTestRouter(repo)

	rr := doRequest(t, router, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Equal(t, 100, stats.HealthPercentage)
}
