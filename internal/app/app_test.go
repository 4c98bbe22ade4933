package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/franchise-ops/internal/observability"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
	_ "github.com/odyssey-erp/franchise-ops/internal/testing/guard"
)

func TestInTestModeUnderGuard(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 48*time.Hour, cfg.ReturnWindow)
	require.True(t, cfg.GRNDefaultUnitPrice.IsZero())
	require.Equal(t, "franchise.events", cfg.AMQPExchange)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RETURN_WINDOW", "72h")
	t.Setenv("GRN_DEFAULT_UNIT_PRICE", "12.50")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 72*time.Hour, cfg.ReturnWindow)
	require.True(t, decimal.RequireFromString("12.5").Equal(cfg.GRNDefaultUnitPrice))
	require.True(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("GRN_DEFAULT_UNIT_PRICE", "-1")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("GRN_DEFAULT_UNIT_PRICE", "0")
	t.Setenv("RETURN_WINDOW", "0s")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestActorMiddlewareReadsGatewayHeaders(t *testing.T) {
	var got shared.Actor
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = shared.ActorFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderFranchiseID, " fr-9 ")
	req.Header.Set(HeaderActorID, "u-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, shared.Actor{FranchiseID: "fr-9", UserID: "u-1"}, got)
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	router := NewRouter(RouterParams{Metrics: observability.NewMetrics()})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "odyssey_http_requests_total")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMiddlewareStackOrder(t *testing.T) {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{}) {
		r.Use(mw)
	}
	var actor shared.Actor
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		actor, _ = shared.ActorFromContext(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderFranchiseID, "fr-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "fr-1", actor.FranchiseID)
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}
