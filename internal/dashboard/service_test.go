package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/franchise-ops/internal/cod"
	"github.com/odyssey-erp/franchise-ops/internal/inventory"
	"github.com/odyssey-erp/franchise-ops/internal/orders"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

type stubSources struct {
	calls    atomic.Int32
	orderErr error
}

func (s *stubSources) Stats(ctx context.Context, franchiseID string) (inventory.Stats, error) {
	s.calls.Add(1)
	return inventory.Stats{TotalItems: 4, HealthyCount: 3, LowStockCount: 1, HealthPercentage: 75, TotalValue: decimal.NewFromInt(90)}, nil
}

type stubOrders struct{ src *stubSources }

func (s stubOrders) Stats(ctx context.Context, franchiseID string) (orders.Stats, error) {
	if s.src.orderErr != nil {
		return orders.Stats{}, s.src.orderErr
	}
	return orders.Stats{Total: 2, Delivered: 1, DeliveredRevenue: decimal.NewFromInt(40), CODLiability: decimal.NewFromInt(40)}, nil
}

type stubCash struct{}

func (stubCash) Summary(ctx context.Context, franchiseID string, filter cod.Filter) (cod.Summary, error) {
	return cod.Summary{
		TotalToDeposit: decimal.NewFromInt(40),
		TotalDeposited: decimal.Zero,
		TotalCollected: decimal.NewFromInt(40),
		PendingTxCount: 1,
	}, nil
}

func newTestService(src *stubSources, cache *Cache) *Service {
	return NewService(src, stubOrders{src: src}, stubCash{}, cache, nil)
}

func TestSummaryCombinesSources(t *testing.T) {
	src := &stubSources{}
	svc := newTestService(src, nil)

	summary, err := svc.Summary(context.Background(), "fr-1")
	require.NoError(t, err)
	require.Equal(t, "fr-1", summary.FranchiseID)
	require.Equal(t, 75, summary.Inventory.HealthPercentage)
	require.Equal(t, 2, summary.Orders.Total)
	require.True(t, decimal.NewFromInt(40).Equal(summary.COD.TotalCollected))
}

func TestSummaryFailsWhenAnySourceFails(t *testing.T) {
	src := &stubSources{orderErr: errors.New("orders offline")}
	_, err := newTestService(src, nil).Summary(context.Background(), "fr-1")
	require.Error(t, err)

	_, err = newTestService(&stubSources{}, nil).Summary(context.Background(), " ")
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSummaryIsCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	src := &stubSources{}
	svc := newTestService(src, cache)
	ctx := context.Background()

	first, err := svc.Summary(ctx, "fr-1")
	require.NoError(t, err)
	second, err := svc.Summary(ctx, "fr-1")
	require.NoError(t, err)
	require.Equal(t, int32(1), src.calls.Load())
	require.True(t, first.Inventory.TotalValue.Equal(second.Inventory.TotalValue))
	require.True(t, mr.Exists("dashboard:summary:fr-1"))

	require.NoError(t, cache.Invalidate(ctx, "fr-1"))
	_, err = svc.Summary(ctx, "fr-1")
	require.NoError(t, err)
	require.Equal(t, int32(2), src.calls.Load())
}

func TestNewCacheDisabled(t *testing.T) {
	require.Nil(t, NewCache(nil, time.Minute))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.Nil(t, NewCache(client, 0))
}

func TestSummaryHandler(t *testing.T) {
	svc := newTestService(&stubSources{}, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.ContextWithActor(r.Context(), shared.Actor{FranchiseID: r.Header.Get("X-Franchise-ID")})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	NewHandler(nil, svc).MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/summary", nil)
	req.Header.Set("X-Franchise-ID", "fr-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var body Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 3, body.Inventory.HealthyCount)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/summary", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
