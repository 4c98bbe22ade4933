package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/franchise-ops/internal/audit"
	"github.com/odyssey-erp/franchise-ops/internal/cod"
	"github.com/odyssey-erp/franchise-ops/internal/dashboard"
	"github.com/odyssey-erp/franchise-ops/internal/inventory"
	"github.com/odyssey-erp/franchise-ops/internal/observability"
	"github.com/odyssey-erp/franchise-ops/internal/orders"
	"github.com/odyssey-erp/franchise-ops/internal/platform/httpx"
	"github.com/odyssey-erp/franchise-ops/internal/receiving"
	"github.com/odyssey-erp/franchise-ops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	InventoryHandler *inventory.Handler
	OrdersHandler    *orders.Handler
	ReceivingHandler *receiving.Handler
	CODHandler       *cod.Handler
	DashboardHandler *dashboard.Handler
	AuditHandler     *audit.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.OrdersHandler != nil {
		r.Route("/orders", params.OrdersHandler.MountRoutes)
	}
	if params.ReceivingHandler != nil {
		r.Route("/receiving", params.ReceivingHandler.MountRoutes)
	}
	if params.CODHandler != nil {
		r.Route("/cod", params.CODHandler.MountRoutes)
	}
	if params.DashboardHandler != nil {
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
