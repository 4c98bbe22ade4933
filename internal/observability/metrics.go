package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	orderTransitions *prometheus.CounterVec
	stockShortfalls  *prometheus.CounterVec
	grnsPosted       *prometheus.CounterVec
	codDeposits      prometheus.Counter
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "franchise_order_transitions_total",
		Help: "Order status transitions committed, by target status.",
	}, []string{"status"})
	shortfalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "franchise_inventory_shortfalls_total",
		Help: "Deduction lines rejected for insufficient stock, by caller.",
	}, []string{"source"})
	grns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "franchise_grns_posted_total",
		Help: "Goods received notes posted, by PO match and settlement status.",
	}, []string{"po_matched", "settlement"})
	deposits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "franchise_cod_deposits_total",
		Help: "COD transactions confirmed as deposited.",
	})
	registry.MustRegister(requests, duration, transitions, shortfalls, grns, deposits)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		orderTransitions: transitions,
		stockShortfalls:  shortfalls,
		grnsPosted:       grns,
		codDeposits:      deposits,
	}
}

// ObserveOrderTransition counts a committed status change.
func (m *Metrics) ObserveOrderTransition(status string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(status).Inc()
}

// ObserveShortfall counts rejected deduction lines.
func (m *Metrics) ObserveShortfall(source string, lines int) {
	if m == nil || lines <= 0 {
		return
	}
	m.stockShortfalls.WithLabelValues(source).Add(float64(lines))
}

// ObserveGRN counts a posted GRN.
func (m *Metrics) ObserveGRN(poMatched bool, settlement string) {
	if m == nil {
		return
	}
	m.grnsPosted.WithLabelValues(strconv.FormatBool(poMatched), settlement).Inc()
}

// ObserveDeposit counts a confirmed COD deposit.
func (m *Metrics) ObserveDeposit() {
	if m == nil {
		return
	}
	m.codDeposits.Inc()
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
