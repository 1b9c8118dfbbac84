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
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	sequenceIssued    *prometheus.CounterVec
	sequenceConflicts *prometheus.CounterVec
	sequenceFailures  *prometheus.CounterVec
	authzDecisions    *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry, metrik HTTP, dan metrik domain.
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
	issued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_sequence_issued_total",
		Help: "Jumlah nomor dokumen yang berhasil diterbitkan per key.",
	}, []string{"key"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_sequence_conflicts_total",
		Help: "Jumlah konflik tulis store yang dicoba ulang per key.",
	}, []string{"key"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_sequence_failures_total",
		Help: "Jumlah penerbitan yang gagal per key.",
	}, []string{"key"})
	authz := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_authz_decisions_total",
		Help: "Keputusan otorisasi berdasarkan tier dan hasil.",
	}, []string{"tier", "decision"})
	registry.MustRegister(requests, duration, issued, conflicts, failures, authz)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		sequenceIssued:    issued,
		sequenceConflicts: conflicts,
		sequenceFailures:  failures,
		authzDecisions:    authz,
	}
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

// ObserveIssuance mencatat hasil satu penerbitan nomor.
func (m *Metrics) ObserveIssuance(key string, conflicts int, err error) {
	if m == nil {
		return
	}
	if conflicts > 0 {
		m.sequenceConflicts.WithLabelValues(key).Add(float64(conflicts))
	}
	if err != nil {
		m.sequenceFailures.WithLabelValues(key).Inc()
		return
	}
	m.sequenceIssued.WithLabelValues(key).Inc()
}

// ObserveAuthz mencatat keputusan rantai otorisasi.
func (m *Metrics) ObserveAuthz(tier, decision string) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(tier, decision).Inc()
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
