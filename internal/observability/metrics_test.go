package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveIssuance("WO", 0, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `odyssey_sequence_issued_total{key="WO"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	assert.True(t, strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1"), metricsBody)
	assert.True(t, strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\""), metricsBody)
}

func TestObserveIssuance(t *testing.T) {
	m := NewMetrics()
	m.ObserveIssuance("ORDER", 2, nil)
	m.ObserveIssuance("ORDER", 3, errors.New("exhausted"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sequenceIssued.WithLabelValues("ORDER")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.sequenceConflicts.WithLabelValues("ORDER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sequenceFailures.WithLabelValues("ORDER")))
}

func TestObserveAuthz(t *testing.T) {
	m := NewMetrics()
	m.ObserveAuthz("claims", "grant")
	m.ObserveAuthz("exhausted", "deny")
	m.ObserveAuthz("exhausted", "deny")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.authzDecisions.WithLabelValues("claims", "grant")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.authzDecisions.WithLabelValues("exhausted", "deny")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveIssuance("WO", 1, nil)
	m.ObserveAuthz("claims", "deny")
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
