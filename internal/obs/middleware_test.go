package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/obs"
)

func TestHTTPMetricsUseMatchedRoute(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("storefront", []float64{0.01, 0.001}, registry)

	r := chi.NewRouter()
	r.Use(obs.RoutePatternMiddleware)
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/v1/checkout/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/orders/abc", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/api/v1/checkout/orders/{id}", "204")))
	require.Positive(t, testutil.CollectAndCount(metrics.Latency))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("storefront", nil, registry)
	second := obs.NewHTTPMetrics("storefront", nil, registry)
	require.Same(t, first.Requests, second.Requests)
}

func TestRequestLoggerRecordsRouteAndAnnotatedUser(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "info")

	r := chi.NewRouter()
	r.Use(obs.RoutePatternMiddleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Group(func(g chi.Router) {
		g.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				obs.AnnotateUser(req.Context(), "u1")
				next.ServeHTTP(w, req)
			})
		})
		g.Post("/api/v1/checkout/coupons", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		})
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/checkout/coupons", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "http_request", line["message"])
	require.Equal(t, "/api/v1/checkout/coupons", line["route"])
	require.Equal(t, "u1", line["user_id"])
	require.EqualValues(t, 422, line["status"])
	require.Equal(t, "info", line["level"])
}

func TestNewLoggerToFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "warn")
	logger.Info().Msg("hidden")
	require.Empty(t, buf.String())
	logger.Warn().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestUserAnnotationNeedsHolder(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	obs.AnnotateUser(req.Context(), "u1")
	require.Empty(t, obs.UserFromContext(req.Context()))

	ctx := obs.WithRoutePattern(req.Context(), "/x")
	obs.AnnotateUser(ctx, "u2")
	require.Equal(t, "u2", obs.UserFromContext(ctx))
	require.Equal(t, "/x", obs.RoutePatternFromContext(ctx))
}
