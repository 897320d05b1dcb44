package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute labels requests chi could not route, keeping stray 404s to a
// single series.
const unmatchedRoute = "unmatched"

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

var defaultHTTPMetrics = newHTTPMetrics(prometheus.DefaultRegisterer)

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	labels := []string{"service", "method", "route", "status"}
	return &httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by route pattern and status code.",
		}, labels),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request latency. Checkout confirm calls wait on the payment provider.",
			// Extends the default buckets to cover slow payment confirmations.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}, labels),
		size: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response body size.",
			Buckets: prometheus.ExponentialBuckets(128, 4, 7),
		}, []string{"service", "route"}),
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}, []string{"service"}),
	}
}

// PrometheusMetrics returns middleware that records request metrics on the
// default registry, labelled by chi route pattern so /api/v1/cart/items/{id}
// is one series.
func PrometheusMetrics(serviceName string) func(next http.Handler) http.Handler {
	return defaultHTTPMetrics.middleware(serviceName)
}

func (m *httpMetrics) middleware(serviceName string) func(next http.Handler) http.Handler {
	inFlight := m.inFlight.WithLabelValues(serviceName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			inFlight.Inc()
			defer inFlight.Dec()

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := routePattern(r)
			status := strconv.Itoa(rec.statusCode)

			m.requests.WithLabelValues(serviceName, r.Method, route, status).Inc()
			m.duration.WithLabelValues(serviceName, r.Method, route, status).Observe(time.Since(start).Seconds())
			m.size.WithLabelValues(serviceName, route).Observe(float64(rec.bytes))
		})
	}
}

// routePattern returns the chi pattern that matched r, or unmatchedRoute.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}
