package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered returns the series of family name whose labels include want.
func gathered(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			have := make(map[string]string)
			for _, l := range m.GetLabel() {
				have[l.GetName()] = l.GetValue()
			}
			ok := true
			for k, v := range want {
				ok = ok && have[k] == v
			}
			if ok {
				return m
			}
		}
	}
	return nil
}

// instrumentedCart serves a cart item route behind metrics recorded on a
// private registry.
func instrumentedCart(h http.HandlerFunc) (*prometheus.Registry, http.Handler) {
	reg := prometheus.NewRegistry()
	r := chi.NewRouter()
	r.Use(newHTTPMetrics(reg).middleware("storefront"))
	r.Put("/api/v1/cart/items/{id}", h)
	return reg, r
}

func TestHTTPMetrics_ByRoutePattern(t *testing.T) {
	reg, h := instrumentedCart(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	for _, id := range []string{"pide-1", "lahmacun-2", "missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/"+id, nil))
	}

	ok := gathered(t, reg, "http_requests_total", map[string]string{"route": "/api/v1/cart/items/{id}", "status": "200", "method": "PUT"})
	require.NotNil(t, ok)
	assert.InDelta(t, 2, ok.GetCounter().GetValue(), 0.001)

	notFound := gathered(t, reg, "http_requests_total", map[string]string{"route": "/api/v1/cart/items/{id}", "status": "404"})
	require.NotNil(t, notFound)
	assert.InDelta(t, 1, notFound.GetCounter().GetValue(), 0.001)

	latency := gathered(t, reg, "http_request_duration_seconds", map[string]string{"status": "200"})
	require.NotNil(t, latency)
	assert.Equal(t, uint64(2), latency.GetHistogram().GetSampleCount())

	size := gathered(t, reg, "http_response_size_bytes", map[string]string{"service": "storefront"})
	require.NotNil(t, size)
	assert.InDelta(t, float64(2*len(`{"data":{}}`)), size.GetHistogram().GetSampleSum(), 0.001)
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	reg, h := instrumentedCart(func(http.ResponseWriter, *http.Request) {})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wp-admin", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	m := gathered(t, reg, "http_requests_total", map[string]string{"route": unmatchedRoute, "status": "404"})
	require.NotNil(t, m)
}

func TestHTTPMetrics_InFlight(t *testing.T) {
	var during float64
	var reg *prometheus.Registry
	reg, h := instrumentedCart(func(w http.ResponseWriter, r *http.Request) {
		during = gathered(t, reg, "http_requests_in_flight", nil).GetGauge().GetValue()
	})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/x", nil))

	assert.InDelta(t, 1, during, 0.001)
	assert.InDelta(t, 0, gathered(t, reg, "http_requests_in_flight", nil).GetGauge().GetValue(), 0.001)
}

func TestPrometheusMetrics_DefaultRegistry(t *testing.T) {
	h := PrometheusMetrics("default-registry")(okHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "http_requests_total")
	assert.Contains(t, names, "http_response_size_bytes")
}

func TestStatusRecorder_FirstWriteHeaderWins(t *testing.T) {
	rw := newStatusRecorder(httptest.NewRecorder())
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	_, _ = rw.Write([]byte("abc"))

	assert.Equal(t, http.StatusCreated, rw.statusCode)
	assert.Equal(t, 3, rw.bytes)
}

func TestStatusRecorder_ImplicitOK(t *testing.T) {
	rw := newStatusRecorder(httptest.NewRecorder())
	_, _ = rw.Write([]byte(strings.Repeat("x", 10)))
	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, 10, rw.bytes)
}

type flushHijacker struct {
	http.ResponseWriter
	flushed, hijacked bool
}

func (f *flushHijacker) Flush() { f.flushed = true }

func (f *flushHijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	f.hijacked = true
	return nil, nil, nil
}

type bareWriter struct{ h http.Header }

func (b *bareWriter) Header() http.Header {
	if b.h == nil {
		b.h = make(http.Header)
	}
	return b.h
}
func (b *bareWriter) Write(p []byte) (int, error) { return len(p), nil }
func (b *bareWriter) WriteHeader(int)             {}

func TestStatusRecorder_Delegation(t *testing.T) {
	under := &flushHijacker{ResponseWriter: httptest.NewRecorder()}
	rw := newStatusRecorder(under)

	rw.Flush()
	_, _, err := rw.Hijack()
	require.NoError(t, err)
	assert.True(t, under.flushed)
	assert.True(t, under.hijacked)

	bare := newStatusRecorder(&bareWriter{})
	assert.NotPanics(t, bare.Flush)
	_, _, err = bare.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
}
