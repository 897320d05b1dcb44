package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans swaps in an in-memory exporter for the test's duration.
func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

// tracedRouter responds with status on the checkout and cart item routes.
func tracedRouter(status int) http.Handler {
	r := chi.NewRouter()
	r.Use(Tracing("storefront"))
	h := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(status) }
	r.Get("/api/v1/cart/items/{id}", h)
	r.Get("/payment/success", h)
	return r
}

func attrs(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestTracing_ServerSpan(t *testing.T) {
	tests := []struct {
		status  int
		wantErr bool
	}{
		{http.StatusOK, false},
		{http.StatusNotFound, false},
		{http.StatusUnprocessableEntity, false},
		{http.StatusBadGateway, true},
	}

	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			exporter := recordSpans(t)

			rec := httptest.NewRecorder()
			tracedRouter(tc.status).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart/items/pide-1", nil))
			require.Equal(t, tc.status, rec.Code)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			span := spans[0]
			assert.Equal(t, "GET /api/v1/cart/items/{id}", span.Name)

			a := attrs(span.Attributes)
			assert.Equal(t, "/api/v1/cart/items/{id}", a["http.route"].AsString())
			assert.Equal(t, int64(tc.status), a["http.status_code"].AsInt64())
			if tc.wantErr {
				assert.Equal(t, codes.Error, span.Status.Code)
			} else {
				assert.NotEqual(t, codes.Error, span.Status.Code)
			}
		})
	}
}

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	exporter := recordSpans(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/items/x", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	tracedRouter(http.StatusOK).ServeHTTP(rec, req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())
	assert.Contains(t, rec.Header().Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestTracing_NewTraceStillAnswersTraceparent(t *testing.T) {
	recordSpans(t)

	rec := httptest.NewRecorder()
	tracedRouter(http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart/items/x", nil))
	assert.NotEmpty(t, rec.Header().Get("traceparent"))
}

func TestTracing_SessionAttribute(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"header", "/api/v1/cart/items/x", "sess-9", "sess-9"},
		{"redirect query", "/payment/success?payment_intent=pi_1&session_id=sess-q", "", "sess-q"},
		{"header beats query", "/payment/success?session_id=sess-q", "sess-h", "sess-h"},
		{"none", "/api/v1/cart/items/x", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exporter := recordSpans(t)

			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(SessionIDHeader, tc.header)
			}
			tracedRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), req)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			v, ok := attrs(spans[0].Attributes)["storefront.session_id"]
			if tc.want == "" {
				assert.False(t, ok)
				return
			}
			assert.Equal(t, tc.want, v.AsString())
		})
	}
}
