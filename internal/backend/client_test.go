package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	raw := httpclient.New(httpclient.Config{Timeout: 5 * time.Second, MaxRetries: 0, MaxConnsPerHost: 10})
	cb := httpclient.NewCircuitBreakerClient(raw, httpclient.CircuitBreakerConfig{
		Name:         t.Name(),
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  3,
	}, quietLogger()).WithFallback(CircuitOpenFallback)

	return NewClient(server.URL+"/api/", cb, quietLogger()), server
}

func sampleDraft() domain.OrderDraft {
	ledger := domain.NewLedger()
	ledger.AddItem(domain.AddItemInput{ID: "food-a", Name: "Pide", UnitPrice: decimal.RequireFromString("10.00")})
	ledger.AddItem(domain.AddItemInput{ID: "food-a", Name: "Pide", UnitPrice: decimal.RequireFromString("10.00")})
	ledger.AddItem(domain.AddItemInput{
		ID:        "food-b",
		Name:      "Ayran",
		UnitPrice: decimal.RequireFromString("5.00"),
		Discount:  &domain.Discount{Active: true, Percent: decimal.NewFromInt(20), DiscountedUnitPrice: decimal.RequireFromString("4.00")},
	})
	addr := domain.Address{ID: "addr-1", Street: "Main St 1", City: "Istanbul", District: "Kadikoy", PostalCode: "34710", Phone: "555-0100"}
	return domain.NewOrderDraft(ledger.Snapshot(), addr, "USD")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCreatePaymentIntent_Success(t *testing.T) {
	var got map[string]any
	var headers http.Header
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/payment/create-payment-intent", r.URL.Path)
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]string{
			"clientSecret":    "pi_1_secret",
			"paymentIntentId": "pi_1",
			"orderId":         "order-9",
		})
	})

	intent, err := client.CreatePaymentIntent(context.Background(), "tok", sampleDraft(), "fp-123")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.PaymentIntentID)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
	assert.Equal(t, "order-9", intent.OrderID)

	assert.Equal(t, "Bearer tok", headers.Get("Authorization"))
	assert.Equal(t, "fp-123", headers.Get(httpclient.IdempotencyKeyHeader))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))

	assert.Equal(t, 24.0, got["amount"])
	assert.Equal(t, "usd", got["currency"])
	items := got["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "food-a", first["food"])
	assert.Equal(t, 2.0, first["quantity"])
	assert.Equal(t, 10.0, first["price"])
	second := items[1].(map[string]any)
	assert.Equal(t, 4.0, second["price"])
	addr := got["deliveryAddress"].(map[string]any)
	assert.Equal(t, "Kadikoy", addr["district"])
	assert.Equal(t, "34710", addr["postalCode"])
}

func TestCreatePaymentIntent_BackendMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "food is out of stock"})
	})

	_, err := client.CreatePaymentIntent(context.Background(), "tok", sampleDraft(), "fp")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, "food is out of stock", apperrors.UserMessage(err))
}

func TestCreatePaymentIntent_Unauthorized(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]string{"code": "TOKEN_EXPIRED", "message": "session expired"},
		})
	})

	_, err := client.CreatePaymentIntent(context.Background(), "tok", sampleDraft(), "fp")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthenticated))
	assert.Equal(t, "session expired", apperrors.UserMessage(err))
}

func TestCreatePaymentIntent_ServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "stripe down"})
	})

	_, err := client.CreatePaymentIntent(context.Background(), "tok", sampleDraft(), "fp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stripe down")
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
}

func TestClient_NetworkError(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.ConfirmPayment(context.Background(), "tok", "pi_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNetwork))
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.ConfirmPayment(ctx, "tok", "pi_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNetwork))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_CircuitOpenFallback(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 3; i++ {
		_, _ = client.ListAddresses(context.Background(), "tok")
	}
	require.Equal(t, int32(3), hits.Load())

	_, err := client.ListAddresses(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.Contains(t, err.Error(), "please retry after 60 seconds")
	assert.Equal(t, int32(3), hits.Load())
}

func TestConfirmPayment(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   domain.PaymentStatus
	}{
		{"succeeded", "succeeded", domain.PaymentSucceeded},
		{"requires action", "requires_action", domain.PaymentFailed},
		{"failed", "failed", domain.PaymentFailed},
		{"missing", "", domain.PaymentFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body map[string]string
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/payment/confirm-payment", r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				writeJSON(w, http.StatusOK, map[string]string{"paymentStatus": tc.status})
			})

			got, err := client.ConfirmPayment(context.Background(), "tok", "pi_7")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, "pi_7", body["paymentIntentId"])
		})
	}
}

func TestListAddresses(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/users/addresses", r.URL.Path)
		_, _ = io.WriteString(w, `{"addresses":[
			{"_id":"a1","title":"Home","street":"Main 1","city":"Izmir","district":"Bornova","postalCode":"35000","phone":"555","isDefault":true},
			{"_id":"a2","title":"Work","street":"Side 2","city":"Izmir","district":"Konak","phone":"556","isDefault":false}
		]}`)
	})

	addrs, err := client.ListAddresses(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.Equal(t, domain.Address{
		ID: "a1", Title: "Home", Street: "Main 1", City: "Izmir", District: "Bornova",
		PostalCode: "35000", Phone: "555", IsDefault: true,
	}, addrs[0])
	assert.Equal(t, "a2", addrs[1].ID)
	assert.False(t, addrs[1].IsDefault)
}

func TestAddressMutations(t *testing.T) {
	type seen struct{ method, path string }
	var calls []seen
	var created map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, seen{r.Method, r.URL.Path})
		if r.Method == http.MethodPost {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	require.NoError(t, client.CreateAddress(ctx, "tok", domain.Address{
		ID: "ignored", Title: "Home", Street: "Main 1", City: "Izmir", District: "Bornova", Phone: "555",
	}))
	require.NoError(t, client.SetDefaultAddress(ctx, "tok", "a1"))
	require.NoError(t, client.DeleteAddress(ctx, "tok", "a/2"))

	assert.Equal(t, []seen{
		{http.MethodPost, "/api/users/addresses"},
		{http.MethodPut, "/api/users/addresses/a1/default"},
		{http.MethodDelete, "/api/users/addresses/a/2"},
	}, calls)
	assert.NotContains(t, created, "_id")
	assert.Equal(t, "Bornova", created["district"])
}

func TestDeleteAddress_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Address not found"})
	})

	err := client.DeleteAddress(context.Background(), "tok", "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(err))
}
