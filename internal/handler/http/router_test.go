package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/auth"
	"github.com/utafrali/storefront/internal/backend"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository/memory"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/middleware"
)

// ============================================================================
// Fake food API
// ============================================================================

type foodAPI struct {
	mu            sync.Mutex
	addresses     []map[string]any
	paymentStatus string
	intents       int
	confirms      int
	lastAuth      string
}

func newFoodAPI() *foodAPI {
	return &foodAPI{
		paymentStatus: "succeeded",
		addresses: []map[string]any{
			{"_id": "addr-1", "title": "Home", "street": "Main 1", "city": "Izmir", "district": "Bornova", "phone": "555", "isDefault": true},
		},
	}
}

func (f *foodAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAuth = r.Header.Get("Authorization")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/payment/create-payment-intent":
		f.intents++
		writeTestJSON(w, http.StatusOK, map[string]any{
			"clientSecret":    "pi_1_secret",
			"paymentIntentId": "pi_1",
			"orderId":         "order-1",
		})
	case r.Method == http.MethodPost && r.URL.Path == "/api/payment/confirm-payment":
		f.confirms++
		writeTestJSON(w, http.StatusOK, map[string]any{"paymentStatus": f.paymentStatus})
	case r.Method == http.MethodGet && r.URL.Path == "/api/users/addresses":
		writeTestJSON(w, http.StatusOK, map[string]any{"addresses": f.addresses})
	case r.Method == http.MethodPost && r.URL.Path == "/api/users/addresses":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["_id"] = "addr-new"
		f.addresses = append(f.addresses, body)
		writeTestJSON(w, http.StatusCreated, map[string]any{"message": "created"})
	default:
		writeTestJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	}
}

func (f *foodAPI) intentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intents
}

func (f *foodAPI) confirmCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirms
}

func (f *foodAPI) setPaymentStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentStatus = status
}

func (f *foodAPI) authorization() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ============================================================================
// Test helpers
// ============================================================================

type nopNotifier struct{}

func (nopNotifier) CheckoutInitiated(context.Context, domain.CheckoutOutcome) error { return nil }
func (nopNotifier) CheckoutCompleted(context.Context, domain.CheckoutOutcome) error { return nil }
func (nopNotifier) PaymentFailed(context.Context, domain.CheckoutOutcome) error     { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	router     http.Handler
	api        *foodAPI
	storefront *service.Storefront
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	api := newFoodAPI()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	logger := testLogger()
	client := backend.NewClient(server.URL+"/api",
		httpclient.New(httpclient.Config{Timeout: 5 * time.Second, MaxConnsPerHost: 10}), logger)
	inspector := auth.NewInspector(0)

	cfg := service.DefaultCheckoutConfig()
	cfg.ConfirmationWindow = time.Minute
	sf := service.NewStorefront(client, client, memory.NewIntentCache(), nopNotifier{}, inspector, cfg, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router := NewRouter(ctx, sf, inspector.TokenInspector(), health.NewHandler(), RouterConfig{
		CORS:           middleware.DefaultCORSConfig(),
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		CartPath:       "/cart",
	}, logger)

	return &testEnv{router: router, api: api, storefront: sf}
}

type call struct {
	method  string
	path    string
	body    any
	session string
	token   string
}

func (e *testEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.Header.Set(middleware.SessionIDHeader, c.session)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && env.Data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

type checkoutResp struct {
	Step            string `json:"step"`
	PaymentStatus   string `json:"payment_status"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	OrderID         string `json:"order_id"`
	Error           *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Cart cartView `json:"cart"`
}

func pideBody() map[string]any {
	return map[string]any{"id": "pide", "name": "Pide", "price": 12.5}
}

// ============================================================================
// Sessions
// ============================================================================

func TestSessions_GeneratesAndEchoesID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodGet, path: "/api/v1/cart"})
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(middleware.SessionIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/v1/cart", session: id})
	assert.Equal(t, id, rec.Header().Get(middleware.SessionIDHeader))
	assert.Equal(t, 1, env.storefront.Len())
}

func TestSessions_MalformedIDReplaced(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodGet, path: "/api/v1/cart", session: "not-a-uuid"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(middleware.SessionIDHeader))
}

// ============================================================================
// Cart
// ============================================================================

func TestCart_AddUpdateRemoveClear(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.NewString()

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})
	require.Equal(t, http.StatusOK, rec.Code)

	var cart cartView
	decode(t, rec, &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, "25.00", cart.Total)
	assert.Equal(t, 2, cart.ItemCount)

	rec = env.do(t, call{method: http.MethodPut, path: "/api/v1/cart/items/pide", body: map[string]any{"quantity": 5}, session: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &cart)
	assert.Equal(t, "62.50", cart.Total)

	rec = env.do(t, call{method: http.MethodPut, path: "/api/v1/cart/items/pide", body: map[string]any{"quantity": 0}, session: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &cart)
	assert.Empty(t, cart.Items)
	assert.Equal(t, "0.00", cart.Total)

	env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})
	rec = env.do(t, call{method: http.MethodDelete, path: "/api/v1/cart/items/pide", session: sid})
	decode(t, rec, &cart)
	assert.Empty(t, cart.Items)

	env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})
	rec = env.do(t, call{method: http.MethodDelete, path: "/api/v1/cart", session: sid})
	decode(t, rec, &cart)
	assert.Empty(t, cart.Items)
	assert.Equal(t, 0, cart.ItemCount)
}

func TestCart_DiscountedItem(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.NewString()

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", session: sid, body: map[string]any{
		"id": "soup", "name": "Soup", "price": "10.00", "is_discount": true, "discount": 20,
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cart cartView
	decode(t, rec, &cart)
	require.Len(t, cart.Items, 1)
	assert.True(t, cart.Items[0].Discounted)
	assert.Equal(t, "8.00", cart.Items[0].EffectiveUnitPrice)
	assert.Equal(t, "8.00", cart.Total)
}

func TestCart_AddItemValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: map[string]any{"name": "Pide", "price": -1}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env2 := decode(t, rec, nil)
	require.NotNil(t, env2.Error)
	assert.Equal(t, "VALIDATION_ERROR", env2.Error.Code)
	assert.Contains(t, env2.Error.Fields, "id")
	assert.Contains(t, env2.Error.Fields, "price")
}

func TestCart_UpdateQuantityRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodPut, path: "/api/v1/cart/items/pide", body: map[string]any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec, nil).Error.Code)
}

func TestContentTypeJSON_Rejects(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("id=pide"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNSUPPORTED_MEDIA_TYPE")
}

// ============================================================================
// Checkout
// ============================================================================

func TestCheckout_RequiresLogin(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.NewString()
	env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout", session: sid})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", decode(t, rec, nil).Error.Code)

	var state checkoutResp
	decode(t, env.do(t, call{method: http.MethodGet, path: "/api/v1/checkout", session: sid}), &state)
	assert.Equal(t, "cart", state.Step)
	require.NotNil(t, state.Error)
	assert.Equal(t, "UNAUTHENTICATED", state.Error.Code)
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout", session: uuid.NewString(), token: "opaque-token"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "EMPTY_CART", decode(t, rec, nil).Error.Code)
}

func TestCheckout_FullFlowWithSavedAddress(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.NewString()
	token := "opaque-token"

	env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout", session: sid, token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var state checkoutResp
	decode(t, rec, &state)
	assert.Equal(t, "address", state.Step)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/address", body: map[string]any{"address_id": "addr-1"}, session: sid})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var payment checkoutResp
	decode(t, rec, &payment)
	assert.Equal(t, "payment", payment.Step)
	assert.Equal(t, "processing", payment.PaymentStatus)
	assert.Equal(t, "pi_1", payment.PaymentIntentID)
	assert.Equal(t, "pi_1_secret", payment.ClientSecret)
	assert.Equal(t, "Bearer "+token, env.api.authorization())

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/confirm", body: map[string]any{"payment_intent_id": "pi_1"}, session: sid})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var confirmed checkoutResp
	decode(t, rec, &confirmed)
	assert.Equal(t, "confirmation", confirmed.Step)
	assert.Equal(t, "succeeded", confirmed.PaymentStatus)
	assert.Equal(t, "order-1", confirmed.OrderID)
	assert.Empty(t, confirmed.ClientSecret)
	assert.Empty(t, confirmed.PaymentIntentID)
	assert.Empty(t, confirmed.Cart.Items)
}

func TestSession_LogoutDropsCredentials(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.NewString()

	env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})
	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout", session: sid, token: "opaque-token"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, call{method: http.MethodDelete, path: "/api/v1/session", session: sid, token: "opaque-token"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var state checkoutResp
	decode(t, rec, &state)
	assert.Equal(t, "cart", state.Step)
	assert.Len(t, state.Cart.Items, 1)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout", session: sid})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", decode(t, rec, nil).Error.Code)
}

func TestCheckout_InlineAddressMissingFields(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.NewString()
	env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})
	env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout", session: sid, token: "opaque-token"})

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/address", session: sid,
		body: map[string]any{"address": map[string]any{"street": "Main 1", "city": "Izmir"}}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, rec, nil).Error.Code)
	assert.Equal(t, 0, env.api.intentCount())
}

func TestCheckout_AddressIDAndInlineRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/address", session: uuid.NewString(),
		body: map[string]any{"address_id": "addr-1", "address": map[string]any{"street": "x"}}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, rec, nil).Error.Code)
}

func TestCheckout_UnknownSavedAddress(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.NewString()
	env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})
	env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout", session: sid, token: "opaque-token"})

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/address", session: sid,
		body: map[string]any{"address_id": "missing"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_WidgetErrorAndBack(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.NewString()
	env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})
	env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout", session: sid, token: "opaque-token"})
	env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/address", body: map[string]any{"address_id": "addr-1"}, session: sid})

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/widget-error", body: map[string]any{"message": "card declined"}, session: sid})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var state checkoutResp
	decode(t, rec, &state)
	assert.Equal(t, "payment", state.Step)
	assert.Equal(t, "failed", state.PaymentStatus)
	require.NotNil(t, state.Error)
	assert.Equal(t, "PAYMENT_DECLINED", state.Error.Code)
	assert.Equal(t, "card declined", state.Error.Message)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/back", session: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &state)
	assert.Equal(t, "address", state.Step)

	// Same cart and address: the pending intent is reused.
	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/address", body: map[string]any{"address_id": "addr-1"}, session: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.api.intentCount())
}

func TestCheckout_ConfirmNotSucceeded(t *testing.T) {
	env := newTestEnv(t)
	env.api.setPaymentStatus("requires_payment_method")
	sid := uuid.NewString()
	env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})
	env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout", session: sid, token: "opaque-token"})
	env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/address", body: map[string]any{"address_id": "addr-1"}, session: sid})

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/confirm", body: map[string]any{"payment_intent_id": "pi_1"}, session: sid})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var state checkoutResp
	decode(t, env.do(t, call{method: http.MethodGet, path: "/api/v1/checkout", session: sid}), &state)
	assert.Equal(t, "payment", state.Step)
	assert.Equal(t, "failed", state.PaymentStatus)
	assert.Len(t, state.Cart.Items, 1)
}

func TestCheckout_ResetAndInvalidBack(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.NewString()

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/back", session: sid})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode(t, rec, nil).Error.Code)

	env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})
	env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout", session: sid, token: "opaque-token"})

	rec = env.do(t, call{method: http.MethodDelete, path: "/api/v1/checkout", session: sid})
	require.Equal(t, http.StatusOK, rec.Code)
	var state checkoutResp
	decode(t, rec, &state)
	assert.Equal(t, "cart", state.Step)
	assert.Len(t, state.Cart.Items, 1)
}

// ============================================================================
// Payment redirect landing
// ============================================================================

func prepareForRedirect(t *testing.T, env *testEnv) string {
	t.Helper()
	sid := uuid.NewString()
	env.do(t, call{method: http.MethodPost, path: "/api/v1/cart/items", body: pideBody(), session: sid})
	env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout", session: sid, token: "opaque-token"})
	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/address", body: map[string]any{"address_id": "addr-1"}, session: sid})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sid
}

func TestPaymentRedirect_Success(t *testing.T) {
	env := newTestEnv(t)
	sid := prepareForRedirect(t, env)

	rec := env.do(t, call{method: http.MethodGet, path: "/payment/success?payment_intent=pi_1&session_id=" + sid})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart?step=confirmation", rec.Header().Get("Location"))

	// A second landing for the same intent is idempotent.
	rec = env.do(t, call{method: http.MethodGet, path: "/payment/success?payment_intent=pi_1", session: sid})
	assert.Equal(t, "/cart?step=confirmation", rec.Header().Get("Location"))

	// So is a refresh after the session has left the confirmation step.
	env.do(t, call{method: http.MethodDelete, path: "/api/v1/checkout", session: sid})
	rec = env.do(t, call{method: http.MethodGet, path: "/payment/success?payment_intent=pi_1", session: sid})
	assert.Equal(t, "/cart?step=confirmation", rec.Header().Get("Location"))
	assert.Equal(t, 1, env.api.confirmCount())
}

func TestPaymentRedirect_Failure(t *testing.T) {
	env := newTestEnv(t)
	env.api.setPaymentStatus("canceled")
	sid := prepareForRedirect(t, env)

	rec := env.do(t, call{method: http.MethodGet, path: "/payment/success?payment_intent=pi_1", session: sid})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart?error=payment_failed", rec.Header().Get("Location"))
}

func TestPaymentRedirect_MissingIntent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodGet, path: "/payment/success", session: uuid.NewString()})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart?error=payment_failed", rec.Header().Get("Location"))
}

// ============================================================================
// Addresses
// ============================================================================

func TestAddresses_RequireLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodGet, path: "/api/v1/addresses", session: uuid.NewString()})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAddresses_ListAndCreate(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.NewString()

	rec := env.do(t, call{method: http.MethodGet, path: "/api/v1/addresses", session: sid, token: "opaque-token"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var addrs []domain.Address
	decode(t, rec, &addrs)
	require.Len(t, addrs, 1)
	assert.Equal(t, "addr-1", addrs[0].ID)
	assert.True(t, addrs[0].IsDefault)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/addresses", session: sid, body: map[string]any{
		"title": "Work", "street": "Side 2", "city": "Izmir", "district": "Konak", "phone": "+90 232 555 0101",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &addrs)
	require.Len(t, addrs, 2)
	assert.Equal(t, "addr-new", addrs[1].ID)
}

func TestAddresses_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/addresses", session: uuid.NewString(), token: "opaque-token",
		body: map[string]any{"street": "Side 2"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode(t, rec, nil).Error.Fields
	assert.Contains(t, fields, "city")
	assert.Contains(t, fields, "phone")

	rec = env.do(t, call{method: http.MethodPost, path: "/api/v1/addresses", session: uuid.NewString(), token: "opaque-token",
		body: map[string]any{"street": "Side 2", "city": "Izmir", "district": "Konak", "phone": "call me"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "must be a phone number", decode(t, rec, nil).Error.Fields["phone"])
}

func TestCheckout_WidgetErrorWithoutBody(t *testing.T) {
	env := newTestEnv(t)
	sid := uuid.NewString()

	// An empty report passes decoding and reaches the orchestrator, which
	// rejects it because no payment is in progress.
	rec := env.do(t, call{method: http.MethodPost, path: "/api/v1/checkout/widget-error", session: sid})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestAddresses_DeleteUnknown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodDelete, path: "/api/v1/addresses/missing", session: uuid.NewString(), token: "opaque-token"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================================================
// Ops
// ============================================================================

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, call{method: http.MethodGet, path: "/health/live"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(middleware.SessionIDHeader))
}
