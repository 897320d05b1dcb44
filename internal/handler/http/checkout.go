package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// CheckoutHandler handles HTTP requests that drive the checkout flow.
type CheckoutHandler struct {
	storefront *service.Storefront
	logger     *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(storefront *service.Storefront, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		storefront: storefront,
		logger:     logger,
	}
}

// --- Request DTOs ---

// InlineAddress is a delivery address typed in at checkout. Required fields
// are checked by the checkout flow so the failure is recorded on the session.
type InlineAddress struct {
	Street     string `json:"street" validate:"max=255"`
	City       string `json:"city" validate:"max=100"`
	District   string `json:"district" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
	Phone      string `json:"phone" validate:"max=32,phone"`
}

// SelectAddressRequest picks the delivery address either by id from the
// address book or inline.
type SelectAddressRequest struct {
	AddressID string         `json:"address_id" validate:"max=128"`
	Address   *InlineAddress `json:"address" validate:"omitempty"`
}

// ConfirmPaymentRequest is sent when the payment widget reports success.
type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required,max=255"`
}

// WidgetErrorRequest carries the message the payment widget displayed.
type WidgetErrorRequest struct {
	Message string `json:"message" validate:"max=1000"`
}

// --- Response view ---

type checkoutView struct {
	domain.CheckoutSession
	Cart cartView `json:"cart"`
}

func newCheckoutView(state domain.CheckoutSession, cart domain.CartSnapshot) checkoutView {
	return checkoutView{CheckoutSession: state, Cart: newCartView(cart)}
}

// --- Handlers ---

// GetCheckout handles GET /api/v1/checkout.
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}
	h.writeState(w, sess)
}

// StartCheckout handles POST /api/v1/checkout.
func (h *CheckoutHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}
	if _, err := sess.Checkout.RequestCheckout(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeState(w, sess)
}

// Back handles POST /api/v1/checkout/back.
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}
	if _, err := sess.Checkout.Back(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeState(w, sess)
}

// SelectAddress handles POST /api/v1/checkout/address.
func (h *CheckoutHandler) SelectAddress(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}

	var req SelectAddressRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	var addr *domain.Address
	switch {
	case req.AddressID != "" && req.Address != nil:
		httputil.WriteError(w, r, apperrors.InvalidInput("send either address_id or address, not both"), h.logger)
		return
	case req.AddressID != "":
		saved, err := h.storefront.Address(r.Context(), sess, req.AddressID)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		addr = saved
	case req.Address != nil:
		addr = &domain.Address{
			Street:     req.Address.Street,
			City:       req.Address.City,
			District:   req.Address.District,
			PostalCode: req.Address.PostalCode,
			Phone:      req.Address.Phone,
		}
	}

	if _, err := sess.Checkout.SelectAddress(r.Context(), addr); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeState(w, sess)
}

// ConfirmPayment handles POST /api/v1/checkout/confirm.
func (h *CheckoutHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}

	var req ConfirmPaymentRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if _, err := sess.Checkout.ConfirmPayment(r.Context(), req.PaymentIntentID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeState(w, sess)
}

// ReportWidgetError handles POST /api/v1/checkout/widget-error.
func (h *CheckoutHandler) ReportWidgetError(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}

	// The widget may report without any detail.
	var req WidgetErrorRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil && !errors.Is(err, validator.ErrEmptyBody) {
		httputil.WriteValidationError(w, err)
		return
	}

	if _, err := sess.Checkout.ReportWidgetError(r.Context(), req.Message); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeState(w, sess)
}

// Reset handles DELETE /api/v1/checkout.
func (h *CheckoutHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}
	sess.Checkout.Reset(r.Context())
	h.writeState(w, sess)
}

// Logout handles DELETE /api/v1/session. Credentials recorded from earlier
// requests are dropped even when this request carries a token.
func (h *CheckoutHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}
	sess.Checkout.Logout(r.Context())
	h.writeState(w, sess)
}

func (h *CheckoutHandler) writeState(w http.ResponseWriter, sess *service.Session) {
	httputil.WriteData(w, http.StatusOK, newCheckoutView(sess.Checkout.State(), sess.Cart()))
}
