package http

import (
	"log/slog"
	"net/http"
	"net/url"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// PaymentRedirectHandler lands shoppers returning from an off-site payment
// step and sends them back to the cart page with the outcome.
type PaymentRedirectHandler struct {
	cartPath string
	logger   *slog.Logger
}

// NewPaymentRedirectHandler creates the landing handler. cartPath is where the
// shopper is sent afterwards, e.g. "/cart".
func NewPaymentRedirectHandler(cartPath string, logger *slog.Logger) *PaymentRedirectHandler {
	if cartPath == "" {
		cartPath = "/cart"
	}
	return &PaymentRedirectHandler{cartPath: cartPath, logger: logger}
}

// Success handles GET /payment/success?payment_intent=...
func (h *PaymentRedirectHandler) Success(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, h.logger)
	if !ok {
		return
	}

	intentID := r.URL.Query().Get("payment_intent")
	if intentID == "" {
		h.logger.WarnContext(r.Context(), "payment redirect without payment_intent")
		h.redirect(w, r, "error", "payment_failed")
		return
	}

	if _, err := sess.Checkout.ConfirmPayment(r.Context(), intentID); err != nil {
		h.logger.WarnContext(r.Context(), "payment redirect not confirmed",
			slog.String("payment_intent_id", intentID),
			slog.String("code", apperrors.Code(err)),
			slog.String("error", err.Error()),
		)
		h.redirect(w, r, "error", "payment_failed")
		return
	}
	h.redirect(w, r, "step", "confirmation")
}

func (h *PaymentRedirectHandler) redirect(w http.ResponseWriter, r *http.Request, key, value string) {
	target := h.cartPath + "?" + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusSeeOther)
}
