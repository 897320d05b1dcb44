package service

import (
	"context"
	"time"

	"github.com/utafrali/storefront/internal/backend"
	"github.com/utafrali/storefront/internal/domain"
)

// PaymentGateway creates and confirms payment intents on the food API.
// backend.Client satisfies it.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, token string, draft domain.OrderDraft, idempotencyKey string) (*backend.CreatedIntent, error)
	ConfirmPayment(ctx context.Context, token, paymentIntentID string) (domain.PaymentStatus, error)
}

// AddressBook manages the shopper's saved addresses on the food API.
// backend.Client satisfies it.
type AddressBook interface {
	ListAddresses(ctx context.Context, token string) ([]domain.Address, error)
	CreateAddress(ctx context.Context, token string, addr domain.Address) error
	SetDefaultAddress(ctx context.Context, token, id string) error
	DeleteAddress(ctx context.Context, token, id string) error
}

// Notifier is told about checkout milestones. Failures are logged and never
// undo a checkout step.
type Notifier interface {
	CheckoutInitiated(ctx context.Context, o domain.CheckoutOutcome) error
	CheckoutCompleted(ctx context.Context, o domain.CheckoutOutcome) error
	PaymentFailed(ctx context.Context, o domain.CheckoutOutcome) error
}

// TokenChecker reports whether a bearer token can still be used.
// auth.Inspector satisfies it.
type TokenChecker interface {
	Live(token string) bool
}

// CheckoutConfig tunes the checkout flow.
type CheckoutConfig struct {
	Currency           string
	IntentTimeout      time.Duration
	ConfirmTimeout     time.Duration
	AddressTimeout     time.Duration
	IntentTTL          time.Duration
	ConfirmationWindow time.Duration
}

// DefaultCheckoutConfig returns the production defaults.
func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		Currency:           "usd",
		IntentTimeout:      15 * time.Second,
		ConfirmTimeout:     20 * time.Second,
		AddressTimeout:     10 * time.Second,
		IntentTTL:          30 * time.Minute,
		ConfirmationWindow: 3 * time.Second,
	}
}

// withTimeout bounds a backend call. The call is detached from the caller's
// cancellation so a dropped browser connection cannot abort a charge midway.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
