package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Step is a position in the checkout flow.
type Step string

// Checkout steps in flow order.
const (
	StepCart         Step = "cart"
	StepAddress      Step = "address"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

// PaymentStatus tracks the payment attempt of a checkout session.
type PaymentStatus string

// Payment statuses.
const (
	PaymentIdle       PaymentStatus = "idle"
	PaymentProcessing PaymentStatus = "processing"
	PaymentSucceeded  PaymentStatus = "succeeded"
	PaymentFailed     PaymentStatus = "failed"
)

// DefaultPaymentMethod is the only method the payment widget offers.
const DefaultPaymentMethod = "card"

var transitions = map[Step][]Step{
	StepCart:         {StepAddress},
	StepAddress:      {StepPayment, StepCart},
	StepPayment:      {StepConfirmation, StepAddress},
	StepConfirmation: {StepCart},
}

// CanTransition reports whether the checkout flow allows moving from one step
// to another. The flow is linear; no step may be skipped.
func CanTransition(from, to Step) bool {
	return slices.Contains(transitions[from], to)
}

// SessionError is the last user-visible failure recorded on a session.
type SessionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CheckoutSession is the state of one checkout attempt.
type CheckoutSession struct {
	Step            Step          `json:"step"`
	SelectedAddress *Address      `json:"selected_address,omitempty"`
	OrderDraft      *OrderDraft   `json:"order_draft,omitempty"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	ClientSecret    string        `json:"client_secret,omitempty"`
	OrderID         string        `json:"order_id,omitempty"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	Busy            bool          `json:"busy"`
	LastError       *SessionError `json:"error,omitempty"`
	ConfirmedAt     *time.Time    `json:"confirmed_at,omitempty"`
}

// NewCheckoutSession returns a fresh session at the cart step.
func NewCheckoutSession() CheckoutSession {
	return CheckoutSession{Step: StepCart, PaymentStatus: PaymentIdle}
}

// Clone returns a deep copy safe to hand to callers.
func (s CheckoutSession) Clone() CheckoutSession {
	out := s
	if s.SelectedAddress != nil {
		a := *s.SelectedAddress
		out.SelectedAddress = &a
	}
	if s.OrderDraft != nil {
		d := *s.OrderDraft
		d.Items = slices.Clone(s.OrderDraft.Items)
		out.OrderDraft = &d
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	if s.ConfirmedAt != nil {
		t := *s.ConfirmedAt
		out.ConfirmedAt = &t
	}
	return out
}

// ClearIntent drops the transient payment fields.
func (s *CheckoutSession) ClearIntent() {
	s.PaymentIntentID = ""
	s.ClientSecret = ""
}

// OrderLine is one item of an order draft.
type OrderLine struct {
	FoodID    string          `json:"food_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderDraft is the order payload built from a cart snapshot and a delivery
// address when checkout enters the payment step.
type OrderDraft struct {
	Items           []OrderLine     `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DeliveryAddress DeliveryAddress `json:"delivery_address"`
	AddressID       string          `json:"address_id,omitempty"`
	PaymentMethod   string          `json:"payment_method"`
	Currency        string          `json:"currency"`
}

// NewOrderDraft snapshots cart lines at their effective unit price.
func NewOrderDraft(cart CartSnapshot, addr Address, currency string) OrderDraft {
	lines := make([]OrderLine, len(cart.Items))
	for i, item := range cart.Items {
		lines[i] = OrderLine{
			FoodID:    item.ID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.EffectiveUnitPrice(),
		}
	}
	return OrderDraft{
		Items:           lines,
		TotalAmount:     cart.Total,
		DeliveryAddress: addr.Delivery(),
		AddressID:       addr.ID,
		PaymentMethod:   DefaultPaymentMethod,
		Currency:        strings.ToLower(currency),
	}
}

// Fingerprint identifies the draft's payable content for userID. Two drafts
// with the same lines, prices, address, currency and user share a fingerprint
// regardless of line order.
func (d OrderDraft) Fingerprint(userID string) string {
	lines := make([]string, len(d.Items))
	for i, l := range d.Items {
		lines[i] = fmt.Sprintf("%s|%d|%s", l.FoodID, l.Quantity, l.UnitPrice.String())
	}
	slices.Sort(lines)

	a := d.DeliveryAddress
	h := sha256.New()
	fmt.Fprintf(h, "user=%s\n", userID)
	fmt.Fprintf(h, "currency=%s\n", d.Currency)
	fmt.Fprintf(h, "address=%s|%s|%s|%s|%s|%s\n", d.AddressID, a.Street, a.City, a.District, a.PostalCode, a.Phone)
	for _, l := range lines {
		fmt.Fprintf(h, "line=%s\n", l)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PaymentIntent is a backend-issued, not yet confirmed, charge attempt.
type PaymentIntent struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	ClientSecret    string    `json:"client_secret"`
	OrderID         string    `json:"order_id,omitempty"`
	Fingerprint     string    `json:"fingerprint"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Expired reports whether the intent can no longer be reused at now.
func (p PaymentIntent) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// ParsePaymentStatus maps a confirm-payment response status. Anything other
// than "succeeded" is a failure.
func ParsePaymentStatus(s string) PaymentStatus {
	if strings.EqualFold(strings.TrimSpace(s), string(PaymentSucceeded)) {
		return PaymentSucceeded
	}
	return PaymentFailed
}

// CheckoutOutcome describes a payment attempt of one session when it is
// created, confirmed or rejected.
type CheckoutOutcome struct {
	SessionID       string
	UserID          string
	OrderID         string
	PaymentIntentID string
	Draft           OrderDraft
	Status          PaymentStatus
	Reason          string
	At              time.Time
}
