package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topics for checkout domain events.
var (
	TopicCheckoutInitiated = pkgkafka.Topic("checkout", "initiated")
	TopicCheckoutCompleted = pkgkafka.Topic("checkout", "completed")
	TopicPaymentFailed     = pkgkafka.Topic("payment", "failed")
)

// AggregateTypeCheckout is the aggregate type of every checkout event.
const AggregateTypeCheckout = "checkout"

// SourceStorefront identifies events originating from the storefront.
const SourceStorefront = "storefront"

// OrderLineData is one line of an order in an event payload.
type OrderLineData struct {
	FoodID    string `json:"food_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// CheckoutInitiatedData is the payload for a checkout.initiated event.
type CheckoutInitiatedData struct {
	SessionID       string          `json:"session_id"`
	UserID          string          `json:"user_id,omitempty"`
	OrderID         string          `json:"order_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Items           []OrderLineData `json:"items"`
	TotalAmount     string          `json:"total_amount"`
	Currency        string          `json:"currency"`
	AddressID       string          `json:"address_id,omitempty"`
}

// CheckoutCompletedData is the payload for a checkout.completed event.
type CheckoutCompletedData struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id,omitempty"`
	OrderID         string    `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	TotalAmount     string    `json:"total_amount"`
	Currency        string    `json:"currency"`
	ItemCount       int       `json:"item_count"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

// PaymentFailedData is the payload for a payment.failed event.
type PaymentFailedData struct {
	SessionID       string `json:"session_id"`
	UserID          string `json:"user_id,omitempty"`
	OrderID         string `json:"order_id,omitempty"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	FailureReason   string `json:"failure_reason"`
}

// Producer publishes checkout domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new checkout event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func lines(draft domain.OrderDraft) []OrderLineData {
	out := make([]OrderLineData, len(draft.Items))
	for i, l := range draft.Items {
		out[i] = OrderLineData{FoodID: l.FoodID, Quantity: l.Quantity, UnitPrice: domain.FormatAmount(l.UnitPrice)}
	}
	return out
}

func itemCount(draft domain.OrderDraft) int {
	n := 0
	for _, l := range draft.Items {
		n += l.Quantity
	}
	return n
}

func (p *Producer) publish(ctx context.Context, topic, sessionID string, data any) error {
	event, err := pkgkafka.NewEvent(SourceStorefront, topic,
		pkgkafka.Aggregate{Type: AggregateTypeCheckout, ID: sessionID}, data,
		pkgkafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)),
	)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published checkout event",
		slog.String("topic", topic),
		slog.String("session_id", sessionID),
	)
	return nil
}

// CheckoutInitiated publishes a checkout.initiated event once a payment
// intent exists for the session.
func (p *Producer) CheckoutInitiated(ctx context.Context, o domain.CheckoutOutcome) error {
	return p.publish(ctx, TopicCheckoutInitiated, o.SessionID, CheckoutInitiatedData{
		SessionID:       o.SessionID,
		UserID:          o.UserID,
		OrderID:         o.OrderID,
		PaymentIntentID: o.PaymentIntentID,
		Items:           lines(o.Draft),
		TotalAmount:     domain.FormatAmount(o.Draft.TotalAmount),
		Currency:        o.Draft.Currency,
		AddressID:       o.Draft.AddressID,
	})
}

// CheckoutCompleted publishes a checkout.completed event.
func (p *Producer) CheckoutCompleted(ctx context.Context, o domain.CheckoutOutcome) error {
	return p.publish(ctx, TopicCheckoutCompleted, o.SessionID, CheckoutCompletedData{
		SessionID:       o.SessionID,
		UserID:          o.UserID,
		OrderID:         o.OrderID,
		PaymentIntentID: o.PaymentIntentID,
		TotalAmount:     domain.FormatAmount(o.Draft.TotalAmount),
		Currency:        o.Draft.Currency,
		ItemCount:       itemCount(o.Draft),
		ConfirmedAt:     o.At,
	})
}

// PaymentFailed publishes a payment.failed event.
func (p *Producer) PaymentFailed(ctx context.Context, o domain.CheckoutOutcome) error {
	return p.publish(ctx, TopicPaymentFailed, o.SessionID, PaymentFailedData{
		SessionID:       o.SessionID,
		UserID:          o.UserID,
		OrderID:         o.OrderID,
		PaymentIntentID: o.PaymentIntentID,
		FailureReason:   o.Reason,
	})
}
