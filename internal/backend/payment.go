package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
)

type intentItem struct {
	Food     string      `json:"food"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
}

type deliveryAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	District   string `json:"district"`
	PostalCode string `json:"postalCode,omitempty"`
	Phone      string `json:"phone"`
}

type createIntentRequest struct {
	Amount          json.Number     `json:"amount"`
	Items           []intentItem    `json:"items"`
	DeliveryAddress deliveryAddress `json:"deliveryAddress"`
	Currency        string          `json:"currency,omitempty"`
}

type createIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	OrderID         string `json:"orderId"`
}

// CreatedIntent is the food API's answer to a create-payment-intent call.
type CreatedIntent struct {
	ClientSecret    string
	PaymentIntentID string
	OrderID         string
}

// number renders d as a bare JSON number, as the food API expects.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func newCreateIntentRequest(draft domain.OrderDraft) createIntentRequest {
	items := make([]intentItem, len(draft.Items))
	for i, line := range draft.Items {
		items[i] = intentItem{
			Food:     line.FoodID,
			Quantity: line.Quantity,
			Price:    number(line.UnitPrice),
		}
	}
	a := draft.DeliveryAddress
	return createIntentRequest{
		Amount: number(draft.TotalAmount),
		Items:  items,
		DeliveryAddress: deliveryAddress{
			Street:     a.Street,
			City:       a.City,
			District:   a.District,
			PostalCode: a.PostalCode,
			Phone:      a.Phone,
		},
		Currency: draft.Currency,
	}
}

// CreatePaymentIntent asks the food API to create the order and a payment
// intent for draft. idempotencyKey lets the request be replayed safely.
func (c *Client) CreatePaymentIntent(ctx context.Context, token string, draft domain.OrderDraft, idempotencyKey string) (*CreatedIntent, error) {
	var resp createIntentResponse
	err := c.do(ctx, call{
		name:           "create_payment_intent",
		method:         http.MethodPost,
		path:           "/payment/create-payment-intent",
		token:          token,
		body:           newCreateIntentRequest(draft),
		idempotencyKey: idempotencyKey,
	}, &resp)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "payment intent created",
		slog.String("payment_intent_id", resp.PaymentIntentID),
		slog.String("order_id", resp.OrderID),
		slog.String("amount", draft.TotalAmount.String()),
	)

	return &CreatedIntent{
		ClientSecret:    resp.ClientSecret,
		PaymentIntentID: resp.PaymentIntentID,
		OrderID:         resp.OrderID,
	}, nil
}

type confirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type confirmResponse struct {
	PaymentStatus string `json:"paymentStatus"`
}

// ConfirmPayment asks the food API for the authoritative outcome of a
// payment intent. Only a "succeeded" status is reported as success.
func (c *Client) ConfirmPayment(ctx context.Context, token, paymentIntentID string) (domain.PaymentStatus, error) {
	var resp confirmResponse
	err := c.do(ctx, call{
		name:   "confirm_payment",
		method: http.MethodPost,
		path:   "/payment/confirm-payment",
		token:  token,
		body:   confirmRequest{PaymentIntentID: paymentIntentID},
	}, &resp)
	if err != nil {
		return domain.PaymentFailed, err
	}

	status := domain.ParsePaymentStatus(resp.PaymentStatus)
	c.logger.InfoContext(ctx, "payment confirmation received",
		slog.String("payment_intent_id", paymentIntentID),
		slog.String("payment_status", resp.PaymentStatus),
	)
	return status, nil
}
