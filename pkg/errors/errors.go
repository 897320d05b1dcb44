// Package errors defines the storefront's failure kinds and their HTTP mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")

	ErrEmptyCart                 = errors.New("cart is empty")
	ErrUnauthenticated           = errors.New("unauthenticated")
	ErrIntentCreationFailed      = errors.New("payment intent creation failed")
	ErrPaymentDeclined           = errors.New("payment declined")
	ErrPaymentConfirmationFailed = errors.New("payment confirmation failed")
	ErrNetwork                   = errors.New("network error")
	ErrCheckoutBusy              = errors.New("checkout busy")
	ErrInvalidTransition         = errors.New("invalid checkout transition")
)

const (
	codeInternal    = "INTERNAL_ERROR"
	networkMessage  = "the service could not be reached, please retry"
	fallbackMessage = "an unexpected error occurred"
)

// kind ties a sentinel to its wire code and status.
type kind struct {
	sentinel error
	code     string
	status   int
}

var (
	kindNotFound     = kind{ErrNotFound, "NOT_FOUND", http.StatusNotFound}
	kindInvalidInput = kind{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest}
	kindForbidden    = kind{ErrForbidden, "FORBIDDEN", http.StatusForbidden}
	kindConflict     = kind{ErrConflict, "CONFLICT", http.StatusConflict}
	kindUnavailable  = kind{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable}
	kindEmptyCart    = kind{ErrEmptyCart, "EMPTY_CART", http.StatusUnprocessableEntity}
	kindUnauth       = kind{ErrUnauthenticated, "UNAUTHENTICATED", http.StatusUnauthorized}
	kindIntent       = kind{ErrIntentCreationFailed, "INTENT_CREATION_FAILED", http.StatusBadGateway}
	kindDeclined     = kind{ErrPaymentDeclined, "PAYMENT_DECLINED", http.StatusPaymentRequired}
	kindConfirmation = kind{ErrPaymentConfirmationFailed, "PAYMENT_CONFIRMATION_FAILED", http.StatusBadGateway}
	kindNetwork      = kind{ErrNetwork, "NETWORK_ERROR", http.StatusBadGateway}
	kindBusy         = kind{ErrCheckoutBusy, "CHECKOUT_BUSY", http.StatusConflict}
	kindTransition   = kind{ErrInvalidTransition, "INVALID_TRANSITION", http.StatusConflict}
)

// kinds is consulted in order when a bare sentinel has to be mapped.
var kinds = []kind{
	kindNotFound, kindInvalidInput, kindForbidden, kindConflict, kindUnavailable,
	kindEmptyCart, kindUnauth, kindIntent, kindDeclined, kindConfirmation,
	kindNetwork, kindBusy, kindTransition,
}

// AppError is a failure carrying a machine code, a shopper-safe message and
// the HTTP status it answers with.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func newError(k kind, message string, cause error) *AppError {
	err := k.sentinel
	if cause != nil {
		err = errors.Join(k.sentinel, cause)
	}
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: err}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// NotFound reports a missing resource by kind and id.
func NotFound(resource, id string) *AppError {
	return newError(kindNotFound, fmt.Sprintf("%s with id %s not found", resource, id), nil)
}

func InvalidInput(message string) *AppError {
	return newError(kindInvalidInput, message, nil)
}

func Forbidden(message string) *AppError {
	return newError(kindForbidden, message, nil)
}

func Conflict(message string) *AppError {
	return newError(kindConflict, message, nil)
}

func ServiceUnavailable(message string) *AppError {
	return newError(kindUnavailable, message, nil)
}

// EmptyCart rejects a checkout attempt on a cart without items.
func EmptyCart() *AppError {
	return newError(kindEmptyCart, "your cart is empty", nil)
}

// Unauthenticated rejects a checkout attempt without a live user session.
func Unauthenticated() *AppError {
	return newError(kindUnauth, "please login to place an order", nil)
}

// IntentCreationFailed reports that the backend rejected a payment intent
// request. The cause stays matchable with errors.Is.
func IntentCreationFailed(cause error) *AppError {
	return newError(kindIntent, "order could not be created", cause)
}

// PaymentDeclined reports a failure signalled by the payment widget or gateway.
func PaymentDeclined(message string) *AppError {
	if message == "" {
		message = "an error occurred during payment"
	}
	return newError(kindDeclined, message, nil)
}

func PaymentConfirmationFailed(cause error) *AppError {
	return newError(kindConfirmation, "payment could not be verified", cause)
}

// NetworkError wraps a transport failure talking to the backend.
func NetworkError(cause error) *AppError {
	return newError(kindNetwork, networkMessage, cause)
}

// CheckoutBusy rejects an operation while another checkout call is in flight.
func CheckoutBusy() *AppError {
	return newError(kindBusy, "a checkout request is already in progress", nil)
}

func InvalidTransition(from, to string) *AppError {
	return newError(kindTransition, fmt.Sprintf("cannot move checkout from %s to %s", from, to), nil)
}

func lookup(err error) (kind, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return kind{code: appErr.Code, status: appErr.Status}, true
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k, true
		}
	}
	return kind{}, false
}

// HTTPStatus returns the status err answers with; unknown errors are 500.
func HTTPStatus(err error) int {
	if k, ok := lookup(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// Code returns the machine-readable code for err, or INTERNAL_ERROR.
func Code(err error) string {
	if k, ok := lookup(err); ok {
		return k.code
	}
	return codeInternal
}

// UserMessage turns any error into text that can be shown to the shopper.
// Unknown errors get a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.Message
	case errors.Is(err, ErrNetwork):
		return networkMessage
	default:
		return fallbackMessage
	}
}
