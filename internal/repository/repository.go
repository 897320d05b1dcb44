package repository

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
)

// IntentCache holds the pending payment intent of each checkout session so a
// retried checkout can reuse it instead of creating a duplicate charge.
type IntentCache interface {
	// Get returns the pending intent for a session, or a NotFound error.
	Get(ctx context.Context, sessionID string) (*domain.PaymentIntent, error)

	// Put stores intent as the session's pending intent, replacing any other.
	Put(ctx context.Context, sessionID string, intent *domain.PaymentIntent) error

	// Invalidate drops the session's pending intent. Missing entries are not an error.
	Invalidate(ctx context.Context, sessionID string) error
}
