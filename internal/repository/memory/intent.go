package memory

import (
	"context"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// IntentCache implements repository.IntentCache in process memory. It is
// used when no Redis is configured and in tests.
type IntentCache struct {
	mu      sync.Mutex
	intents map[string]domain.PaymentIntent
	now     func() time.Time
}

// NewIntentCache creates an empty in-memory intent cache.
func NewIntentCache() *IntentCache {
	return &IntentCache{
		intents: make(map[string]domain.PaymentIntent),
		now:     time.Now,
	}
}

// Get returns the pending intent for sessionID. Expired entries are dropped.
func (c *IntentCache) Get(_ context.Context, sessionID string) (*domain.PaymentIntent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	intent, ok := c.intents[sessionID]
	if !ok {
		return nil, apperrors.NotFound("payment intent", sessionID)
	}
	if intent.Expired(c.now()) {
		delete(c.intents, sessionID)
		return nil, apperrors.NotFound("payment intent", sessionID)
	}
	return &intent, nil
}

// Put stores a copy of intent.
func (c *IntentCache) Put(_ context.Context, sessionID string, intent *domain.PaymentIntent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.intents[sessionID] = *intent
	return nil
}

// Invalidate removes the pending intent for sessionID.
func (c *IntentCache) Invalidate(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.intents, sessionID)
	return nil
}

// Len returns the number of cached intents, expired ones included.
func (c *IntentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.intents)
}
