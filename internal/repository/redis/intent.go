package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const keyPrefix = "intent:"

// IntentCache implements repository.IntentCache using Redis.
type IntentCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewIntentCache creates a Redis-backed intent cache. Entries without an
// expiry are kept for ttl.
func NewIntentCache(client redis.UniversalClient, ttl time.Duration) *IntentCache {
	return &IntentCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the pending intent for sessionID.
func (c *IntentCache) Get(ctx context.Context, sessionID string) (*domain.PaymentIntent, error) {
	data, err := c.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("payment intent", sessionID)
		}
		return nil, fmt.Errorf("redis get intent: %w", err)
	}

	var intent domain.PaymentIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("unmarshal intent: %w", err)
	}
	return &intent, nil
}

// Put stores intent until it expires.
func (c *IntentCache) Put(ctx context.Context, sessionID string, intent *domain.PaymentIntent) error {
	ttl := c.ttl
	if !intent.ExpiresAt.IsZero() {
		ttl = time.Until(intent.ExpiresAt)
		if ttl <= 0 {
			return c.Invalidate(ctx, sessionID)
		}
	}

	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+sessionID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set intent: %w", err)
	}
	return nil
}

// Invalidate removes the pending intent for sessionID.
func (c *IntentCache) Invalidate(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("redis del intent: %w", err)
	}
	return nil
}
