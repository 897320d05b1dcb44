package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Session is one shopper's browsing session: a cart ledger and the checkout
// flow around it.
type Session struct {
	ID       string
	Checkout *Orchestrator

	lastSeen atomic.Int64
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Cart returns a snapshot of the session's cart.
func (s *Session) Cart() domain.CartSnapshot {
	return s.Checkout.Cart()
}

// AddItem adds one unit of an item to the cart.
func (s *Session) AddItem(ctx context.Context, in domain.AddItemInput) (domain.CartSnapshot, error) {
	return s.Checkout.MutateCart(ctx, func(l *domain.Ledger) bool {
		l.AddItem(in)
		return true
	})
}

// SetQuantity sets an item's quantity; zero or less removes it.
func (s *Session) SetQuantity(ctx context.Context, id string, quantity int) (domain.CartSnapshot, error) {
	return s.Checkout.MutateCart(ctx, func(l *domain.Ledger) bool {
		return l.SetQuantity(id, quantity)
	})
}

// RemoveItem removes an item from the cart.
func (s *Session) RemoveItem(ctx context.Context, id string) (domain.CartSnapshot, error) {
	return s.Checkout.MutateCart(ctx, func(l *domain.Ledger) bool {
		return l.RemoveItem(id)
	})
}

// ClearCart empties the cart.
func (s *Session) ClearCart(ctx context.Context) (domain.CartSnapshot, error) {
	return s.Checkout.MutateCart(ctx, func(l *domain.Ledger) bool {
		changed := !l.IsEmpty()
		l.Clear()
		return changed
	})
}

// Storefront hands out browsing sessions by id and proxies the shopper's
// address book. Idle sessions are evicted by Sweep.
type Storefront struct {
	mu       sync.Mutex
	sessions map[string]*Session

	gateway   PaymentGateway
	addresses AddressBook
	intents   repository.IntentCache
	notifier  Notifier
	tokens    TokenChecker
	cfg       CheckoutConfig
	idleTTL   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewStorefront creates an empty session registry.
func NewStorefront(
	gateway PaymentGateway,
	addresses AddressBook,
	intents repository.IntentCache,
	notifier Notifier,
	tokens TokenChecker,
	cfg CheckoutConfig,
	idleTTL time.Duration,
	logger *slog.Logger,
) *Storefront {
	return &Storefront{
		sessions:  make(map[string]*Session),
		gateway:   gateway,
		addresses: addresses,
		intents:   intents,
		notifier:  notifier,
		tokens:    tokens,
		cfg:       cfg,
		idleTTL:   idleTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// Session returns the session for id, creating an empty one on first use.
func (s *Storefront) Session(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{
			ID: id,
			Checkout: NewOrchestrator(id, domain.NewLedger(),
				s.gateway, s.intents, s.notifier, s.tokens, s.cfg, s.logger),
		}
		sess.Checkout.now = s.now
		s.sessions[id] = sess
		activeSessions.Set(float64(len(s.sessions)))
	}
	sess.touch(s.now())
	return sess
}

// Len returns the number of live sessions.
func (s *Storefront) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle for longer than the idle TTL. Sessions with a
// backend call in flight are kept. It returns the number evicted.
func (s *Storefront) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	var evicted []string
	for id, sess := range s.sessions {
		if sess.LastSeen().After(cutoff) || sess.Checkout.State().Busy {
			continue
		}
		delete(s.sessions, id)
		evicted = append(evicted, id)
	}
	activeSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	for _, id := range evicted {
		if err := s.intents.Invalidate(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "failed to drop intent of evicted session",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(evicted) > 0 {
		s.logger.InfoContext(ctx, "evicted idle sessions", slog.Int("count", len(evicted)))
	}
	return len(evicted)
}

// Run sweeps idle sessions every period until ctx is cancelled.
func (s *Storefront) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *Storefront) addressCall(ctx context.Context, sess *Session) (context.Context, context.CancelFunc, string, error) {
	token := sess.Checkout.Token()
	if !s.tokens.Live(token) {
		return ctx, func() {}, "", apperrors.Unauthenticated()
	}
	if s.cfg.AddressTimeout <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, token, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AddressTimeout)
	return ctx, cancel, token, nil
}

// ListAddresses returns the shopper's saved addresses.
func (s *Storefront) ListAddresses(ctx context.Context, sess *Session) ([]domain.Address, error) {
	callCtx, cancel, token, err := s.addressCall(ctx, sess)
	if err != nil {
		return nil, err
	}
	defer cancel()

	addrs, err := s.addresses.ListAddresses(callCtx, token)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return addrs, nil
}

// Address returns the saved address with id.
func (s *Storefront) Address(ctx context.Context, sess *Session, id string) (*domain.Address, error) {
	addrs, err := s.ListAddresses(ctx, sess)
	if err != nil {
		return nil, err
	}
	for i := range addrs {
		if addrs[i].ID == id {
			return &addrs[i], nil
		}
	}
	return nil, apperrors.NotFound("address", id)
}

// CreateAddress saves addr and returns the refreshed address book.
func (s *Storefront) CreateAddress(ctx context.Context, sess *Session, addr domain.Address) ([]domain.Address, error) {
	callCtx, cancel, token, err := s.addressCall(ctx, sess)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if err := s.addresses.CreateAddress(callCtx, token, addr); err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}
	s.logger.InfoContext(ctx, "address created", slog.String("session_id", sess.ID))
	return s.ListAddresses(ctx, sess)
}

// SetDefaultAddress marks id as the default address and returns the
// refreshed address book.
func (s *Storefront) SetDefaultAddress(ctx context.Context, sess *Session, id string) ([]domain.Address, error) {
	callCtx, cancel, token, err := s.addressCall(ctx, sess)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if err := s.addresses.SetDefaultAddress(callCtx, token, id); err != nil {
		return nil, fmt.Errorf("set default address: %w", err)
	}
	return s.ListAddresses(ctx, sess)
}

// DeleteAddress removes id and returns the refreshed address book.
func (s *Storefront) DeleteAddress(ctx context.Context, sess *Session, id string) ([]domain.Address, error) {
	callCtx, cancel, token, err := s.addressCall(ctx, sess)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if err := s.addresses.DeleteAddress(callCtx, token, id); err != nil {
		return nil, fmt.Errorf("delete address: %w", err)
	}
	s.logger.InfoContext(ctx, "address deleted",
		slog.String("session_id", sess.ID),
		slog.String("address_id", id),
	)
	return s.ListAddresses(ctx, sess)
}
