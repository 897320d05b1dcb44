package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this breaker in metrics and logs.
	Name string

	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counters. 0 never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before moving to half-open.
	Timeout time.Duration

	// FailureRatio trips the breaker once failures/requests reaches it,
	// provided at least MinRequests were seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitBreakerConfig returns the settings used for the food API.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ErrCircuitOpen is matched by every error returned while the breaker rejects
// calls, including *OpenError.
var ErrCircuitOpen = gobreaker.ErrOpenState

// OpenError is returned, or handed to the fallback, when a call is rejected
// without reaching the upstream.
type OpenError struct {
	Breaker    string
	RetryAfter time.Duration
	cause      error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %q open, retry in %s", e.Breaker, e.RetryAfter.Round(time.Second))
}

func (e *OpenError) Unwrap() error { return e.cause }

// FallbackFunc replaces the rejection error while the breaker is open. err is
// always an *OpenError.
type FallbackFunc func(ctx context.Context, err error) (*http.Response, error)

// ServerError is returned for 5xx responses, which count as breaker failures.
// The body has already been drained and closed.
type ServerError struct {
	Status int
	Body   []byte
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, string(e.Body))
}

// Call outcomes recorded in breakerCalls.
const (
	callOK       = "ok"
	callFailed   = "failed"
	callRejected = "rejected"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "storefront",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}, []string{"name"})

	breakerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "circuit_breaker_calls_total",
		Help:      "Calls through a circuit breaker by outcome.",
	}, []string{"name", "outcome"})
)

// CircuitBreakerClient wraps a Client with circuit breaker protection.
type CircuitBreakerClient struct {
	client   *Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	timeout  time.Duration
	openedAt *atomic.Int64 // unix nanos of the last transition to open
	fallback FallbackFunc
	logger   *slog.Logger
}

// NewCircuitBreakerClient wraps an existing HTTP client with a circuit breaker.
func NewCircuitBreakerClient(client *Client, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	c := &CircuitBreakerClient{
		client:   client,
		timeout:  cfg.Timeout,
		openedAt: new(atomic.Int64),
		logger:   logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// A caller giving up says nothing about the upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: c.stateChanged,
	})
	breakerState.WithLabelValues(cfg.Name).Set(0)

	return c
}

func (c *CircuitBreakerClient) stateChanged(name string, from, to gobreaker.State) {
	if to == gobreaker.StateOpen {
		c.openedAt.Store(time.Now().UnixNano())
	}
	breakerState.WithLabelValues(name).Set(float64(to))
	c.logger.Warn("circuit breaker state change",
		slog.String("breaker", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
}

// WithFallback returns a copy of the client that calls fn while the breaker is open.
func (c *CircuitBreakerClient) WithFallback(fn FallbackFunc) *CircuitBreakerClient {
	cpy := *c
	cpy.fallback = fn
	return &cpy
}

// Do executes req through the breaker. 5xx responses come back as
// *ServerError; rejected calls as *OpenError unless a fallback is set.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		return nil, &ServerError{Status: resp.StatusCode, Body: body}
	})

	name := c.breaker.Name()
	switch {
	case err == nil:
		breakerCalls.WithLabelValues(name, callOK).Inc()
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		breakerCalls.WithLabelValues(name, callRejected).Inc()
		open := &OpenError{Breaker: name, RetryAfter: c.retryAfter(), cause: gobreaker.ErrOpenState}
		if c.fallback == nil {
			return nil, open
		}
		c.logger.WarnContext(ctx, "circuit breaker open, invoking fallback",
			slog.String("breaker", name),
			slog.Duration("retry_after", open.RetryAfter),
		)
		return c.fallback(ctx, open)
	default:
		breakerCalls.WithLabelValues(name, callFailed).Inc()
		return nil, err
	}
}

// retryAfter estimates how long until the breaker admits a trial request.
func (c *CircuitBreakerClient) retryAfter() time.Duration {
	opened := c.openedAt.Load()
	if opened == 0 {
		return c.timeout
	}
	left := c.timeout - time.Since(time.Unix(0, opened))
	if left < 0 {
		return 0
	}
	return left
}

// State returns the current state of the circuit breaker.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}
