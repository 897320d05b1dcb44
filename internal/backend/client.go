package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/tracing"
)

const serviceName = "food-api"

// CircuitOpenFallback is the fallback for the food API circuit breaker. While
// the circuit is open callers get a structured error with a retry hint
// instead of the raw ErrCircuitOpen.
func CircuitOpenFallback(_ context.Context, err error) (*http.Response, error) {
	wait := 30 * time.Second
	var open *httpclient.OpenError
	if errors.As(err, &open) {
		wait = open.RetryAfter.Round(time.Second)
		if wait < time.Second {
			wait = time.Second
		}
	}
	return nil, apperrors.ServiceUnavailable(fmt.Sprintf(
		"the food service is temporarily unavailable, please retry after %d seconds", int(wait.Seconds())))
}

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client calls the food REST API on behalf of a shopper. Every call carries
// the shopper's bearer token.
type Client struct {
	http    HTTPDoer
	baseURL string
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, doer HTTPDoer, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		tracer:  tracing.Tracer("storefront/backend"),
	}
}

type call struct {
	name           string
	method         string
	path           string
	token          string
	body           any
	idempotencyKey string
}

// do executes c and decodes a 2xx body into out when out is non-nil.
// Transport failures become NetworkError; error statuses are mapped by
// httpclient.ParseError.
func (c *Client) do(ctx context.Context, cl call, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "food-api."+cl.name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", cl.method),
			attribute.String("url.path", cl.path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader = http.NoBody
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", cl.name, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", cl.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}
	if cl.idempotencyKey != "" {
		req.Header.Set(httpclient.IdempotencyKeyHeader, cl.idempotencyKey)
	}
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, serviceName)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", cl.name, err)
	}
	return nil
}

func transportError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var serverErr *httpclient.ServerError
	if errors.As(err, &serverErr) {
		return httpclient.ParseError(serverErr.Status, serverErr.Body, serviceName)
	}
	return apperrors.NetworkError(err)
}

func addressPath(id string) string {
	return "/users/addresses/" + url.PathEscape(id)
}
