package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// downstreamError covers the error bodies the food API is known to send:
// the structured envelope {"error":{"code","message"}}, a flat
// {"message"} object, and {"error":"text"}.
type downstreamError struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

type downstreamEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}
	return ParseError(resp.StatusCode, bodyBytes, serviceName)
}

// ParseError maps a status code and raw error body to an AppError.
func ParseError(status int, body []byte, serviceName string) error {
	code, message := decodeErrorBody(body)
	if message == "" {
		message = http.StatusText(status)
	}
	return mapDownstreamError(status, code, message, serviceName)
}

func decodeErrorBody(body []byte) (code, message string) {
	var parsed downstreamError
	if json.Unmarshal(body, &parsed) != nil {
		return "", strings.TrimSpace(string(body))
	}

	if len(parsed.Error) > 0 {
		var env downstreamEnvelope
		if json.Unmarshal(parsed.Error, &env) == nil && env.Message != "" {
			return env.Code, env.Message
		}
		var text string
		if json.Unmarshal(parsed.Error, &text) == nil && text != "" {
			return "", text
		}
	}
	return "", parsed.Message
}

// mapDownstreamError keeps the backend's message, which is already phrased for
// the shopper, and picks the local error kind from the status.
func mapDownstreamError(status int, code, message, serviceName string) error {
	switch {
	case status == http.StatusNotFound:
		return &apperrors.AppError{Code: "NOT_FOUND", Message: message, Status: status, Err: apperrors.ErrNotFound}
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(message)
	case status == http.StatusUnauthorized:
		return &apperrors.AppError{Code: "UNAUTHENTICATED", Message: message, Status: status, Err: apperrors.ErrUnauthenticated}
	case status == http.StatusPaymentRequired:
		return apperrors.PaymentDeclined(message)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(message)
	case status == http.StatusConflict:
		return apperrors.Conflict(message)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(fmt.Sprintf("%s: %s", serviceName, message))
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message)
	default:
		if code == "" {
			code = "DOWNSTREAM_ERROR"
		}
		return &apperrors.AppError{Code: code, Message: message, Status: status}
	}
}
