package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const sessionKey contextKey = "session"

// sessionQueryParam carries the session id on the payment redirect, where the
// browser navigates without custom headers.
const sessionQueryParam = "session_id"

// Sessions resolves the browsing session for the request. The id comes from
// the X-Session-ID header (or the session_id query parameter); a missing or
// malformed id starts a new session. The id is echoed on the response. A
// bearer token on the request replaces the credentials recorded on the
// session; requests without one leave them untouched.
func Sessions(storefront *service.Storefront) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(middleware.SessionIDHeader)
			if id == "" {
				id = r.URL.Query().Get(sessionQueryParam)
			}
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(middleware.SessionIDHeader, id)

			sess := storefront.Session(id)
			ctx := r.Context()
			if token := middleware.TokenFromContext(ctx); token != "" {
				sess.Checkout.SetCredentials(token, middleware.UserIDFromContext(ctx))
			}

			ctx = logger.WithSessionID(ctx, id)
			ctx = context.WithValue(ctx, sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionFromContext returns the session stored by Sessions.
func sessionFromContext(ctx context.Context) (*service.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*service.Session)
	return sess, ok && sess != nil
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
