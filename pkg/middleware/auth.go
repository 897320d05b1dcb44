package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	tokenKey  contextKeyType = "bearer_token"
)

// Claims are the token facts the storefront needs. The food API remains the
// authority on token validity.
type Claims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// TokenInspector reads claims from a bearer token.
type TokenInspector func(token string) (*Claims, error)

// Bearer extracts an optional bearer token and its claims into the context.
// Requests without a token, or with a token that cannot be inspected, pass
// through anonymously; handlers decide whether a token is required.
func Bearer(inspect TokenInspector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), tokenKey, token)
			if claims, err := inspect(token); err == nil && claims != nil {
				ctx = context.WithValue(ctx, userIDKey, claims.UserID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken returns the token from an "Authorization: Bearer" header, or "".
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// TokenFromContext returns the raw bearer token stored by Bearer.
func TokenFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tokenKey).(string); ok {
		return t
	}
	return ""
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}
