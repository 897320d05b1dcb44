package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/storefront/pkg/middleware"
)

// ErrOpaqueToken is returned for bearer tokens that are not JWTs.
var ErrOpaqueToken = errors.New("token is not a JWT")

// ErrTokenExpired is returned for JWTs whose exp claim has passed.
var ErrTokenExpired = errors.New("token expired")

// claims covers the user id claim names the food API has issued.
type claims struct {
	UserID string `json:"user_id"`
	ID     string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

func (c *claims) userID() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.ID != "":
		return c.ID
	default:
		return c.Subject
	}
}

// Inspector reads bearer token claims without verifying the signature. The
// food API verifies every token it receives; the storefront only needs the
// user id for logging and the expiry to gate checkout.
type Inspector struct {
	parser *jwt.Parser
	leeway time.Duration
	now    func() time.Time
}

// NewInspector creates an inspector that tolerates leeway of clock skew.
func NewInspector(leeway time.Duration) *Inspector {
	return &Inspector{
		parser: jwt.NewParser(),
		leeway: leeway,
		now:    time.Now,
	}
}

// Inspect returns the claims of token. Opaque tokens yield ErrOpaqueToken and
// expired JWTs yield the claims together with ErrTokenExpired.
func (i *Inspector) Inspect(token string) (*middleware.Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, ErrOpaqueToken
	}

	var c claims
	if _, _, err := i.parser.ParseUnverified(token, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpaqueToken, err)
	}

	out := &middleware.Claims{UserID: c.userID(), Email: c.Email}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
		if !i.now().Before(out.ExpiresAt.Add(i.leeway)) {
			return out, ErrTokenExpired
		}
	}
	return out, nil
}

// Live reports whether token can be used for a checkout: it must be present
// and, when it is a JWT, unexpired.
func (i *Inspector) Live(token string) bool {
	if token == "" {
		return false
	}
	_, err := i.Inspect(token)
	return err == nil || errors.Is(err, ErrOpaqueToken)
}

// TokenInspector adapts Inspect for the Bearer middleware, dropping claims of
// expired tokens.
func (i *Inspector) TokenInspector() middleware.TokenInspector {
	return func(token string) (*middleware.Claims, error) {
		c, err := i.Inspect(token)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
