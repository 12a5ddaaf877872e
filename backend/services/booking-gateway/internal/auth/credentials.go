package auth

import (
	"context"
	"time"
)

type contextKey struct{}

// Credentials describe the caller of a request: the raw bearer token forwarded to the booking
// backend and the claims decoded from it.
type Credentials struct {
	Token     string
	UserID    int64
	Role      string
	ExpiresAt time.Time
	// Expired is set when the token was well formed but past its expiry.
	Expired bool
}

// ValidAt reports whether the credentials can be used at now.
func (c Credentials) ValidAt(now time.Time) bool {
	if c.Token == "" || c.Expired {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// WithCredentials attaches credentials to ctx.
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, contextKey{}, creds)
}

// FromContext returns the credentials attached to ctx, if any.
func FromContext(ctx context.Context) (Credentials, bool) {
	creds, ok := ctx.Value(contextKey{}).(Credentials)
	if !ok || creds.Token == "" {
		return Credentials{}, false
	}
	return creds, true
}
