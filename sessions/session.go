// Package sessions holds the server-side state for authenticated users and
// the transient anti-forgery state tokens used during the OAuth2 handshake.
package sessions

import (
	"context"
	"time"
)

// DefaultTTL is the absolute lifetime of an authenticated session.
const DefaultTTL = 8 * time.Hour

// PendingStateTTL bounds how long a login attempt may sit between the
// redirect to the identity provider and the callback.
const PendingStateTTL = 10 * time.Minute

// User is the authenticated-user summary extracted from the identity
// provider's userinfo response.
type User struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Groups   []string `json:"groups,omitempty"`
}

// Tokens are the provider-issued tokens held alongside a session.
type Tokens struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token,omitempty"`
}

// Session is the server-held record behind an opaque cookie value.
type Session struct {
	ID        string    `json:"id"`
	User      User      `json:"user"`
	Tokens    Tokens    `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is the session repository. Implementations must make Get, Create,
// Delete and ConsumePendingState atomic with respect to each other: racing
// callbacks must not consume the same state twice, and a session must not be
// read mid-expiry.
type Store interface {
	// Create allocates an opaque session identifier and stores the record
	// with an absolute expiry of now + ttl.
	Create(ctx context.Context, user User, tokens Tokens, ttl time.Duration) (string, error)

	// Get returns a live session. An expired session is purged and reported
	// as ErrSessionNotFound; a session returned by Get is never past expiry.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes a session. Deleting an unknown session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// RegisterPendingState records a single-use OAuth2 state token.
	RegisterPendingState(ctx context.Context, state string) error

	// ConsumePendingState removes a pending state token and reports whether
	// it was present. A token is consumed at most once.
	ConsumePendingState(ctx context.Context, state string) (bool, error)
}
