// Package session provides visitor session management for statesync.
// It defines the Store interface for session persistence, the Manager
// that resolves a request's session from a bearer token, and the nonce
// issuer used to authorize mutating calls.
package session

import (
	"context"
	"time"
)

// Session represents a server-tracked visitor session, independent of
// login state.
type Session struct {
	// ID is the opaque stable session identifier, immutable once issued.
	ID string

	// Token is the secret bearer credential. It is generated
	// independently of ID so that leaking one does not leak the other,
	// and is rotatable only by full session replacement.
	Token string

	// UserID optionally links the session to a host-provided identity.
	// Nil for anonymous sessions.
	UserID *int64

	// ExpiresAt is when the session expires if not renewed.
	ExpiresAt time.Time

	// CreatedAt is when the session was issued.
	CreatedAt time.Time

	// UpdatedAt is the most recent renewal or identity change.
	UpdatedAt time.Time
}

// Expired reports whether the session's expiry has passed at t.
func (s *Session) Expired(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// Store defines the interface for session persistence.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// GetByToken retrieves a session by bearer token. Returns nil, nil
	// if no live session holds the token.
	GetByToken(ctx context.Context, token string) (*Session, error)

	// Renew extends the session's expiry by ttl and returns the renewed
	// session. Returns nil, nil when the token matches no live session.
	Renew(ctx context.Context, token string, ttl time.Duration) (*Session, error)

	// SetUser sets or clears the session's identity link.
	SetUser(ctx context.Context, id string, userID *int64) error

	// Delete removes a session by ID.
	Delete(ctx context.Context, id string) error

	// Cleanup removes expired sessions and returns the count removed.
	Cleanup(ctx context.Context) (int64, error)

	// Close stops background routines and releases resources.
	Close() error
}
