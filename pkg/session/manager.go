package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	// TokenHeader carries the bearer token on API requests. It is
	// checked before the cookie so that non-browser clients can manage
	// the token themselves.
	TokenHeader = "X-Statesync-Token"

	// CookieName is the session cookie set for browser clients.
	CookieName = "statesync_session"

	// DefaultLifetime is the session TTL applied when none is configured.
	DefaultLifetime = 7 * 24 * time.Hour

	// sessionIDBytes and tokenBytes size the two independent random
	// values behind a session.
	sessionIDBytes = 16
	tokenBytes     = 32

	// slogKeyError is the slog attribute key for error values.
	slogKeyError = "error"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Store      Store
	TTL        time.Duration
	Secret     []byte
	CookieName string
}

// Manager resolves the current request's session from a bearer token and
// owns the session lifecycle. A Manager with a nil store hands out inert
// no-session contexts instead of failing, so the HTTP surface stays up
// while the backing store is still bootstrapping.
type Manager struct {
	store      Store
	ttl        time.Duration
	nonces     *NonceIssuer
	cookieName string
}

// NewManager creates a session Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultLifetime
	}
	if cfg.CookieName == "" {
		cfg.CookieName = CookieName
	}
	return &Manager{
		store:      cfg.Store,
		ttl:        cfg.TTL,
		nonces:     NewNonceIssuer(cfg.Secret),
		cookieName: cfg.CookieName,
	}
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Context binds a resolved session to the request that carried it.
// An inactive Context (no live session) is returned rather than an error
// whenever resolution cannot produce one.
type Context struct {
	m    *Manager
	sess *Session
}

// Active reports whether a live session is bound.
func (c *Context) Active() bool {
	return c.sess != nil
}

// Session returns the bound session, or nil for an inactive context.
func (c *Context) Session() *Session {
	return c.sess
}

// SessionID returns the bound session's ID, or "" for an inactive context.
func (c *Context) SessionID() string {
	if c.sess == nil {
		return ""
	}
	return c.sess.ID
}

// UserID returns the linked identity, or nil.
func (c *Context) UserID() *int64 {
	if c.sess == nil {
		return nil
	}
	return c.sess.UserID
}

// Start resolves the request's session, renewing it on a valid token and
// allocating a fresh session otherwise. Store unavailability degrades to
// an inactive context; Start never fails the caller.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request) *Context {
	if m.store == nil {
		return &Context{m: m}
	}

	if token := m.requestToken(r); token != "" {
		sess, err := m.store.Renew(r.Context(), token, m.ttl)
		if err != nil {
			slog.Warn("session: renew failed, starting without session", slogKeyError, err)
			return &Context{m: m}
		}
		if sess != nil {
			m.setCookie(w, r, sess.Token)
			return &Context{m: m, sess: sess}
		}
	}

	sess, err := m.issue(r.Context())
	if err != nil {
		slog.Warn("session: issue failed, starting without session", slogKeyError, err)
		return &Context{m: m}
	}
	m.setCookie(w, r, sess.Token)
	return &Context{m: m, sess: sess}
}

// Resolve validates the request's token without allocating a session or
// writing a cookie. A valid token still renews the expiry.
func (m *Manager) Resolve(r *http.Request) *Context {
	if m.store == nil {
		return &Context{m: m}
	}
	token := m.requestToken(r)
	if token == "" {
		return &Context{m: m}
	}
	sess, err := m.store.Renew(r.Context(), token, m.ttl)
	if err != nil {
		slog.Warn("session: resolve failed", slogKeyError, err)
		return &Context{m: m}
	}
	return &Context{m: m, sess: sess}
}

// Cleanup removes expired sessions and returns the count removed.
func (m *Manager) Cleanup(ctx context.Context) (int64, error) {
	if m.store == nil {
		return 0, nil
	}
	return m.store.Cleanup(ctx)
}

// issue creates and persists a brand-new anonymous session. The ID and
// token are independent random values, not derived from each other.
func (m *Manager) issue(ctx context.Context) (*Session, error) {
	id, err := randomHex(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	token, err := randomHex(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating session token: %w", err)
	}

	now := time.Now()
	sess := &Session{
		ID:        id,
		Token:     token,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	slog.Debug("session: issued", "session_id", sess.ID)
	return sess, nil
}

// LinkUser idempotently associates the session with a host identity.
func (c *Context) LinkUser(ctx context.Context, userID int64) error {
	if c.sess == nil {
		return nil
	}
	if err := c.m.store.SetUser(ctx, c.sess.ID, &userID); err != nil {
		return fmt.Errorf("linking user: %w", err)
	}
	c.sess.UserID = &userID
	return nil
}

// UnlinkUser clears the identity association.
func (c *Context) UnlinkUser(ctx context.Context) error {
	if c.sess == nil {
		return nil
	}
	if err := c.m.store.SetUser(ctx, c.sess.ID, nil); err != nil {
		return fmt.Errorf("unlinking user: %w", err)
	}
	c.sess.UserID = nil
	return nil
}

// Destroy deletes the session record and expires the cookie immediately.
func (c *Context) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if c.sess == nil {
		return nil
	}
	if err := c.m.store.Delete(ctx, c.sess.ID); err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	c.m.clearCookie(w, r)
	c.sess = nil
	return nil
}

// Nonce returns a fresh proof token for the bound session.
func (c *Context) Nonce() string {
	if c.sess == nil {
		return ""
	}
	return c.m.nonces.Generate(c.sess.ID, time.Now())
}

// VerifyNonce checks a proof token against the bound session.
func (c *Context) VerifyNonce(nonce string) bool {
	if c.sess == nil {
		return false
	}
	return c.m.nonces.Verify(c.sess.ID, nonce, time.Now())
}

// requestToken extracts the bearer token, header first, cookie fallback.
func (m *Manager) requestToken(r *http.Request) string {
	if token := r.Header.Get(TokenHeader); token != "" {
		return token
	}
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setCookie writes the session cookie scoped to the whole site.
func (m *Manager) setCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
}

// clearCookie removes the session cookie on destroy.
func (m *Manager) clearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func requestIsSecure(r *http.Request) bool {
	return r.TLS != nil
}

// randomHex returns n cryptographically random bytes, hex encoded.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
