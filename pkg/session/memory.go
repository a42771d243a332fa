package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory map. It backs
// development mode (no database configured) and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session // keyed by session ID
	byToken  map[string]string   // token -> session ID

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		byToken:  make(map[string]string),
	}
}

// Create persists a new session.
func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.sessions[sess.ID] = &cp
	s.byToken[sess.Token] = sess.ID
	return nil
}

// GetByToken retrieves a session by bearer token. Returns nil, nil if no
// live session holds the token.
func (s *MemoryStore) GetByToken(_ context.Context, token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.liveByToken(token)
	if sess == nil {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	cp := *sess
	return &cp, nil
}

// Renew extends the session's expiry by ttl and returns the renewed session.
func (s *MemoryStore) Renew(_ context.Context, token string, ttl time.Duration) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveByToken(token)
	if sess == nil {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	now := time.Now()
	sess.ExpiresAt = now.Add(ttl)
	sess.UpdatedAt = now
	cp := *sess
	return &cp, nil
}

// SetUser sets or clears the session's identity link.
func (s *MemoryStore) SetUser(_ context.Context, id string, userID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.UserID = userID
	sess.UpdatedAt = time.Now()
	return nil
}

// Delete removes a session by ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		delete(s.byToken, sess.Token)
		delete(s.sessions, id)
	}
	return nil
}

// Cleanup removes expired sessions and returns the count removed.
func (s *MemoryStore) Cleanup(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var removed int64
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.byToken, sess.Token)
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// liveByToken returns the unexpired session holding token, or nil.
// Caller must hold at least a read lock.
func (s *MemoryStore) liveByToken(token string) *Session {
	id, ok := s.byToken[token]
	if !ok {
		return nil
	}
	sess, ok := s.sessions[id]
	if !ok || sess.Expired(time.Now()) {
		return nil
	}
	return sess
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired sessions. The goroutine is stopped when Close is called.
func (s *MemoryStore) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.Cleanup(ctx)
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *MemoryStore) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
