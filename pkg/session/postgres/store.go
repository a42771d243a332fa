// Package postgres provides PostgreSQL storage for sessions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/txn2/statesync/pkg/session"
)

// Store implements session.Store using PostgreSQL.
type Store struct {
	db     *sql.DB
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new PostgreSQL session store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create persists a new session.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	query := `
		INSERT INTO sessions (session_id, token, user_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.Token, userIDValue(sess.UserID), sess.ExpiresAt, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetByToken retrieves a session by bearer token. Returns nil, nil if no
// live session holds the token.
func (s *Store) GetByToken(ctx context.Context, token string) (*session.Session, error) {
	query := `
		SELECT session_id, token, user_id, expires_at, created_at, updated_at
		FROM sessions
		WHERE token = $1 AND expires_at > NOW()
	`
	return scanSession(s.db.QueryRowContext(ctx, query, token))
}

// Renew extends the session's expiry by ttl and returns the renewed
// session. Expired sessions are never renewed; the write is idempotent
// and safe to race with concurrent traffic.
func (s *Store) Renew(ctx context.Context, token string, ttl time.Duration) (*session.Session, error) {
	query := `
		UPDATE sessions
		SET expires_at = NOW() + $2::interval, updated_at = NOW()
		WHERE token = $1 AND expires_at > NOW()
		RETURNING session_id, token, user_id, expires_at, created_at, updated_at
	`
	interval := fmt.Sprintf("%d seconds", int(ttl.Seconds()))
	return scanSession(s.db.QueryRowContext(ctx, query, token, interval))
}

// SetUser sets or clears the session's identity link.
func (s *Store) SetUser(ctx context.Context, id string, userID *int64) error {
	query := `UPDATE sessions SET user_id = $2, updated_at = NOW() WHERE session_id = $1`
	_, err := s.db.ExecContext(ctx, query, id, userIDValue(userID))
	if err != nil {
		return fmt.Errorf("updating session user: %w", err)
	}
	return nil
}

// Delete removes a session by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE session_id = $1`
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Cleanup removes expired sessions and returns the count removed.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= NOW()`
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("cleaning up sessions: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting cleaned sessions: %w", err)
	}
	return removed, nil
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired sessions. The goroutine is stopped when Close is called.
func (s *Store) StartCleanupRoutine(interval time.Duration) {
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
				removed, err := s.Cleanup(ctx)
				if err != nil {
					slog.Warn("session cleanup failed", "error", err)
					continue
				}
				if removed > 0 {
					slog.Debug("session cleanup", "removed", removed)
				}
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// scanSession scans a single row into a Session.
func scanSession(row *sql.Row) (*session.Session, error) {
	var sess session.Session
	var userID sql.NullInt64

	err := row.Scan(&sess.ID, &sess.Token, &userID, &sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if userID.Valid {
		sess.UserID = &userID.Int64
	}
	return &sess, nil
}

// userIDValue converts the optional identity link to a driver value.
func userIDValue(userID *int64) any {
	if userID == nil {
		return nil
	}
	return *userID
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
