// Package postgres provides PostgreSQL storage for state records.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/txn2/statesync/pkg/state"
)

// Store implements state.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL state store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get retrieves a record. Returns nil, nil if none exists.
func (s *Store) Get(ctx context.Context, sessionID, name string) (*state.Record, error) {
	query := `
		SELECT data FROM state_records
		WHERE session_id = $1 AND state_name = $2
	`
	var data []byte
	err := s.db.QueryRowContext(ctx, query, sessionID, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	if err != nil {
		return nil, fmt.Errorf("scanning state record: %w", err)
	}

	rec := &state.Record{
		SessionID: sessionID,
		Name:      name,
		Data:      make(map[string]any),
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &rec.Data)
	}
	return rec, nil
}

// Put atomically creates or fully replaces a record. The upsert is a
// single row write; last writer wins by design.
func (s *Store) Put(ctx context.Context, rec *state.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshaling state data: %w", err)
	}

	query := `
		INSERT INTO state_records (session_id, state_name, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, state_name) DO UPDATE SET data = EXCLUDED.data
	`
	if _, err := s.db.ExecContext(ctx, query, rec.SessionID, rec.Name, data); err != nil {
		return fmt.Errorf("upserting state record: %w", err)
	}
	return nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, sessionID, name string) error {
	query := `DELETE FROM state_records WHERE session_id = $1 AND state_name = $2`
	if _, err := s.db.ExecContext(ctx, query, sessionID, name); err != nil {
		return fmt.Errorf("deleting state record: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}

// Verify interface compliance.
var _ state.Store = (*Store)(nil)
