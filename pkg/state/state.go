// Package state provides durable per-(session, state name) storage for
// server-held state blobs. Records hold the full serialized field set of
// a state instance and are always replaced whole, never patched.
package state

import "context"

// Record is one stored state blob.
type Record struct {
	// SessionID scopes the record to a visitor session.
	SessionID string

	// Name is the logical state type identifier.
	Name string

	// Data maps property name to value for every declared field of the
	// state type at the time it was persisted.
	Data map[string]any
}

// Store defines the interface for state persistence. At most one record
// exists per (session, name) pair.
type Store interface {
	// Get retrieves a record. Returns nil, nil if none exists.
	Get(ctx context.Context, sessionID, name string) (*Record, error)

	// Put atomically creates or fully replaces a record.
	Put(ctx context.Context, rec *Record) error

	// Delete removes a record.
	Delete(ctx context.Context, sessionID, name string) error

	// Close releases resources.
	Close() error
}
