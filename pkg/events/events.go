// Package events provides the append-only, channel-scoped event log and
// the Broadcaster that publishes change notifications into it. Event ids
// increase strictly in insertion order and serve as the sole ordering
// and resumption key for streaming subscribers.
package events

import (
	"context"
	"time"
)

// Visibility marker keys stamped into every published payload.
const (
	// SessionKey marks a non-broadcast event with its publisher's
	// session so subscribers on other sessions can filter it out.
	SessionKey = "_session"

	// BroadcastKey marks an event as visible to every subscriber.
	BroadcastKey = "_broadcast"
)

// DefaultRetention is how long events are kept before the retention
// sweep removes them.
const DefaultRetention = time.Hour

// Event is one immutable row of the log.
type Event struct {
	// ID is the strictly increasing resumption cursor.
	ID int64

	// Channel namespaces the event for selective subscription.
	Channel string

	// Data is the structured payload, including visibility markers.
	Data map[string]any

	// CreatedAt is when the event was appended.
	CreatedAt time.Time
}

// Broadcast reports whether the event is visible to all subscribers.
func (e *Event) Broadcast() bool {
	b, _ := e.Data[BroadcastKey].(bool)
	return b
}

// Session returns the publisher's session marker, or "".
func (e *Event) Session() string {
	s, _ := e.Data[SessionKey].(string)
	return s
}

// VisibleTo reports whether a subscriber bound to sessionID may receive
// the event.
func (e *Event) VisibleTo(sessionID string) bool {
	if e.Broadcast() {
		return true
	}
	marker := e.Session()
	return marker == "" || marker == sessionID
}

// Log defines the interface for event persistence.
type Log interface {
	// Append writes one immutable event and returns its assigned id.
	Append(ctx context.Context, channel string, data map[string]any) (int64, error)

	// Poll returns up to limit events with id greater than after on any
	// of the given channels, ordered by id ascending.
	Poll(ctx context.Context, after int64, channels []string, limit int) ([]Event, error)

	// Cleanup removes events older than the cutoff and returns the
	// count removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)

	// Close stops background routines and releases resources.
	Close() error
}
