package events

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
)

// Sink receives a best-effort copy of every published event. It is an
// optional low-latency side channel next to the durable log; a failing
// or absent sink never blocks the primary append.
type Sink interface {
	Deliver(ev Event)
}

// Broadcaster publishes events into a Log, stamping visibility markers.
type Broadcaster struct {
	log  Log
	sink Sink
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithSink attaches a secondary delivery sink.
func WithSink(sink Sink) BroadcasterOption {
	return func(b *Broadcaster) {
		b.sink = sink
	}
}

// NewBroadcaster creates a Broadcaster over the given log.
func NewBroadcaster(log Log, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{log: log}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish appends one event on channel. Unless broadcast is set, the
// payload is stamped with the publisher's session id so subscribers on
// other sessions can filter it. The input map is not mutated.
func (b *Broadcaster) Publish(ctx context.Context, sessionID, channel string, data map[string]any, broadcast bool) (int64, error) {
	stamped := make(map[string]any, len(data)+2)
	maps.Copy(stamped, data)
	if !broadcast && sessionID != "" {
		stamped[SessionKey] = sessionID
	}
	stamped[BroadcastKey] = broadcast

	id, err := b.log.Append(ctx, channel, stamped)
	if err != nil {
		return 0, fmt.Errorf("appending event: %w", err)
	}

	if b.sink != nil {
		b.deliver(Event{ID: id, Channel: channel, Data: stamped})
	}
	return id, nil
}

// Broadcast publishes an event visible to all subscribers regardless of
// session.
func (b *Broadcaster) Broadcast(ctx context.Context, channel string, data map[string]any) (int64, error) {
	return b.Publish(ctx, "", channel, data, true)
}

// deliver hands the event to the sink, shielding the publish path from
// sink panics.
func (b *Broadcaster) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("event sink panicked", "channel", ev.Channel, "panic", r)
		}
	}()
	b.sink.Deliver(ev)
}
