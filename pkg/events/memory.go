package events

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryLog implements Log using an in-memory slice. It backs
// development mode and tests.
type MemoryLog struct {
	mu     sync.RWMutex
	events []Event
	nextID int64

	cancel    context.CancelFunc
	done      chan struct{}
	retention time.Duration
}

// NewMemoryLog creates a new in-memory event log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{nextID: 1, retention: DefaultRetention}
}

// Append writes one immutable event and returns its assigned id.
func (l *MemoryLog) Append(_ context.Context, channel string, data map[string]any) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.events = append(l.events, Event{
		ID:        id,
		Channel:   channel,
		Data:      maps.Clone(data),
		CreatedAt: time.Now(),
	})
	return id, nil
}

// Poll returns up to limit events with id greater than after on any of
// the given channels, ordered by id ascending.
func (l *MemoryLog) Poll(_ context.Context, after int64, channels []string, limit int) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, ev := range l.events {
		if ev.ID <= after || !slices.Contains(channels, ev.Channel) {
			continue
		}
		cp := ev
		cp.Data = maps.Clone(ev.Data)
		out = append(out, cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Cleanup removes events older than the cutoff and returns the count
// removed.
func (l *MemoryLog) Cleanup(_ context.Context, olderThan time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.events[:0]
	var removed int64
	for _, ev := range l.events {
		if ev.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	l.events = kept
	return removed, nil
}

// StartCleanupRoutine starts a background goroutine that periodically
// removes events past the retention window. Stopped by Close.
func (l *MemoryLog) StartCleanupRoutine(interval, retention time.Duration) {
	if retention > 0 {
		l.retention = retention
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = l.Cleanup(ctx, time.Now().Add(-l.retention))
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (l *MemoryLog) Close() error {
	if l.cancel != nil {
		l.cancel()
		<-l.done
	}
	return nil
}

// Verify interface compliance.
var _ Log = (*MemoryLog)(nil)
