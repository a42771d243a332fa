// Package postgres provides PostgreSQL storage for the event log.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/statesync/pkg/events"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// eventColumns lists columns returned by event SELECT queries.
var eventColumns = []string{"id", "channel", "data", "created_at"}

// Log implements events.Log using PostgreSQL. Ids come from the table's
// sequence, so insertion order and id order agree without any writer
// coordination.
type Log struct {
	db        *sql.DB
	retention time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

// Config configures the PostgreSQL event log.
type Config struct {
	Retention time.Duration
}

// New creates a new PostgreSQL event log.
func New(db *sql.DB, cfg Config) *Log {
	if cfg.Retention == 0 {
		cfg.Retention = events.DefaultRetention
	}
	return &Log{
		db:        db,
		retention: cfg.Retention,
	}
}

// Append writes one immutable event and returns its assigned id.
func (l *Log) Append(ctx context.Context, channel string, data map[string]any) (int64, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}

	query := `
		INSERT INTO events (channel, data)
		VALUES ($1, $2)
		RETURNING id
	`
	var id int64
	if err := l.db.QueryRowContext(ctx, query, channel, payload).Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting event: %w", err)
	}
	return id, nil
}

// Poll returns up to limit events with id greater than after on any of
// the given channels, ordered by id ascending.
func (l *Log) Poll(ctx context.Context, after int64, channels []string, limit int) ([]events.Event, error) {
	qb := psq.Select(eventColumns...).
		From("events").
		Where(sq.Gt{"id": after}).
		Where(sq.Eq{"channel": channels}).
		OrderBy("id ASC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building poll query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []events.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return out, nil
}

// Cleanup removes events older than the cutoff and returns the count
// removed.
func (l *Log) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM events WHERE created_at < $1`
	res, err := l.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("cleaning up events: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting cleaned events: %w", err)
	}
	return removed, nil
}

// StartCleanupRoutine starts a background goroutine that periodically
// removes events past the retention window. Stopped by Close.
func (l *Log) StartCleanupRoutine(interval time.Duration) {
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
				removed, err := l.Cleanup(ctx, time.Now().Add(-l.retention))
				if err != nil {
					slog.Warn("event cleanup failed", "error", err)
					continue
				}
				if removed > 0 {
					slog.Debug("event cleanup", "removed", removed)
				}
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (l *Log) Close() error {
	if l.cancel != nil {
		l.cancel()
		<-l.done
	}
	return nil
}

// scanEvent scans a row into an Event.
func scanEvent(rows *sql.Rows) (events.Event, error) {
	var ev events.Event
	var data []byte

	if err := rows.Scan(&ev.ID, &ev.Channel, &data, &ev.CreatedAt); err != nil {
		return ev, fmt.Errorf("scanning event row: %w", err)
	}

	ev.Data = make(map[string]any)
	if len(data) > 0 {
		_ = json.Unmarshal(data, &ev.Data)
	}
	return ev, nil
}

// Verify interface compliance.
var _ events.Log = (*Log)(nil)
