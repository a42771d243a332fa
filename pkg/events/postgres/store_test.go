package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/statesync/pkg/events"
)

func TestAppend_ReturnsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	log := New(db, Config{})

	data := map[string]any{"k": "v", events.BroadcastKey: false}
	payload, err := json.Marshal(data)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(7))
	mock.ExpectQuery("INSERT INTO events").WithArgs("chat", payload).WillReturnRows(rows)

	id, err := log.Append(context.Background(), "chat", data)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	log := New(db, Config{})

	mock.ExpectQuery("INSERT INTO events").
		WillReturnError(errors.New("connection refused"))

	_, err = log.Append(context.Background(), "chat", map[string]any{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "inserting event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoll_OrderedBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	log := New(db, Config{})
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "channel", "data", "created_at"}).
		AddRow(int64(3), "chat", []byte(`{"seq":3}`), now).
		AddRow(int64(4), "chat", []byte(`{"seq":4}`), now)
	mock.ExpectQuery("SELECT .+ FROM events").
		WithArgs(int64(2), "chat", "announce").
		WillReturnRows(rows)

	evs, err := log.Poll(context.Background(), 2, []string{"chat", "announce"}, 50)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, int64(3), evs[0].ID)
	assert.Equal(t, int64(4), evs[1].ID)
	assert.Equal(t, float64(3), evs[0].Data["seq"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoll_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	log := New(db, Config{})

	rows := sqlmock.NewRows([]string{"id", "channel", "data", "created_at"})
	mock.ExpectQuery("SELECT .+ FROM events").WillReturnRows(rows)

	evs, err := log.Poll(context.Background(), 0, []string{"chat"}, 50)
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoll_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	log := New(db, Config{})

	mock.ExpectQuery("SELECT .+ FROM events").
		WillReturnError(errors.New("db unavailable"))

	_, err = log.Poll(context.Background(), 0, []string{"chat"}, 50)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "querying events")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanup_CountsRemoved(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	log := New(db, Config{Retention: time.Hour})

	mock.ExpectExec("DELETE FROM events WHERE created_at").
		WillReturnResult(sqlmock.NewResult(0, 12))

	removed, err := log.Cleanup(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(12), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClose_NilCancel_NoPanic(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	log := New(db, Config{})
	assert.NoError(t, log.Close())
}

func TestClose_StopsCleanupRoutine(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	log := New(db, Config{Retention: time.Hour})

	mock.MatchExpectationsInOrder(false)
	mock.ExpectExec("DELETE FROM events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	log.StartCleanupRoutine(10 * time.Millisecond)

	time.Sleep(50 * time.Millisecond)

	assert.NoError(t, log.Close())
}
