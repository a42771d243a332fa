package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/statesync/pkg/session"
)

const (
	testTTL       = 7 * 24 * time.Hour
	pgTestSessID  = "sess-123"
	pgTestToken   = "tok-abc"
	pgTestCleaned = 3
)

var selectColumns = []string{
	"session_id", "token", "user_id", "expires_at", "created_at", "updated_at",
}

func newTestSession() *session.Session {
	now := time.Now().UTC()
	return &session.Session{
		ID:        pgTestSessID,
		Token:     pgTestToken,
		ExpiresAt: now.Add(testTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreate_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	sess := newTestSession()

	mock.ExpectExec("INSERT INTO sessions").WithArgs(
		sess.ID, sess.Token, nil, sess.ExpiresAt, sess.CreatedAt, sess.UpdatedAt,
	).WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Create(context.Background(), sess)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_WithUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	sess := newTestSession()
	userID := int64(42)
	sess.UserID = &userID

	mock.ExpectExec("INSERT INTO sessions").WithArgs(
		sess.ID, sess.Token, userID, sess.ExpiresAt, sess.CreatedAt, sess.UpdatedAt,
	).WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Create(context.Background(), sess)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(errors.New("connection refused"))

	err = store.Create(context.Background(), newTestSession())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "inserting session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByToken_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	sess := newTestSession()

	rows := sqlmock.NewRows(selectColumns).AddRow(
		sess.ID, sess.Token, int64(7), sess.ExpiresAt, sess.CreatedAt, sess.UpdatedAt,
	)
	mock.ExpectQuery("SELECT .+ FROM sessions").WithArgs(pgTestToken).WillReturnRows(rows)

	got, err := store.GetByToken(context.Background(), pgTestToken)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pgTestSessID, got.ID)
	assert.Equal(t, pgTestToken, got.Token)
	require.NotNil(t, got.UserID)
	assert.Equal(t, int64(7), *got.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByToken_Anonymous(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	sess := newTestSession()

	rows := sqlmock.NewRows(selectColumns).AddRow(
		sess.ID, sess.Token, nil, sess.ExpiresAt, sess.CreatedAt, sess.UpdatedAt,
	)
	mock.ExpectQuery("SELECT .+ FROM sessions").WithArgs(pgTestToken).WillReturnRows(rows)

	got, err := store.GetByToken(context.Background(), pgTestToken)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByToken_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	rows := sqlmock.NewRows(selectColumns)
	mock.ExpectQuery("SELECT .+ FROM sessions").WithArgs("unknown").WillReturnRows(rows)

	got, err := store.GetByToken(context.Background(), "unknown")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenew_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	sess := newTestSession()

	rows := sqlmock.NewRows(selectColumns).AddRow(
		sess.ID, sess.Token, nil, sess.ExpiresAt, sess.CreatedAt, sess.UpdatedAt,
	)
	mock.ExpectQuery("UPDATE sessions").WithArgs(pgTestToken, "604800 seconds").WillReturnRows(rows)

	got, err := store.Renew(context.Background(), pgTestToken, testTTL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pgTestSessID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenew_Expired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	rows := sqlmock.NewRows(selectColumns)
	mock.ExpectQuery("UPDATE sessions").WithArgs(pgTestToken, "604800 seconds").WillReturnRows(rows)

	got, err := store.Renew(context.Background(), pgTestToken, testTTL)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUser_Link(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	userID := int64(42)

	mock.ExpectExec("UPDATE sessions SET user_id").WithArgs(pgTestSessID, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.SetUser(context.Background(), pgTestSessID, &userID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUser_Unlink(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("UPDATE sessions SET user_id").WithArgs(pgTestSessID, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.SetUser(context.Background(), pgTestSessID, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("DELETE FROM sessions WHERE session_id").WithArgs(pgTestSessID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Delete(context.Background(), pgTestSessID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanup_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("DELETE FROM sessions WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, pgTestCleaned))

	removed, err := store.Cleanup(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(pgTestCleaned), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanup_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("DELETE FROM sessions WHERE expires_at").
		WillReturnError(errors.New("cleanup failed"))

	_, err = store.Cleanup(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cleaning up sessions")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClose_NilCancel_NoPanic(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	assert.NoError(t, store.Close())
}

func TestClose_StopsCleanupRoutine(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.MatchExpectationsInOrder(false)
	mock.ExpectExec("DELETE FROM sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store.StartCleanupRoutine(10 * time.Millisecond)

	time.Sleep(50 * time.Millisecond)

	assert.NoError(t, store.Close())
}
