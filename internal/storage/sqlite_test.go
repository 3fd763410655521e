package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStorage opens a migrated database in a temp directory.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testSession(id string) *model.ReconciliationSession {
	return &model.ReconciliationSession{
		ID:               id,
		UserID:           "user-1",
		AccountID:        "chk",
		StartDate:        day("2025-01-01"),
		EndDate:          day("2025-01-31"),
		StatementBalance: decimal.RequireFromString("1234.56"),
	}
}

func testBook(id, amount, date string) model.BookTransaction {
	return model.BookTransaction{
		ID:              id,
		AccountID:       "chk",
		Amount:          decimal.RequireFromString(amount),
		Description:     "Book " + id,
		TransactionDate: day(date),
	}
}

func TestMigrate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Running again is a no-op.
	require.NoError(t, store.Migrate(ctx))

	for _, table := range []string{"reconciliation_sessions", "book_transactions", "reconciliation_rules", "transaction_matches"} {
		var n int
		err := store.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestNewSQLiteStorage_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Migrate(context.Background()))
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage(" ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestSessions(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	session := testSession("sess-1")
	require.NoError(t, store.CreateSession(ctx, session))
	assert.Equal(t, model.SessionInProgress, session.Status)

	got, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "chk", got.AccountID)
	assert.Equal(t, "user-1", got.UserID)
	assert.True(t, got.StartDate.Equal(day("2025-01-01")))
	assert.True(t, got.EndDate.Equal(day("2025-01-31")))
	assert.Equal(t, "1234.56", got.StatementBalance.StringFixed(2))
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, store.CreateSession(ctx, testSession("sess-2")))
	other := testSession("sess-3")
	other.UserID = "user-2"
	require.NoError(t, store.CreateSession(ctx, other))

	sessions, err := store.ListSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	completedAt := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CompleteSession(ctx, "sess-1", completedAt))

	got, err = store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completedAt))

	err = store.CompleteSession(ctx, "sess-1", completedAt)
	assert.ErrorIs(t, err, common.ErrSessionCompleted)
}

func TestCreateSession_Duplicate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, testSession("sess-1")))
	err := store.CreateSession(ctx, testSession("sess-1"))
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)
}

func TestSessions_NotFound(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrSessionNotFound)

	err = store.CompleteSession(ctx, "missing", time.Now())
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestCreateSession_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		mutate  func(s *model.ReconciliationSession)
		wantErr error
		name    string
	}{
		{name: "missing id", mutate: func(s *model.ReconciliationSession) { s.ID = "" }, wantErr: ErrInvalidSession},
		{name: "missing user", mutate: func(s *model.ReconciliationSession) { s.UserID = "" }, wantErr: ErrInvalidSession},
		{name: "missing account", mutate: func(s *model.ReconciliationSession) { s.AccountID = "" }, wantErr: ErrInvalidSession},
		{name: "reversed window", mutate: func(s *model.ReconciliationSession) { s.EndDate = day("2024-12-01") }, wantErr: ErrInvalidDateRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSession("sess-x")
			tt.mutate(s)
			assert.ErrorIs(t, store.CreateSession(ctx, s), tt.wantErr)
		})
	}

	assert.ErrorIs(t, store.CreateSession(ctx, nil), ErrNilParameter)
}

func TestBookTransactions(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	other := testBook("b-other", "5.00", "2025-01-10")
	other.AccountID = "savings"
	require.NoError(t, store.SaveBookTransactions(ctx, []model.BookTransaction{
		testBook("b-before", "1.00", "2024-12-31"),
		testBook("b-start", "2.00", "2025-01-01"),
		testBook("b-mid", "3.50", "2025-01-15"),
		testBook("b-end", "4.00", "2025-01-31"),
		testBook("b-after", "5.00", "2025-02-01"),
		other,
	}))

	books, err := store.GetBookTransactions(ctx, "chk", day("2025-01-01"), day("2025-01-31"), "user-1")
	require.NoError(t, err)

	ids := make([]string, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	assert.Equal(t, []string{"b-start", "b-mid", "b-end"}, ids, "window is inclusive on both ends")
	assert.Equal(t, "3.50", books[1].Amount.StringFixed(2))
	assert.Equal(t, "Book b-mid", books[1].Description)

	require.NoError(t, store.MarkBookTransactionsReconciled(ctx, []string{"b-mid", "not-local"}))

	books, err = store.GetBookTransactions(ctx, "chk", day("2025-01-01"), day("2025-01-31"), "user-1")
	require.NoError(t, err)
	assert.Len(t, books, 2, "reconciled rows are excluded")

	// Re-importing keeps the reconciled flag.
	require.NoError(t, store.SaveBookTransactions(ctx, []model.BookTransaction{testBook("b-mid", "3.75", "2025-01-15")}))
	books, err = store.GetBookTransactions(ctx, "chk", day("2025-01-01"), day("2025-01-31"), "user-1")
	require.NoError(t, err)
	assert.Len(t, books, 2)
}

func TestBookTransactions_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.SaveBookTransactions(ctx, nil), ErrEmptySlice)

	missingAccount := testBook("b1", "1.00", "2025-01-01")
	missingAccount.AccountID = ""
	assert.ErrorIs(t, store.SaveBookTransactions(ctx, []model.BookTransaction{missingAccount}), ErrInvalidBookEntry)

	_, err := store.GetBookTransactions(ctx, "chk", day("2025-02-01"), day("2025-01-01"), "")
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}
