package ledger

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesTable(t *testing.T) {
	tests := []struct {
		table   string
		wantErr bool
	}{
		{table: ""},
		{table: "gl_entries"},
		{table: "accounting.gl_entries"},
		{table: "gl entries", wantErr: true},
		{table: "gl;DROP TABLE x", wantErr: true},
		{table: "1entries", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			ledger, err := New(&sql.DB{}, tt.table)
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			want := tt.table
			if want == "" {
				want = DefaultTable
			}
			assert.Contains(t, ledger.query, "FROM "+want+"\n")
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantUser      bool
		wantRetryable bool
	}{
		{name: "undefined table", err: &pq.Error{Code: "42P01"}, wantUser: true},
		{name: "bad password", err: &pq.Error{Code: "28P01"}, wantUser: true},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, wantRetryable: true},
		{name: "too many connections", err: &pq.Error{Code: "53300"}, wantRetryable: true},
		{name: "division by zero", err: &pq.Error{Code: "22012"}},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError(tt.err)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)

			var userErr *common.UserError
			assert.Equal(t, tt.wantUser, errors.As(err, &userErr))
			assert.Equal(t, tt.wantRetryable, common.IsRetryable(err))
		})
	}
}

// TestPostgresLedgerIntegration runs against a real database when
// BALANCE_TEST_POSTGRES_DSN is set.
func TestPostgresLedgerIntegration(t *testing.T) {
	dsn := os.Getenv("BALANCE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BALANCE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	ledger, err := Open(ctx, dsn, "balance_test_ledger")
	require.NoError(t, err)
	defer func() { _ = ledger.Close() }()

	// Temp tables are per connection.
	ledger.db.SetMaxOpenConns(1)

	_, err = ledger.db.ExecContext(ctx, `
		CREATE TEMP TABLE balance_test_ledger (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			transaction_date DATE NOT NULL,
			amount NUMERIC(14,2) NOT NULL,
			description TEXT NOT NULL,
			reference_id TEXT,
			category TEXT,
			reconciled BOOLEAN NOT NULL DEFAULT FALSE
		)`)
	require.NoError(t, err)

	_, err = ledger.db.ExecContext(ctx, `
		INSERT INTO balance_test_ledger (id, user_id, account_id, transaction_date, amount, description, reference_id, category, reconciled) VALUES
		('b1', 'u1', 'acct', '2024-01-01', -45.99, 'Amazon', NULL, 'Office', FALSE),
		('b2', 'u1', 'acct', '2024-01-31', 3200.00, 'Payroll', 'PR-1', NULL, FALSE),
		('b3', 'u1', 'acct', '2024-01-15', -10.00, 'Done', NULL, NULL, TRUE),
		('b4', 'u1', 'acct', '2024-02-01', -5.00, 'Next month', NULL, NULL, FALSE),
		('b5', 'u2', 'acct', '2024-01-10', -7.00, 'Other user', NULL, NULL, FALSE)`)
	require.NoError(t, err)

	books, err := ledger.GetBookTransactions(ctx, "acct",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		"u1")
	require.NoError(t, err)
	require.Len(t, books, 2)

	assert.Equal(t, "b1", books[0].ID)
	assert.True(t, decimal.RequireFromString("-45.99").Equal(books[0].Amount))
	assert.Equal(t, "Office", books[0].Category)
	assert.Equal(t, "b2", books[1].ID)
	assert.Equal(t, "PR-1", books[1].ReferenceID)
}
