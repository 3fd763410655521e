// Package ledger reads book transactions from an external Postgres general
// ledger. The ledger is read-only; reconciliation state for matched rows is
// tracked by the ledger's own reconciled column.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/Veraticus/the-spice-must-balance/internal/service"
	"github.com/lib/pq"
)

// DefaultTable is the ledger table queried when none is configured.
const DefaultTable = "book_transactions"

var (
	_ service.BookSource = (*PostgresLedger)(nil)

	tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// PostgresLedger implements service.BookSource over a Postgres table with
// the columns id, user_id, account_id, transaction_date, amount,
// description, reference_id, category and reconciled.
type PostgresLedger struct {
	db     *sql.DB
	logger *slog.Logger
	query  string
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn, table string) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	ledger, err := New(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

// New wraps an open database handle.
func New(db *sql.DB, table string) (*PostgresLedger, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRegex.MatchString(table) {
		return nil, fmt.Errorf("%w: ledger table %q", common.ErrInvalidConfig, table)
	}

	return &PostgresLedger{
		db:     db,
		logger: common.ComponentLogger("ledger"),
		query:  buildQuery(table),
	}, nil
}

func buildQuery(table string) string {
	return `
		SELECT id, account_id, transaction_date, amount, description,
		       COALESCE(reference_id, ''), COALESCE(category, ''), reconciled
		FROM ` + table + `
		WHERE account_id = $1
		  AND user_id = $2
		  AND transaction_date BETWEEN $3::date AND $4::date
		  AND NOT reconciled
		ORDER BY transaction_date, id`
}

// Close closes the database handle.
func (l *PostgresLedger) Close() error {
	return l.db.Close()
}

// GetBookTransactions returns unreconciled rows for the account and the
// inclusive date window.
func (l *PostgresLedger) GetBookTransactions(ctx context.Context, accountID string, startDate, endDate time.Time, userID string) ([]model.BookTransaction, error) {
	rows, err := l.db.QueryContext(ctx, l.query,
		accountID,
		userID,
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"))
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() { _ = rows.Close() }()

	var books []model.BookTransaction
	for rows.Next() {
		var book model.BookTransaction
		if err := rows.Scan(
			&book.ID,
			&book.AccountID,
			&book.TransactionDate,
			&book.Amount,
			&book.Description,
			&book.ReferenceID,
			&book.Category,
			&book.Reconciled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	l.logger.Debug("loaded ledger transactions",
		"account_id", accountID,
		"count", len(books))

	return books, nil
}

// classifyError turns Postgres errors a user can fix into user errors and
// marks connection failures as retryable.
func classifyError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return fmt.Errorf("failed to query ledger: %w", err)
	}

	switch pqErr.Code.Class() {
	case "42":
		return common.NewUserError("Ledger table or column is missing; check ledger.table", err)
	case "28":
		return common.NewUserError("Ledger database rejected the credentials", err)
	case "08", "53", "57":
		return &common.RetryableError{Err: fmt.Errorf("ledger unavailable: %w", err), Retryable: true}
	default:
		return fmt.Errorf("failed to query ledger: %w", err)
	}
}
