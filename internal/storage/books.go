package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

// SaveBookTransactions inserts or updates ledger rows. The reconciled flag of
// an existing row is left untouched.
func (s *SQLiteStorage) SaveBookTransactions(ctx context.Context, transactions []model.BookTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBookTransactions(transactions); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO book_transactions (
				id, account_id, transaction_date, amount,
				description, reference_id, category, reconciled
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				account_id = excluded.account_id,
				transaction_date = excluded.transaction_date,
				amount = excluded.amount,
				description = excluded.description,
				reference_id = excluded.reference_id,
				category = excluded.category
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range transactions {
			if _, err := stmt.ExecContext(ctx,
				txn.ID,
				txn.AccountID,
				dayOf(txn.TransactionDate),
				txn.Amount,
				txn.Description,
				txn.ReferenceID,
				txn.Category,
				txn.Reconciled,
			); err != nil {
				return fmt.Errorf("failed to save book transaction %s: %w", txn.ID, err)
			}
		}
		return nil
	})
}

// GetBookTransactions returns unreconciled ledger rows for an account whose
// date falls in [startDate, endDate]. The local ledger holds a single user's
// books, so userID does not filter.
func (s *SQLiteStorage) GetBookTransactions(ctx context.Context, accountID string, startDate, endDate time.Time, _ string) ([]model.BookTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, endDate, startDate)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, transaction_date, amount,
			description, reference_id, category, reconciled
		FROM book_transactions
		WHERE account_id = ?
			AND reconciled = 0
			AND transaction_date >= ?
			AND transaction_date < ?
		ORDER BY transaction_date, id
	`, accountID, dayOf(startDate), dayOf(endDate).AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to query book transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var books []model.BookTransaction
	for rows.Next() {
		var b model.BookTransaction
		if err := rows.Scan(
			&b.ID,
			&b.AccountID,
			&b.TransactionDate,
			&b.Amount,
			&b.Description,
			&b.ReferenceID,
			&b.Category,
			&b.Reconciled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan book transaction: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// MarkBookTransactionsReconciled flags ledger rows as reconciled. IDs that
// are not in the local ledger are ignored.
func (s *SQLiteStorage) MarkBookTransactionsReconciled(ctx context.Context, ids []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.markReconciledTx(ctx, tx, ids)
	})
}

func (s *SQLiteStorage) markReconciledTx(ctx context.Context, q queryable, ids []string) error {
	for _, id := range ids {
		if _, err := q.ExecContext(ctx, `UPDATE book_transactions SET reconciled = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to mark book transaction %s reconciled: %w", id, err)
		}
	}
	return nil
}
