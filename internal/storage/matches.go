package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

const (
	// historyLimit caps how many prior outcomes feed one history lookup.
	historyLimit = 200
	// idBatchSize keeps IN lists under SQLite's bound parameter limit.
	idBatchSize = 500
)

// SaveMatchRecords stores match records in one transaction.
func (s *SQLiteStorage) SaveMatchRecords(ctx context.Context, records []model.MatchRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMatchRecords(records); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.saveMatchRecordsTx(ctx, tx, records)
	})
}

func (s *SQLiteStorage) saveMatchRecordsTx(ctx context.Context, tx *sql.Tx, records []model.MatchRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transaction_matches (
			id, session_id, statement_transaction_id, statement_description,
			statement_amount, statement_date, book_transaction_id, score,
			confidence, criteria, reason, explanation, rule_id, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range records {
		r := &records[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}

		criteria, err := encodeCriteria(r.Criteria)
		if err != nil {
			return err
		}

		if _, err := stmt.ExecContext(ctx,
			r.ID,
			r.SessionID,
			r.StatementTransactionID,
			r.StatementDescription,
			r.StatementAmount,
			dayOf(r.StatementDate),
			r.BookTransactionID,
			r.Score,
			string(r.Confidence),
			criteria,
			r.Reason,
			r.Explanation,
			r.RuleID,
			string(r.Status),
			r.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to save match record %s: %w", r.ID, err)
		}
	}
	return nil
}

// GetMatchRecords returns a session's match records in the order they were stored.
func (s *SQLiteStorage) GetMatchRecords(ctx context.Context, sessionID string) ([]model.MatchRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, statement_transaction_id, statement_description,
			statement_amount, statement_date, book_transaction_id, score,
			confidence, criteria, reason, explanation, rule_id, status, created_at
		FROM transaction_matches
		WHERE session_id = ?
		ORDER BY created_at, rowid
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query match records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.MatchRecord
	for rows.Next() {
		var (
			r          model.MatchRecord
			confidence string
			criteria   string
			status     string
			ruleID     sql.NullInt64
		)
		if err := rows.Scan(
			&r.ID,
			&r.SessionID,
			&r.StatementTransactionID,
			&r.StatementDescription,
			&r.StatementAmount,
			&r.StatementDate,
			&r.BookTransactionID,
			&r.Score,
			&confidence,
			&criteria,
			&r.Reason,
			&r.Explanation,
			&ruleID,
			&status,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match record: %w", err)
		}

		r.Confidence = model.MatchConfidence(confidence)
		r.Status = model.MatchStatus(status)
		if ruleID.Valid {
			id := ruleID.Int64
			r.RuleID = &id
		}
		if r.Criteria, err = decodeCriteria(criteria); err != nil {
			return nil, fmt.Errorf("match record %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetMatchedBookIDs reports which of ids already back a match record in
// the matched state. Rejected records do not count.
func (s *SQLiteStorage) GetMatchedBookIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	matched := make(map[string]bool)
	for start := 0; start < len(ids); start += idBatchSize {
		batch := ids[start:min(start+idBatchSize, len(ids))]

		args := make([]any, 0, len(batch)+1)
		args = append(args, string(model.MatchStatusMatched))
		for _, id := range batch {
			args = append(args, id)
		}

		rows, err := s.db.QueryContext(ctx, `
			SELECT DISTINCT book_transaction_id
			FROM transaction_matches
			WHERE status = ? AND book_transaction_id IN (`+placeholders(len(batch))+`)`,
			args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query matched book transactions: %w", err)
		}
		if err := collectIDs(rows, matched); err != nil {
			return nil, err
		}
	}
	return matched, nil
}

func collectIDs(rows *sql.Rows, into map[string]bool) error {
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan id: %w", err)
		}
		into[id] = true
	}
	return rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// UpdateMatchStatus changes the status of a stored match. Rejecting a match
// returns its book transaction to the unreconciled pool.
func (s *SQLiteStorage) UpdateMatchStatus(ctx context.Context, id string, status model.MatchStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE transaction_matches SET status = ? WHERE id = ?`, string(status), id)
		if err != nil {
			return fmt.Errorf("failed to update match status: %w", err)
		}
		if err := requireAffected(result, "match "+id); err != nil {
			return err
		}

		reconciled := status == model.MatchStatusMatched
		_, err = tx.ExecContext(ctx, `
			UPDATE book_transactions SET reconciled = ?
			WHERE id = (SELECT book_transaction_id FROM transaction_matches WHERE id = ?)
		`, reconciled, id)
		if err != nil {
			return fmt.Errorf("failed to update book transaction: %w", err)
		}
		return nil
	})
}

// GetHistoricalMatches returns the most recent stored outcomes whose
// statement description contains substring, ignoring case.
func (s *SQLiteStorage) GetHistoricalMatches(ctx context.Context, substring string) ([]model.HistoricalMatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(substring) == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT statement_description, book_transaction_id, status
		FROM transaction_matches
		WHERE LOWER(statement_description) LIKE '%' || LOWER(?) || '%' ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT ?
	`, escapeLike(substring), historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history []model.HistoricalMatch
	for rows.Next() {
		var (
			h      model.HistoricalMatch
			status string
		)
		if err := rows.Scan(&h.StatementDescription, &h.BookTransactionID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan historical match: %w", err)
		}
		h.Status = model.MatchStatus(status)
		history = append(history, h)
	}
	return history, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func encodeCriteria(criteria []model.Criterion) (string, error) {
	keys := make([]string, 0, len(criteria))
	for _, c := range criteria {
		key := c.Key()
		if key == "" {
			return "", fmt.Errorf("%w: unknown criterion %d", ErrInvalidMatchRecord, int(c))
		}
		keys = append(keys, key)
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return "", fmt.Errorf("failed to encode criteria: %w", err)
	}
	return string(data), nil
}

func decodeCriteria(data string) ([]model.Criterion, error) {
	var keys []string
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, fmt.Errorf("%w: criteria: %v", ErrInvalidStoredRecord, err)
	}
	criteria := make([]model.Criterion, 0, len(keys))
	for _, key := range keys {
		c, ok := model.ParseCriterion(key)
		if !ok {
			return nil, fmt.Errorf("%w: unknown criterion %q", ErrInvalidStoredRecord, key)
		}
		criteria = append(criteria, c)
	}
	return criteria, nil
}
