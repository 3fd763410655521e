package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

// CreateSession stores a new reconciliation session.
func (s *SQLiteStorage) CreateSession(ctx context.Context, session *model.ReconciliationSession) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSession(session); err != nil {
		return err
	}

	if session.Status == "" {
		session.Status = model.SessionInProgress
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_sessions (
			id, user_id, account_id, start_date, end_date,
			statement_balance, status, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.UserID,
		session.AccountID,
		dayOf(session.StartDate),
		dayOf(session.EndDate),
		session.StatementBalance,
		string(session.Status),
		session.CreatedAt,
		session.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: session %s", common.ErrDuplicateEntry, session.ID)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*model.ReconciliationSession, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, account_id, start_date, end_date,
			statement_balance, status, created_at, completed_at
		FROM reconciliation_sessions
		WHERE id = ?
	`, id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListSessions returns a user's sessions, newest first.
func (s *SQLiteStorage) ListSessions(ctx context.Context, userID string) ([]model.ReconciliationSession, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, account_id, start_date, end_date,
			statement_balance, status, created_at, completed_at
		FROM reconciliation_sessions
		WHERE user_id = ?
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []model.ReconciliationSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// CompleteSession marks an in-progress session as completed.
func (s *SQLiteStorage) CompleteSession(ctx context.Context, id string, completedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM reconciliation_sessions WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", common.ErrSessionNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to get session status: %w", err)
		}
		if model.SessionStatus(status) == model.SessionCompleted {
			return fmt.Errorf("%w: %s", common.ErrSessionCompleted, id)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE reconciliation_sessions
			SET status = ?, completed_at = ?
			WHERE id = ?
		`, string(model.SessionCompleted), completedAt, id)
		if err != nil {
			return fmt.Errorf("failed to complete session: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.ReconciliationSession, error) {
	var (
		session     model.ReconciliationSession
		status      string
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.AccountID,
		&session.StartDate,
		&session.EndDate,
		&session.StatementBalance,
		&status,
		&session.CreatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	session.Status = model.SessionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}
	return &session, nil
}

// dayOf drops the time of day, keeping the calendar date as given.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
