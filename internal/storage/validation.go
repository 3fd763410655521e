// Package storage provides the SQLite persistence layer for reconciliation
// sessions, the local book ledger, rules and match records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrNilParameter        = errors.New("parameter cannot be nil")
	ErrEmptySlice          = errors.New("slice cannot be empty")
	ErrInvalidDateRange    = errors.New("start date must be before end date")
	ErrInvalidStatus       = errors.New("invalid match status")
	ErrInvalidSession      = errors.New("invalid reconciliation session")
	ErrInvalidBookEntry    = errors.New("invalid book transaction")
	ErrInvalidMatchRecord  = errors.New("invalid match record")
	ErrInvalidStoredRecord = errors.New("invalid stored data")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateSession(session *model.ReconciliationSession) error {
	if session == nil {
		return fmt.Errorf("%w: session", ErrNilParameter)
	}
	if session.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidSession)
	}
	if session.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidSession)
	}
	if session.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidSession)
	}
	if session.StartDate.IsZero() || session.EndDate.IsZero() {
		return fmt.Errorf("%w: missing date window", ErrInvalidSession)
	}
	if session.EndDate.Before(session.StartDate) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidDateRange,
			session.EndDate.Format("2006-01-02"), session.StartDate.Format("2006-01-02"))
	}
	return nil
}

func validateBookTransactions(transactions []model.BookTransaction) error {
	if len(transactions) == 0 {
		return fmt.Errorf("%w: book transactions", ErrEmptySlice)
	}
	for i, txn := range transactions {
		switch {
		case txn.ID == "":
			return fmt.Errorf("book transaction at index %d: %w: missing ID", i, ErrInvalidBookEntry)
		case txn.AccountID == "":
			return fmt.Errorf("book transaction at index %d: %w: missing account ID", i, ErrInvalidBookEntry)
		case txn.TransactionDate.IsZero():
			return fmt.Errorf("book transaction at index %d: %w: missing date", i, ErrInvalidBookEntry)
		}
	}
	return nil
}

func validateMatchRecords(records []model.MatchRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: match records", ErrEmptySlice)
	}
	for i, r := range records {
		switch {
		case r.ID == "":
			return fmt.Errorf("match record at index %d: %w: missing ID", i, ErrInvalidMatchRecord)
		case r.SessionID == "":
			return fmt.Errorf("match record at index %d: %w: missing session ID", i, ErrInvalidMatchRecord)
		case r.StatementTransactionID == "" || r.BookTransactionID == "":
			return fmt.Errorf("match record at index %d: %w: missing transaction IDs", i, ErrInvalidMatchRecord)
		case r.Score < 0 || r.Score > 1:
			return fmt.Errorf("match record at index %d: %w: score must be between 0 and 1", i, ErrInvalidMatchRecord)
		}
		if err := validateStatus(r.Status); err != nil {
			return fmt.Errorf("match record at index %d: %w", i, err)
		}
	}
	return nil
}

func validateStatus(status model.MatchStatus) error {
	switch status {
	case model.MatchStatusMatched, model.MatchStatusRejected:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
}
