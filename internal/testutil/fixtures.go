package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/Veraticus/the-spice-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

// DefaultUser owns every fixture that does not name a user.
const DefaultUser = "user-1"

// Fixtures collects seed data for a test database.
type Fixtures struct {
	sessions []model.ReconciliationSession
	books    []model.BookTransaction
	rules    []model.ReconciliationRule
}

// NewFixtures starts an empty fixture set.
func NewFixtures() *Fixtures {
	return &Fixtures{}
}

// WithSession adds a session.
func (f *Fixtures) WithSession(s model.ReconciliationSession) *Fixtures {
	f.sessions = append(f.sessions, s)
	return f
}

// WithBook adds ledger rows.
func (f *Fixtures) WithBook(books ...model.BookTransaction) *Fixtures {
	f.books = append(f.books, books...)
	return f
}

// WithRule adds a rule. Stored IDs are assigned in the order rules are added.
func (f *Fixtures) WithRule(r model.ReconciliationRule) *Fixtures {
	f.rules = append(f.rules, r)
	return f
}

// Apply writes the fixtures to storage.
func (f *Fixtures) Apply(ctx context.Context, store service.Storage) error {
	for i := range f.sessions {
		if err := store.CreateSession(ctx, &f.sessions[i]); err != nil {
			return fmt.Errorf("session %s: %w", f.sessions[i].ID, err)
		}
	}
	if len(f.books) > 0 {
		if err := store.SaveBookTransactions(ctx, f.books); err != nil {
			return fmt.Errorf("book transactions: %w", err)
		}
	}
	for i := range f.rules {
		if err := store.CreateRule(ctx, &f.rules[i]); err != nil {
			return fmt.Errorf("rule %s: %w", f.rules[i].Name, err)
		}
	}
	return nil
}

// Date parses a YYYY-MM-DD date and panics on malformed input.
func Date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// Session builds an in-progress session for DefaultUser.
func Session(id, accountID, start, end string) model.ReconciliationSession {
	return model.ReconciliationSession{
		ID:        id,
		UserID:    DefaultUser,
		AccountID: accountID,
		StartDate: Date(start),
		EndDate:   Date(end),
		Status:    model.SessionInProgress,
	}
}

// Book builds an unreconciled ledger row.
func Book(id, accountID, amount, description, date string) model.BookTransaction {
	return model.BookTransaction{
		ID:              id,
		AccountID:       accountID,
		Amount:          decimal.RequireFromString(amount),
		Description:     description,
		TransactionDate: Date(date),
	}
}

// Statement builds a statement line.
func Statement(id, amount, description, date string) model.StatementTransaction {
	return model.StatementTransaction{
		ID:          id,
		Amount:      decimal.RequireFromString(amount),
		Description: description,
		Date:        Date(date),
	}
}

// DescriptionRule builds an active rule for DefaultUser that fires when the
// statement description contains text and both amounts agree.
func DescriptionRule(name, text string, priority int) model.ReconciliationRule {
	return model.ReconciliationRule{
		UserID:   DefaultUser,
		Name:     name,
		Priority: priority,
		IsActive: true,
		Conditions: []model.RuleCondition{
			{Field: model.FieldStatementDescription, Operator: model.OperatorContains, Value: text},
			{Field: model.FieldStatementAmount, Operator: model.OperatorAmountEquals, Value: model.FieldBookAmount},
		},
	}
}
