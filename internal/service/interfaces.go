// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

// SessionStore owns reconciliation session records.
type SessionStore interface {
	CreateSession(ctx context.Context, session *model.ReconciliationSession) error
	GetSession(ctx context.Context, id string) (*model.ReconciliationSession, error)
	ListSessions(ctx context.Context, userID string) ([]model.ReconciliationSession, error)
	CompleteSession(ctx context.Context, id string, completedAt time.Time) error
}

// BookSource supplies ledger transactions for an account and an inclusive
// date window. Implementations must exclude reconciled transactions.
type BookSource interface {
	GetBookTransactions(ctx context.Context, accountID string, startDate, endDate time.Time, userID string) ([]model.BookTransaction, error)
}

// HistorySource supplies prior match outcomes whose stored statement
// description contains the given substring (case-insensitive).
type HistorySource interface {
	GetHistoricalMatches(ctx context.Context, descriptionSubstring string) ([]model.HistoricalMatch, error)
}

// RuleStore persists user-authored reconciliation rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *model.ReconciliationRule) error
	GetRule(ctx context.Context, id int64) (*model.ReconciliationRule, error)
	GetActiveRules(ctx context.Context, userID string) ([]model.ReconciliationRule, error)
	DeleteRule(ctx context.Context, id int64) error
	RecordRuleUsage(ctx context.Context, id int64, usedAt time.Time) error
}

// MatchStore persists match records.
type MatchStore interface {
	SaveMatchRecords(ctx context.Context, records []model.MatchRecord) error
	GetMatchRecords(ctx context.Context, sessionID string) ([]model.MatchRecord, error)
	UpdateMatchStatus(ctx context.Context, id string, status model.MatchStatus) error
	GetMatchedBookIDs(ctx context.Context, ids []string) (map[string]bool, error)
	MarkBookTransactionsReconciled(ctx context.Context, ids []string) error
}

// LedgerWriter stores book transactions in the local ledger.
type LedgerWriter interface {
	SaveBookTransactions(ctx context.Context, transactions []model.BookTransaction) error
}

// Storage is the full persistence contract backed by the local database.
type Storage interface {
	SessionStore
	BookSource
	HistorySource
	RuleStore
	MatchStore
	LedgerWriter

	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	SaveMatchRecords(ctx context.Context, records []model.MatchRecord) error
	MarkBookTransactionsReconciled(ctx context.Context, ids []string) error
	RecordRuleUsage(ctx context.Context, id int64, usedAt time.Time) error
}

// RetryOptions configures retry behavior for operations. Logger receives
// the retry warnings; nil uses slog.Default.
type RetryOptions struct {
	Logger       *slog.Logger
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// StatementFetcher pulls statement lines from a bank connection.
type StatementFetcher interface {
	GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]model.StatementTransaction, error)
	GetAccounts(ctx context.Context) ([]string, error)
}
