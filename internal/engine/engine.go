// Package engine implements the reconciliation service that matches bank
// statement lines against a session's book transactions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/matching"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/Veraticus/the-spice-must-balance/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationService orchestrates matching runs for reconciliation sessions.
type ReconciliationService struct {
	storage service.Storage
	books   service.BookSource
	matcher *matching.Matcher
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
	// externalBooks is set when books are read from a ledger whose
	// reconciled flags this service cannot update.
	externalBooks bool
}

// Config holds optional collaborators for the service.
type Config struct {
	// Books overrides where book transactions are read from. Nil means the
	// local ledger in storage.
	Books  service.BookSource
	Logger *slog.Logger
}

// FindMatchesRequest is the input of one matching run.
type FindMatchesRequest struct {
	SessionID             string
	StatementTransactions []model.StatementTransaction
}

// SessionSummary describes a session's stored outcome.
type SessionSummary struct {
	CompletedAt      time.Time
	StatementBalance decimal.Decimal
	MatchedAmount    decimal.Decimal
	ByConfidence     map[model.MatchConfidence]int
	SessionID        string
	Matched          int
	Rejected         int
}

// New creates a reconciliation service reading books from storage.
func New(storage service.Storage, matcher *matching.Matcher) *ReconciliationService {
	return NewWithConfig(storage, matcher, Config{})
}

// NewWithConfig creates a reconciliation service with custom collaborators.
func NewWithConfig(storage service.Storage, matcher *matching.Matcher, cfg Config) *ReconciliationService {
	books, external := cfg.Books, cfg.Books != nil
	if !external {
		books = storage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = common.ComponentLogger("engine")
	}
	return &ReconciliationService{
		storage: storage,
		books:   books,
		matcher: matcher,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,

		externalBooks: external,
	}
}

// FindOptimalMatches resolves the session, loads its unreconciled book
// transactions and the user's active rules, and runs the matcher.
func (s *ReconciliationService) FindOptimalMatches(ctx context.Context, req FindMatchesRequest) (*model.MatchSuggestion, error) {
	if err := matching.ValidateStatements(req.StatementTransactions); err != nil {
		return nil, common.NewUserError("Invalid statement transactions", err)
	}

	session, err := s.getSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	books, err := s.books.GetBookTransactions(ctx, session.AccountID, session.StartDate, session.EndDate, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load book transactions: %w", err)
	}
	if s.externalBooks {
		if books, err = s.withoutMatchedBooks(ctx, books); err != nil {
			return nil, err
		}
	}

	rules, err := s.storage.GetActiveRules(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reconciliation rules: %w", err)
	}

	s.logger.Info("Starting matching run",
		"session_id", session.ID,
		"account_id", session.AccountID,
		"statements", len(req.StatementTransactions),
		"books", len(books),
		"rules", len(rules))

	suggestion, err := s.matcher.Match(ctx, req.StatementTransactions, books, rules)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Matching run complete",
		"session_id", session.ID,
		"matches", len(suggestion.Matches),
		"unmatched_statements", len(suggestion.UnmatchedStatements),
		"confidence", fmt.Sprintf("%.1f", suggestion.Confidence))

	return suggestion, nil
}

// SaveMatches stores accepted matches for a session in one transaction,
// marks their book transactions reconciled and records rule usage. An empty
// input stores nothing and returns nil.
func (s *ReconciliationService) SaveMatches(ctx context.Context, sessionID string, matches []model.TransactionMatch) ([]model.MatchRecord, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionCompleted {
		return nil, common.NewUserError("Reconciliation session is already completed", common.ErrSessionCompleted)
	}

	if err := s.checkBooksUnmatched(ctx, matches); err != nil {
		return nil, err
	}

	now := s.now()
	records := make([]model.MatchRecord, len(matches))
	bookIDs := make([]string, len(matches))
	var ruleIDs []int64
	seenRules := make(map[int64]bool)

	for i, m := range matches {
		records[i] = model.MatchRecord{
			ID:                     s.newID(),
			SessionID:              session.ID,
			StatementTransactionID: m.StatementTransaction.ID,
			StatementDescription:   m.StatementTransaction.Description,
			StatementAmount:        m.StatementTransaction.Amount,
			StatementDate:          m.StatementTransaction.Date,
			BookTransactionID:      m.BookTransaction.ID,
			Score:                  m.Score,
			Confidence:             m.Confidence,
			Criteria:               m.Criteria,
			Reason:                 m.Reason,
			Explanation:            m.Explanation,
			RuleID:                 m.RuleID,
			Status:                 model.MatchStatusMatched,
			CreatedAt:              now,
		}
		bookIDs[i] = m.BookTransaction.ID
		if m.RuleID != nil && !seenRules[*m.RuleID] {
			seenRules[*m.RuleID] = true
			ruleIDs = append(ruleIDs, *m.RuleID)
		}
	}

	tx, err := s.storage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.SaveMatchRecords(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to save match records: %w", err)
	}
	if err := tx.MarkBookTransactionsReconciled(ctx, bookIDs); err != nil {
		return nil, fmt.Errorf("failed to mark book transactions reconciled: %w", err)
	}
	for _, id := range ruleIDs {
		if err := tx.RecordRuleUsage(ctx, id, now); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				s.logger.Warn("Rule deleted before its matches were saved", "rule_id", id)
				continue
			}
			return nil, fmt.Errorf("failed to record rule usage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit matches: %w", err)
	}

	s.logger.Info("Saved matches",
		"session_id", session.ID,
		"count", len(records),
		"rules_used", len(ruleIDs))

	return records, nil
}

// withoutMatchedBooks drops books that already back a saved match. An
// external ledger keeps offering them because their reconciled flag lives
// elsewhere.
func (s *ReconciliationService) withoutMatchedBooks(ctx context.Context, books []model.BookTransaction) ([]model.BookTransaction, error) {
	if len(books) == 0 {
		return books, nil
	}

	ids := make([]string, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	matched, err := s.storage.GetMatchedBookIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load matched book transactions: %w", err)
	}
	if len(matched) == 0 {
		return books, nil
	}

	open := make([]model.BookTransaction, 0, len(books)-len(matched))
	for _, b := range books {
		if !matched[b.ID] {
			open = append(open, b)
		}
	}
	s.logger.Debug("Skipped book transactions with saved matches", "count", len(books)-len(open))
	return open, nil
}

// checkBooksUnmatched refuses to save a book transaction twice, whether in
// the same call or across runs.
func (s *ReconciliationService) checkBooksUnmatched(ctx context.Context, matches []model.TransactionMatch) error {
	ids := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		id := m.BookTransaction.ID
		if seen[id] {
			return common.NewUserError("Book transaction appears in more than one match",
				fmt.Errorf("%w: book transaction %s", common.ErrDuplicateEntry, id))
		}
		seen[id] = true
		ids = append(ids, id)
	}

	matched, err := s.storage.GetMatchedBookIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load matched book transactions: %w", err)
	}
	for _, id := range ids {
		if matched[id] {
			return common.NewUserError("Book transaction is already matched",
				fmt.Errorf("%w: book transaction %s", common.ErrDuplicateEntry, id))
		}
	}
	return nil
}

// RejectMatch marks a stored match as rejected. Rejections lower the
// history prior for similar descriptions in later runs.
func (s *ReconciliationService) RejectMatch(ctx context.Context, matchID string) error {
	if err := s.storage.UpdateMatchStatus(ctx, matchID, model.MatchStatusRejected); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewUserError("Match not found", err)
		}
		return fmt.Errorf("failed to reject match: %w", err)
	}
	s.logger.Info("Rejected match", "match_id", matchID)
	return nil
}

// CompleteSession closes a session and summarises its stored matches.
func (s *ReconciliationService) CompleteSession(ctx context.Context, sessionID string) (*SessionSummary, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	records, err := s.storage.GetMatchRecords(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match records: %w", err)
	}

	completedAt := s.now()
	if err := s.storage.CompleteSession(ctx, session.ID, completedAt); err != nil {
		if errors.Is(err, common.ErrSessionCompleted) {
			return nil, common.NewUserError("Reconciliation session is already completed", err)
		}
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}

	summary := summarize(session, records)
	summary.CompletedAt = completedAt

	s.logger.Info("Completed session",
		"session_id", session.ID,
		"matched", summary.Matched,
		"rejected", summary.Rejected)

	return summary, nil
}

// Summarize reports a session's stored matches without completing it.
func (s *ReconciliationService) Summarize(ctx context.Context, sessionID string) (*SessionSummary, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records, err := s.storage.GetMatchRecords(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match records: %w", err)
	}
	summary := summarize(session, records)
	if session.CompletedAt != nil {
		summary.CompletedAt = *session.CompletedAt
	}
	return summary, nil
}

func (s *ReconciliationService) getSession(ctx context.Context, id string) (*model.ReconciliationSession, error) {
	session, err := s.storage.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrSessionNotFound) {
			return nil, common.NewUserError("Reconciliation session not found", err)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return session, nil
}

func summarize(session *model.ReconciliationSession, records []model.MatchRecord) *SessionSummary {
	summary := &SessionSummary{
		SessionID:        session.ID,
		StatementBalance: session.StatementBalance,
		MatchedAmount:    decimal.Zero,
		ByConfidence:     make(map[model.MatchConfidence]int),
	}
	for _, r := range records {
		switch r.Status {
		case model.MatchStatusMatched:
			summary.Matched++
			summary.MatchedAmount = summary.MatchedAmount.Add(r.StatementAmount)
			summary.ByConfidence[r.Confidence]++
		case model.MatchStatusRejected:
			summary.Rejected++
		}
	}
	return summary
}
