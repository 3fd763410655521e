package matching

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/Veraticus/the-spice-must-balance/internal/service"
)

// DefaultMinScore is the similarity a candidate must exceed to be proposed.
const DefaultMinScore = 0.2

// Config holds matcher tuning.
type Config struct {
	MinScore float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{MinScore: DefaultMinScore}
}

// Matcher runs the full matching pipeline for one batch of statement
// transactions. A Matcher keeps no state between runs.
type Matcher struct {
	scorer      *Scorer
	categorizer Categorizer
	history     service.HistorySource
	explainer   Explainer
	logger      *slog.Logger
	progress    func(done, total int)
	config      Config
}

// NewMatcher creates a matcher. Categorizer, history and explainer are
// optional; missing signals score as neutral and missing explanations fall
// back to the template.
func NewMatcher(cfg Config, categorizer Categorizer, history service.HistorySource, explainer Explainer, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	if explainer == nil {
		explainer = TemplateExplainer{}
	}
	return &Matcher{
		scorer:      NewScorer(),
		categorizer: categorizer,
		history:     history,
		explainer:   explainer,
		logger:      logger,
		config:      cfg,
	}
}

// OnProgress registers a callback invoked as statements are scored.
func (m *Matcher) OnProgress(fn func(done, total int)) {
	m.progress = fn
}

// Match pairs statements with books and reports what is left over. Only
// context cancellation is returned as an error; lookup failures degrade to
// neutral signals.
func (m *Matcher) Match(ctx context.Context, statements []model.StatementTransaction, books []model.BookTransaction, rules []model.ReconciliationRule) (*model.MatchSuggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signals, err := m.collectSignals(ctx, statements)
	if err != nil {
		return nil, err
	}

	ruleCandidates := NewRuleEngine(rules).Candidates(statements, books)

	score := func(stmt model.StatementTransaction, book model.BookTransaction) Similarity {
		return m.scorer.Score(stmt, book, signals[stmt.ID])
	}
	candidates := assembleCandidates(ruleCandidates, statements, books, score, m.config.MinScore, m.progress)

	matches := Optimize(candidates)
	for i := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches[i].Explanation = m.explain(ctx, matches[i])
	}

	unmatchedStatements, unmatchedBooks := partition(matches, statements, books)

	m.logger.Debug("matching run finished",
		"statements", len(statements),
		"books", len(books),
		"rules", len(rules),
		"rule_candidates", len(ruleCandidates),
		"candidates", len(candidates),
		"matches", len(matches))

	return &model.MatchSuggestion{
		Matches:             matches,
		UnmatchedStatements: unmatchedStatements,
		UnmatchedBooks:      unmatchedBooks,
		Confidence:          OverallConfidence(matches),
		Insights:            BuildInsights(matches, statements),
	}, nil
}

// collectSignals fetches the category prediction and history prior once
// per statement transaction.
func (m *Matcher) collectSignals(ctx context.Context, statements []model.StatementTransaction) (map[string]StatementSignals, error) {
	signals := make(map[string]StatementSignals, len(statements))
	categories := make(map[string]string)
	histories := make(map[string]historyPrior)

	for _, stmt := range statements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var s StatementSignals

		if m.categorizer != nil {
			key := strings.ToLower(stmt.Description) + "|" + stmt.Amount.String()
			if category, ok := categories[key]; ok {
				s.PredictedCategory, s.CategoryKnown = category, true
			} else if predicted, err := m.categorizer.Categorize(ctx, stmt.Description, stmt.Amount, stmt.Type()); err != nil {
				m.logger.Warn("category prediction failed, using neutral score",
					"statement_id", stmt.ID,
					"error", err)
			} else {
				categories[key] = predicted
				s.PredictedCategory, s.CategoryKnown = predicted, true
			}
		}

		if m.history != nil && strings.TrimSpace(stmt.Description) != "" {
			key := strings.ToLower(stmt.Description)
			h, ok := histories[key]
			if !ok {
				h.ratio, h.known = m.historyRatio(ctx, stmt)
				histories[key] = h
			}
			s.HistoryRatio, s.HistoryKnown = h.ratio, h.known
		}

		signals[stmt.ID] = s
	}

	return signals, nil
}

type historyPrior struct {
	ratio float64
	known bool
}

func (m *Matcher) historyRatio(ctx context.Context, stmt model.StatementTransaction) (float64, bool) {
	prior, err := m.history.GetHistoricalMatches(ctx, stmt.Description)
	if err != nil {
		m.logger.Warn("historical pattern lookup failed, using neutral score",
			"statement_id", stmt.ID,
			"error", err)
		return 0, false
	}
	if len(prior) == 0 {
		return 0, false
	}

	matched := 0
	for _, h := range prior {
		if h.Status == model.MatchStatusMatched {
			matched++
		}
	}
	return float64(matched) / float64(len(prior)), true
}

func (m *Matcher) explain(ctx context.Context, match model.TransactionMatch) string {
	text, err := m.explainer.Explain(ctx, match)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			m.logger.Warn("explanation failed, using template",
				"statement_id", match.StatementTransaction.ID,
				"error", err)
		}
		return ExplainMatch(match)
	}
	return text
}

// partition returns inputs absent from matches, in input order.
func partition(matches []model.TransactionMatch, statements []model.StatementTransaction, books []model.BookTransaction) ([]model.StatementTransaction, []model.BookTransaction) {
	matchedStatements := make(map[string]bool, len(matches))
	matchedBooks := make(map[string]bool, len(matches))
	for _, match := range matches {
		matchedStatements[match.StatementTransaction.ID] = true
		matchedBooks[match.BookTransaction.ID] = true
	}

	unmatchedStatements := make([]model.StatementTransaction, 0, len(statements)-len(matches))
	for _, s := range statements {
		if !matchedStatements[s.ID] {
			unmatchedStatements = append(unmatchedStatements, s)
		}
	}

	unmatchedBooks := make([]model.BookTransaction, 0, max(len(books)-len(matches), 0))
	for _, b := range books {
		if !matchedBooks[b.ID] {
			unmatchedBooks = append(unmatchedBooks, b)
		}
	}

	return unmatchedStatements, unmatchedBooks
}

// ValidateStatements rejects batches whose ids are empty or repeated.
func ValidateStatements(statements []model.StatementTransaction) error {
	seen := make(map[string]bool, len(statements))
	for i, s := range statements {
		if s.ID == "" {
			return fmt.Errorf("statement transaction at index %d has no id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate statement transaction id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
