package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchConfidence is the confidence tier attached to a match.
type MatchConfidence string

// Confidence tiers.
const (
	ConfidenceHigh   MatchConfidence = "high"
	ConfidenceMedium MatchConfidence = "medium"
	ConfidenceLow    MatchConfidence = "low"
	ConfidenceManual MatchConfidence = "manual"
)

// ConfidenceForScore maps a similarity score to its tier.
func ConfidenceForScore(score float64) MatchConfidence {
	switch {
	case score >= 0.8:
		return ConfidenceHigh
	case score >= 0.5:
		return ConfidenceMedium
	case score >= 0.2:
		return ConfidenceLow
	default:
		return ConfidenceManual
	}
}

// Criterion names one reason a pair was matched.
type Criterion int

// Known match criteria.
const (
	CriterionExactAmount Criterion = iota + 1
	CriterionAmountProximity
	CriterionSameDate
	CriterionDateProximity
	CriterionDescriptionSimilarity
	CriterionReferenceMatch
	CriterionCategoryMatch
	CriterionHistoricalPattern
	CriterionRuleMatch
)

var criterionLabels = map[Criterion]string{
	CriterionExactAmount:           "Exact amount match",
	CriterionAmountProximity:       "Amount within one unit",
	CriterionSameDate:              "Same date",
	CriterionDateProximity:         "Date within a week",
	CriterionDescriptionSimilarity: "Similar description",
	CriterionReferenceMatch:        "Reference match",
	CriterionCategoryMatch:         "Category match",
	CriterionHistoricalPattern:     "Historical pattern",
	CriterionRuleMatch:             "Rule match",
}

var criterionKeys = map[Criterion]string{
	CriterionExactAmount:           "exact_amount",
	CriterionAmountProximity:       "amount_proximity",
	CriterionSameDate:              "same_date",
	CriterionDateProximity:         "date_proximity",
	CriterionDescriptionSimilarity: "description_similarity",
	CriterionReferenceMatch:        "reference_match",
	CriterionCategoryMatch:         "category_match",
	CriterionHistoricalPattern:     "historical_pattern",
	CriterionRuleMatch:             "rule_match",
}

// String returns the human label for the criterion.
func (c Criterion) String() string {
	if label, ok := criterionLabels[c]; ok {
		return label
	}
	return "Unknown"
}

// Key returns the stable storage key for the criterion.
func (c Criterion) Key() string {
	return criterionKeys[c]
}

// ParseCriterion is the inverse of Key.
func ParseCriterion(key string) (Criterion, bool) {
	for c, k := range criterionKeys {
		if k == key {
			return c, true
		}
	}
	return 0, false
}

// TransactionMatch pairs one statement transaction with one book transaction.
type TransactionMatch struct {
	RuleID               *int64
	StatementTransaction StatementTransaction
	BookTransaction      BookTransaction
	Confidence           MatchConfidence
	Reason               string
	Explanation          string
	Criteria             []Criterion
	Score                float64
}

// AmountDifference is the absolute difference between both sides.
func (m TransactionMatch) AmountDifference() decimal.Decimal {
	return m.StatementTransaction.Amount.Sub(m.BookTransaction.Amount).Abs()
}

// HasCriterion reports whether the match carries c.
func (m TransactionMatch) HasCriterion(c Criterion) bool {
	for _, got := range m.Criteria {
		if got == c {
			return true
		}
	}
	return false
}

// MatchSuggestion is the full result of one matching run.
type MatchSuggestion struct {
	Matches             []TransactionMatch
	UnmatchedStatements []StatementTransaction
	UnmatchedBooks      []BookTransaction
	Insights            []string
	Confidence          float64 // 0..100
}

// MatchStatus is the lifecycle state of a stored match.
type MatchStatus string

// Stored match states.
const (
	MatchStatusMatched  MatchStatus = "matched"
	MatchStatusRejected MatchStatus = "rejected"
)

// MatchRecord is a persisted match.
type MatchRecord struct {
	CreatedAt              time.Time
	StatementDate          time.Time
	RuleID                 *int64
	StatementAmount        decimal.Decimal
	ID                     string
	SessionID              string
	StatementTransactionID string
	StatementDescription   string
	BookTransactionID      string
	Confidence             MatchConfidence
	Reason                 string
	Explanation            string
	Status                 MatchStatus
	Criteria               []Criterion
	Score                  float64
}

// HistoricalMatch is a prior match outcome used as a pattern prior.
type HistoricalMatch struct {
	StatementDescription string
	BookTransactionID    string
	Status               MatchStatus
}
