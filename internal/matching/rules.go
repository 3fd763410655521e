package matching

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

const defaultSimilarDrift = 20.0

// RuleEngine evaluates reconciliation rules against statement/book pairs.
type RuleEngine struct {
	rules []model.ReconciliationRule
}

// NewRuleEngine creates a rule engine. Inactive rules are dropped and the
// rest are ordered by priority, highest first, keeping the given order for
// equal priorities.
func NewRuleEngine(rules []model.ReconciliationRule) *RuleEngine {
	active := make([]model.ReconciliationRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sortByPriority(active)
	return &RuleEngine{rules: active}
}

// Rules returns the active rules in evaluation order.
func (e *RuleEngine) Rules() []model.ReconciliationRule {
	return e.rules
}

// Candidates returns one rule match for every pair satisfied by at least one
// rule. A pair is credited to the highest-priority rule it satisfies. Order
// is rule priority, then statement order, then book order.
func (e *RuleEngine) Candidates(statements []model.StatementTransaction, books []model.BookTransaction) []model.TransactionMatch {
	type pairKey struct{ stmt, book string }
	seen := make(map[pairKey]bool)

	var candidates []model.TransactionMatch
	for _, rule := range e.rules {
		for _, stmt := range statements {
			for _, book := range books {
				key := pairKey{stmt.ID, book.ID}
				if seen[key] {
					continue
				}
				if !Matches(rule, stmt, book) {
					continue
				}
				seen[key] = true
				candidates = append(candidates, ruleMatch(rule, stmt, book))
			}
		}
	}
	return candidates
}

// RuleScore is the synthetic score of a rule match. It depends only on the
// rule's priority.
func RuleScore(priority int) float64 {
	return clamp(0.5+float64(priority)*0.1, 0, 1)
}

func ruleMatch(rule model.ReconciliationRule, stmt model.StatementTransaction, book model.BookTransaction) model.TransactionMatch {
	id := rule.ID
	return model.TransactionMatch{
		StatementTransaction: stmt,
		BookTransaction:      book,
		Score:                RuleScore(rule.Priority),
		Confidence:           model.ConfidenceManual,
		Reason:               fmt.Sprintf("Matched by rule %q", rule.Name),
		Criteria:             []model.Criterion{model.CriterionRuleMatch},
		RuleID:               &id,
	}
}

// Matches reports whether every condition of rule holds for the pair.
// Inputs are never modified, so repeated calls agree.
func Matches(rule model.ReconciliationRule, stmt model.StatementTransaction, book model.BookTransaction) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	for _, cond := range rule.Conditions {
		if !conditionHolds(cond, stmt, book) {
			return false
		}
	}
	return true
}

func conditionHolds(cond model.RuleCondition, stmt model.StatementTransaction, book model.BookTransaction) bool {
	actual, ok := fieldValue(cond.Field, stmt, book)
	if !ok {
		return false
	}

	switch cond.Operator {
	case model.OperatorEquals:
		expected, ok := operand(cond.Value, stmt, book)
		return ok && actual == expected
	case model.OperatorContains:
		expected, ok := operand(cond.Value, stmt, book)
		if !ok || actual == "" {
			return false
		}
		return strings.Contains(strings.ToLower(actual), strings.ToLower(expected))
	case model.OperatorAmountEquals:
		expected, ok := operand(cond.Value, stmt, book)
		return ok && amountsEqual(actual, expected)
	case model.OperatorSimilar:
		text, drift := splitDrift(cond.Value)
		expected, ok := operand(text, stmt, book)
		return ok && similarStrings(actual, expected, drift)
	default:
		return false
	}
}

// fieldValue returns the canonical string form of a pair field and whether
// the field is present.
func fieldValue(field string, stmt model.StatementTransaction, book model.BookTransaction) (string, bool) {
	var v string
	switch field {
	case model.FieldStatementID:
		v = stmt.ID
	case model.FieldStatementAmount:
		v = stmt.Amount.StringFixed(2)
	case model.FieldStatementDescription:
		v = stmt.Description
	case model.FieldStatementReference:
		v = stmt.Reference
	case model.FieldStatementDate:
		v = formatDate(stmt.Date)
	case model.FieldBookID:
		v = book.ID
	case model.FieldBookAmount:
		v = book.Amount.StringFixed(2)
	case model.FieldBookDescription:
		v = book.Description
	case model.FieldBookReference:
		v = book.ReferenceID
	case model.FieldBookDate:
		v = formatDate(book.TransactionDate)
	case model.FieldBookCategory:
		v = book.Category
	default:
		return "", false
	}
	return v, v != ""
}

// operand resolves a condition value. Values naming a field compare against
// that field of the same pair.
func operand(value string, stmt model.StatementTransaction, book model.BookTransaction) (string, bool) {
	if model.IsRuleField(value) {
		return fieldValue(value, stmt, book)
	}
	return value, true
}

func amountsEqual(a, b string) bool {
	da, err := decimal.NewFromString(strings.TrimSpace(a))
	if err != nil {
		return false
	}
	db, err := decimal.NewFromString(strings.TrimSpace(b))
	if err != nil {
		return false
	}
	return da.Sub(db).Abs().LessThan(exactAmountTolerance)
}

// splitDrift separates "text|drift" into its parts. Drift is a percentage of
// the longer string's length.
func splitDrift(value string) (string, float64) {
	idx := strings.LastIndex(value, "|")
	if idx < 0 {
		return value, defaultSimilarDrift
	}
	drift, err := strconv.ParseFloat(strings.TrimSpace(value[idx+1:]), 64)
	if err != nil || drift < 0 {
		return value, defaultSimilarDrift
	}
	return value[:idx], drift
}

func similarStrings(a, b string, drift float64) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	distance := levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	longest := float64(max(len([]rune(a)), len([]rune(b))))
	allowed := int(math.Floor(longest * drift / 100))
	return distance <= allowed
}

// ValidateRule checks that a rule can be evaluated.
func ValidateRule(rule model.ReconciliationRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: rule name is required", common.ErrInvalidRule)
	}
	if len(rule.Conditions) == 0 {
		return fmt.Errorf("%w: rule %q has no conditions", common.ErrInvalidRule, rule.Name)
	}
	for i, cond := range rule.Conditions {
		if !model.IsRuleField(cond.Field) {
			return fmt.Errorf("%w: condition %d: unknown field %q", common.ErrInvalidRule, i, cond.Field)
		}
		if cond.Value == "" {
			return fmt.Errorf("%w: condition %d: value is required", common.ErrInvalidRule, i)
		}
		switch cond.Operator {
		case model.OperatorEquals, model.OperatorContains, model.OperatorSimilar:
		case model.OperatorAmountEquals:
			if !model.IsRuleField(cond.Value) {
				if _, err := decimal.NewFromString(strings.TrimSpace(cond.Value)); err != nil {
					return fmt.Errorf("%w: condition %d: %q is not an amount", common.ErrInvalidRule, i, cond.Value)
				}
			}
		default:
			return fmt.Errorf("%w: condition %d: unknown operator %q", common.ErrInvalidRule, i, cond.Operator)
		}
	}
	return nil
}

func sortByPriority(rules []model.ReconciliationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
