package matching

import (
	"testing"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(id int64, name string, priority int, conds ...model.RuleCondition) model.ReconciliationRule {
	return model.ReconciliationRule{ID: id, Name: name, Priority: priority, IsActive: true, Conditions: conds}
}

func cond(field string, op model.RuleOperator, value string) model.RuleCondition {
	return model.RuleCondition{Field: field, Operator: op, Value: value}
}

func TestRuleScore(t *testing.T) {
	assert.InDelta(t, 1.0, RuleScore(5), 1e-9)
	assert.InDelta(t, 0.5, RuleScore(0), 1e-9)
	assert.InDelta(t, 0.7, RuleScore(2), 1e-9)
	assert.InDelta(t, 1.0, RuleScore(9), 1e-9)
	assert.InDelta(t, 0.0, RuleScore(-10), 1e-9)
}

func TestMatches_Operators(t *testing.T) {
	s := stmt("s1", "100.00", "Payroll Deposit ACME", "2025-01-15")
	s.Reference = "CHK-1001"
	b := book("b1", "100.004", "Salary from ACME", "2025-01-16")
	b.ReferenceID = "CHK-1001"
	b.Category = "Income"

	tests := []struct {
		name string
		cond model.RuleCondition
		want bool
	}{
		{name: "contains ignores case", cond: cond(model.FieldStatementDescription, model.OperatorContains, "payroll"), want: true},
		{name: "contains misses", cond: cond(model.FieldStatementDescription, model.OperatorContains, "rent"), want: false},
		{name: "equals literal", cond: cond(model.FieldBookCategory, model.OperatorEquals, "Income"), want: true},
		{name: "equals is exact", cond: cond(model.FieldBookCategory, model.OperatorEquals, "income"), want: false},
		{name: "equals amount literal", cond: cond(model.FieldStatementAmount, model.OperatorEquals, "100.00"), want: true},
		{name: "equals field reference", cond: cond(model.FieldStatementReference, model.OperatorEquals, model.FieldBookReference), want: true},
		{name: "amount equals literal", cond: cond(model.FieldStatementAmount, model.OperatorAmountEquals, "100"), want: true},
		{name: "amount equals field reference", cond: cond(model.FieldStatementAmount, model.OperatorAmountEquals, model.FieldBookAmount), want: true},
		{name: "amount equals outside tolerance", cond: cond(model.FieldStatementAmount, model.OperatorAmountEquals, "100.02"), want: false},
		{name: "amount equals not a number", cond: cond(model.FieldStatementAmount, model.OperatorAmountEquals, "lots"), want: false},
		{name: "similar within default drift", cond: cond(model.FieldBookDescription, model.OperatorSimilar, "Salary frm ACME"), want: true},
		{name: "similar with zero drift", cond: cond(model.FieldBookDescription, model.OperatorSimilar, "Salary frm ACME|0"), want: false},
		{name: "similar too far", cond: cond(model.FieldBookDescription, model.OperatorSimilar, "Office rent"), want: false},
		{name: "date equals", cond: cond(model.FieldStatementDate, model.OperatorEquals, "2025-01-15"), want: true},
		{name: "unknown operator", cond: cond(model.FieldStatementDescription, "regex", ".*"), want: false},
		{name: "unknown field", cond: cond("memo", model.OperatorContains, "acme"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(rule(1, "r", 0, tt.cond), s, b))
		})
	}
}

func TestMatches_MissingFieldFailsClosed(t *testing.T) {
	s := stmt("s1", "10.00", "Coffee", "2025-01-15")
	b := book("b1", "10.00", "Coffee", "2025-01-15")

	r := rule(1, "ref", 0, cond(model.FieldStatementReference, model.OperatorContains, "x"))
	assert.False(t, Matches(r, s, b))

	r = rule(1, "ref", 0, cond(model.FieldStatementReference, model.OperatorEquals, model.FieldBookReference))
	assert.False(t, Matches(r, s, b), "two empty references are not equal")
}

func TestMatches_NoConditionsNeverMatches(t *testing.T) {
	s := stmt("s1", "10.00", "Coffee", "2025-01-15")
	b := book("b1", "10.00", "Coffee", "2025-01-15")
	assert.False(t, Matches(rule(1, "empty", 9), s, b))
}

func TestMatches_AllConditionsRequired(t *testing.T) {
	s := stmt("s1", "25.00", "Netflix subscription", "2025-01-15")
	b := book("b1", "25.00", "Streaming", "2025-01-15")

	r := rule(1, "netflix", 1,
		cond(model.FieldStatementDescription, model.OperatorContains, "netflix"),
		cond(model.FieldStatementAmount, model.OperatorAmountEquals, model.FieldBookAmount),
	)
	assert.True(t, Matches(r, s, b))

	b.Amount = amount("26.00")
	assert.False(t, Matches(r, s, b))
}

func TestMatches_Idempotent(t *testing.T) {
	s := stmt("s1", "1500.00", "PAYROLL Deposit", "2025-01-31")
	b := book("b1", "1500.00", "Payroll", "2025-01-31")
	r := rule(3, "payroll", 5,
		cond(model.FieldStatementDescription, model.OperatorContains, "payroll"),
		cond(model.FieldBookDescription, model.OperatorSimilar, "payrol|20"),
	)
	sCopy, bCopy := s, b
	condsCopy := append([]model.RuleCondition(nil), r.Conditions...)

	first := Matches(r, s, b)
	second := Matches(r, s, b)

	assert.Equal(t, first, second)
	assert.Equal(t, sCopy, s)
	assert.Equal(t, bCopy, b)
	assert.Equal(t, condsCopy, r.Conditions)
}

func TestRuleEngine_PayrollRule(t *testing.T) {
	s := stmt("s1", "2500.00", "Payroll Deposit", "2025-01-31")
	b := book("b1", "2500.00", "January salary", "2025-01-31")

	engine := NewRuleEngine([]model.ReconciliationRule{
		rule(7, "payroll", 5, cond(model.FieldStatementDescription, model.OperatorContains, "payroll")),
	})
	candidates := engine.Candidates([]model.StatementTransaction{s}, []model.BookTransaction{b})

	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.InDelta(t, 1.0, c.Score, 1e-9)
	assert.Equal(t, model.ConfidenceManual, c.Confidence)
	assert.Equal(t, []model.Criterion{model.CriterionRuleMatch}, c.Criteria)
	require.NotNil(t, c.RuleID)
	assert.Equal(t, int64(7), *c.RuleID)
	assert.Equal(t, `Matched by rule "payroll"`, c.Reason)
}

func TestRuleEngine_PriorityAndInactive(t *testing.T) {
	low := rule(1, "low", 1, cond(model.FieldStatementDescription, model.OperatorContains, "acme"))
	high := rule(2, "high", 4, cond(model.FieldStatementDescription, model.OperatorContains, "acme"))
	off := rule(3, "off", 9, cond(model.FieldStatementDescription, model.OperatorContains, "acme"))
	off.IsActive = false

	engine := NewRuleEngine([]model.ReconciliationRule{low, off, high})

	require.Len(t, engine.Rules(), 2)
	assert.Equal(t, "high", engine.Rules()[0].Name)
	assert.Equal(t, "low", engine.Rules()[1].Name)

	candidates := engine.Candidates(
		[]model.StatementTransaction{stmt("s1", "10.00", "ACME Corp", "2025-01-01")},
		[]model.BookTransaction{book("b1", "10.00", "ACME", "2025-01-01")},
	)
	require.Len(t, candidates, 1, "a pair is credited to one rule")
	assert.Equal(t, int64(2), *candidates[0].RuleID)
	assert.InDelta(t, RuleScore(4), candidates[0].Score, 1e-9)
}

func TestRuleEngine_EqualPriorityKeepsInputOrder(t *testing.T) {
	first := rule(10, "first", 2, cond(model.FieldStatementDescription, model.OperatorContains, "x"))
	second := rule(11, "second", 2, cond(model.FieldStatementDescription, model.OperatorContains, "y"))

	engine := NewRuleEngine([]model.ReconciliationRule{first, second})
	assert.Equal(t, "first", engine.Rules()[0].Name)
	assert.Equal(t, "second", engine.Rules()[1].Name)
}

func TestRuleEngine_CandidateOrder(t *testing.T) {
	r := rule(1, "all coffee", 0, cond(model.FieldBookDescription, model.OperatorContains, "coffee"))
	statements := []model.StatementTransaction{
		stmt("s1", "3.00", "Cafe", "2025-01-01"),
		stmt("s2", "4.00", "Cafe", "2025-01-02"),
	}
	books := []model.BookTransaction{
		book("b1", "3.00", "Coffee", "2025-01-01"),
		book("b2", "4.00", "Coffee", "2025-01-02"),
	}

	candidates := NewRuleEngine([]model.ReconciliationRule{r}).Candidates(statements, books)

	require.Len(t, candidates, 4)
	got := make([]string, len(candidates))
	for i, c := range candidates {
		got[i] = c.StatementTransaction.ID + "/" + c.BookTransaction.ID
	}
	assert.Equal(t, []string{"s1/b1", "s1/b2", "s2/b1", "s2/b2"}, got)
}

func TestSplitDrift(t *testing.T) {
	tests := []struct {
		value     string
		wantText  string
		wantDrift float64
	}{
		{value: "amazon", wantText: "amazon", wantDrift: defaultSimilarDrift},
		{value: "amazon|10", wantText: "amazon", wantDrift: 10},
		{value: "a|b|35", wantText: "a|b", wantDrift: 35},
		{value: "amazon|lots", wantText: "amazon|lots", wantDrift: defaultSimilarDrift},
		{value: "amazon|-5", wantText: "amazon|-5", wantDrift: defaultSimilarDrift},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			text, drift := splitDrift(tt.value)
			assert.Equal(t, tt.wantText, text)
			assert.InDelta(t, tt.wantDrift, drift, 1e-9)
		})
	}
}

func TestValidateRule(t *testing.T) {
	valid := rule(0, "payroll", 5, cond(model.FieldStatementDescription, model.OperatorContains, "payroll"))

	tests := []struct {
		name    string
		mutate  func(r *model.ReconciliationRule)
		wantErr bool
	}{
		{name: "valid", mutate: func(*model.ReconciliationRule) {}},
		{name: "missing name", mutate: func(r *model.ReconciliationRule) { r.Name = "  " }, wantErr: true},
		{name: "no conditions", mutate: func(r *model.ReconciliationRule) { r.Conditions = nil }, wantErr: true},
		{name: "unknown field", mutate: func(r *model.ReconciliationRule) {
			r.Conditions = []model.RuleCondition{cond("memo", model.OperatorContains, "x")}
		}, wantErr: true},
		{name: "unknown operator", mutate: func(r *model.ReconciliationRule) {
			r.Conditions = []model.RuleCondition{cond(model.FieldBookID, "starts_with", "x")}
		}, wantErr: true},
		{name: "empty value", mutate: func(r *model.ReconciliationRule) {
			r.Conditions = []model.RuleCondition{cond(model.FieldBookID, model.OperatorEquals, "")}
		}, wantErr: true},
		{name: "bad amount", mutate: func(r *model.ReconciliationRule) {
			r.Conditions = []model.RuleCondition{cond(model.FieldBookAmount, model.OperatorAmountEquals, "ten")}
		}, wantErr: true},
		{name: "amount field reference", mutate: func(r *model.ReconciliationRule) {
			r.Conditions = []model.RuleCondition{cond(model.FieldBookAmount, model.OperatorAmountEquals, model.FieldStatementAmount)}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			r.Conditions = append([]model.RuleCondition(nil), valid.Conditions...)
			tt.mutate(&r)

			err := ValidateRule(r)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrInvalidRule)
				return
			}
			assert.NoError(t, err)
		})
	}
}
