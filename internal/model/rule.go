package model

import (
	"time"
)

// RuleOperator is the comparison applied by a rule condition.
type RuleOperator string

// Supported rule operators.
const (
	OperatorEquals       RuleOperator = "equals"
	OperatorContains     RuleOperator = "contains"
	OperatorAmountEquals RuleOperator = "amount_equals"
	OperatorSimilar      RuleOperator = "similar"
)

// Rule condition fields. Statement fields read from the statement side of a
// pair and book fields from the ledger side.
const (
	FieldStatementID          = "statement_id"
	FieldStatementAmount      = "statement_amount"
	FieldStatementDescription = "statement_description"
	FieldStatementReference   = "statement_reference"
	FieldStatementDate        = "statement_date"
	FieldBookID               = "book_id"
	FieldBookAmount           = "book_amount"
	FieldBookDescription      = "book_description"
	FieldBookReference        = "book_reference"
	FieldBookDate             = "book_date"
	FieldBookCategory         = "book_category"
)

// RuleFields lists every field a condition may reference.
var RuleFields = []string{
	FieldStatementID,
	FieldStatementAmount,
	FieldStatementDescription,
	FieldStatementReference,
	FieldStatementDate,
	FieldBookID,
	FieldBookAmount,
	FieldBookDescription,
	FieldBookReference,
	FieldBookDate,
	FieldBookCategory,
}

// IsRuleField reports whether name is a known condition field.
func IsRuleField(name string) bool {
	for _, f := range RuleFields {
		if f == name {
			return true
		}
	}
	return false
}

// RuleCondition is a single field/operator/value test.
type RuleCondition struct {
	Field    string       `json:"field"`
	Operator RuleOperator `json:"operator"`
	Value    string       `json:"value"`
}

// ReconciliationRule is a user-authored declarative matching rule.
// Higher priority rules win when several rules match the same pair.
type ReconciliationRule struct {
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	LastUsedAt  *time.Time      `json:"last_used_at,omitempty"`
	UserID      string          `json:"user_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Conditions  []RuleCondition `json:"conditions"`
	ID          int64           `json:"id"`
	Priority    int             `json:"priority"`
	TimesUsed   int             `json:"times_used"`
	IsActive    bool            `json:"is_active"`
}
