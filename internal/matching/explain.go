package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

// Explainer produces a narrative explanation for a final match.
type Explainer interface {
	Explain(ctx context.Context, match model.TransactionMatch) (string, error)
}

// TemplateExplainer builds explanations from the match data alone.
type TemplateExplainer struct{}

// Explain never fails.
func (TemplateExplainer) Explain(_ context.Context, match model.TransactionMatch) (string, error) {
	return ExplainMatch(match), nil
}

// ExplainMatch renders the deterministic explanation for a match.
func ExplainMatch(match model.TransactionMatch) string {
	var b strings.Builder

	if match.RuleID != nil {
		fmt.Fprintf(&b, "%s. Rule matches are applied with manual confidence (%.0f%%).", match.Reason, match.Score*100)
	} else {
		fmt.Fprintf(&b, "%s confidence match (%.0f%%)", titleCase(string(match.Confidence)), match.Score*100)
		if len(match.Criteria) > 0 {
			fmt.Fprintf(&b, " based on %s", strings.ToLower(joinCriteria(match.Criteria)))
		}
		b.WriteString(".")
	}

	if diff := match.AmountDifference(); diff.GreaterThan(exactAmountTolerance) {
		fmt.Fprintf(&b, " Amounts differ by %s.", diff.StringFixed(2))
	}

	return b.String()
}

// describeCriteria is the short reason stored on a similarity match.
func describeCriteria(criteria []model.Criterion) string {
	if len(criteria) == 0 {
		return "Weak similarity"
	}
	return joinCriteria(criteria)
}

func joinCriteria(criteria []model.Criterion) string {
	labels := make([]string, len(criteria))
	for i, c := range criteria {
		labels[i] = c.String()
	}
	return strings.Join(labels, ", ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
