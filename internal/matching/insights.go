package matching

import (
	"fmt"
	"math"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

// BuildInsights summarises a matching run as human-readable lines.
func BuildInsights(matches []model.TransactionMatch, statements []model.StatementTransaction) []string {
	counts := countTiers(matches)

	insights := []string{
		fmt.Sprintf("Found %d matches out of %d statement transactions", len(matches), len(statements)),
	}

	if counts.high > 0 {
		insights = append(insights,
			fmt.Sprintf("%d high-confidence %s can be auto-accepted", counts.high, plural(counts.high, "match", "matches")))
	}
	if counts.medium > 0 {
		insights = append(insights,
			fmt.Sprintf("%d medium-confidence %s need manual review", counts.medium, plural(counts.medium, "match", "matches")))
	}

	if unmatched := len(statements) - len(matches); unmatched > 0 {
		insights = append(insights,
			fmt.Sprintf("%d statement %s unmatched and may need manual entry", unmatched, plural(unmatched, "transaction is", "transactions are")))
	}

	discrepancies := 0
	for _, m := range matches {
		if m.AmountDifference().GreaterThan(exactAmountTolerance) {
			discrepancies++
		}
	}
	if discrepancies > 0 {
		insights = append(insights,
			fmt.Sprintf("%d %s amount discrepancies that may need adjustment", discrepancies, plural(discrepancies, "match has", "matches have")))
	}

	return insights
}

// OverallConfidence blends the average score with a tier-weighted score and
// returns a value in [0,100].
func OverallConfidence(matches []model.TransactionMatch) float64 {
	if len(matches) == 0 {
		return 0
	}

	var total float64
	for _, m := range matches {
		total += m.Score
	}
	avg := total / float64(len(matches))

	counts := countTiers(matches)
	weighted := (float64(counts.high)*1.0 + float64(counts.medium)*0.7 + float64(counts.low)*0.4) / float64(len(matches))

	return clamp(math.Min(100, (avg*0.6+weighted*0.4)*100), 0, 100)
}

type tierCounts struct {
	high, medium, low, manual int
}

func countTiers(matches []model.TransactionMatch) tierCounts {
	var c tierCounts
	for _, m := range matches {
		switch m.Confidence {
		case model.ConfidenceHigh:
			c.high++
		case model.ConfidenceMedium:
			c.medium++
		case model.ConfidenceLow:
			c.low++
		case model.ConfidenceManual:
			c.manual++
		}
	}
	return c
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
