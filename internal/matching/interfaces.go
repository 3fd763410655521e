// Package matching implements statement-to-ledger reconciliation matching:
// similarity scoring, rule evaluation, candidate assembly, one-to-one
// assignment and run insights.
package matching

import (
	"context"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/shopspring/decimal"
)

// Categorizer predicts a ledger category from a statement description.
// Failures are treated as a neutral signal.
type Categorizer interface {
	Categorize(ctx context.Context, description string, amount decimal.Decimal, txnType model.TransactionType) (string, error)
}
