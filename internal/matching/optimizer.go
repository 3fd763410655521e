package matching

import (
	"sort"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

// Optimize reduces candidates to a one-to-one assignment by taking the
// highest scores first. Equal scores keep their candidate order. The result
// is deterministic for a given input order but not guaranteed optimal.
func Optimize(candidates []model.TransactionMatch) []model.TransactionMatch {
	ordered := make([]model.TransactionMatch, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	usedStatements := make(map[string]bool, len(ordered))
	usedBooks := make(map[string]bool, len(ordered))

	selected := make([]model.TransactionMatch, 0, len(ordered))
	for _, c := range ordered {
		if usedStatements[c.StatementTransaction.ID] || usedBooks[c.BookTransaction.ID] {
			continue
		}
		usedStatements[c.StatementTransaction.ID] = true
		usedBooks[c.BookTransaction.ID] = true
		selected = append(selected, c)
	}
	return selected
}
