package matching

import (
	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

// scoreFunc scores one statement/book pair.
type scoreFunc func(stmt model.StatementTransaction, book model.BookTransaction) Similarity

// assembleCandidates merges rule candidates with one best similarity
// candidate for every statement no rule claimed. Rule candidates are first
// reduced to a one-to-one set in priority order; only those winners claim
// their statement and book. Books claimed by rules are not offered to
// similarity matching; conflicts between similarity candidates are left
// for the optimizer.
func assembleCandidates(
	ruleCandidates []model.TransactionMatch,
	statements []model.StatementTransaction,
	books []model.BookTransaction,
	score scoreFunc,
	minScore float64,
	progress func(done, total int),
) []model.TransactionMatch {
	claimedStatements := make(map[string]bool, len(statements))
	claimedBooks := make(map[string]bool, len(books))

	candidates := make([]model.TransactionMatch, 0, len(ruleCandidates)+len(statements))
	for _, c := range Optimize(ruleCandidates) {
		candidates = append(candidates, c)
		claimedStatements[c.StatementTransaction.ID] = true
		claimedBooks[c.BookTransaction.ID] = true
	}

	for i, stmt := range statements {
		if progress != nil {
			progress(i+1, len(statements))
		}
		if claimedStatements[stmt.ID] {
			continue
		}
		claimedStatements[stmt.ID] = true

		var (
			best     Similarity
			bestBook model.BookTransaction
			found    bool
		)
		for _, book := range books {
			if claimedBooks[book.ID] {
				continue
			}
			sim := score(stmt, book)
			if sim.Score <= minScore {
				continue
			}
			if !found || sim.Score > best.Score {
				best, bestBook, found = sim, book, true
			}
		}
		if !found {
			continue
		}

		candidates = append(candidates, model.TransactionMatch{
			StatementTransaction: stmt,
			BookTransaction:      bestBook,
			Score:                best.Score,
			Confidence:           model.ConfidenceForScore(best.Score),
			Reason:               describeCriteria(best.Criteria),
			Criteria:             best.Criteria,
		})
	}

	return candidates
}
