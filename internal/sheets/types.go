package sheets

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

// Report is one matching run prepared for export.
type Report struct {
	GeneratedAt time.Time
	Suggestion  *model.MatchSuggestion
	Period      DateRange
	SessionID   string
	AccountID   string
}

// DateRange represents the time period covered by the report.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Section titles; applyFormatting bolds these rows.
const (
	sectionSummary    = "Summary"
	sectionInsights   = "Insights"
	sectionMatches    = "Proposed Matches"
	sectionStatements = "Unmatched Statement Transactions"
	sectionBooks      = "Unmatched Book Transactions"
)

// rows lays the report out as a single sheet of sections.
func (r Report) rows() [][]any {
	s := r.Suggestion
	if s == nil {
		s = &model.MatchSuggestion{}
	}

	values := make([][]any, 0, 16+len(s.Insights)+len(s.Matches)+len(s.UnmatchedStatements)+len(s.UnmatchedBooks))

	values = append(values,
		[]any{
			"Reconciliation Report",
			fmt.Sprintf("%s - %s", r.Period.Start.Format("Jan 2, 2006"), r.Period.End.Format("Jan 2, 2006")),
		},
		[]any{},
		[]any{sectionSummary},
		[]any{"Session", r.SessionID},
		[]any{"Account", r.AccountID},
		[]any{"Generated", r.GeneratedAt.Format(time.RFC3339)},
		[]any{"Overall Confidence", fmt.Sprintf("%.1f%%", s.Confidence)},
		[]any{"Matches", len(s.Matches)},
		[]any{"Unmatched Statement Transactions", len(s.UnmatchedStatements)},
		[]any{"Unmatched Book Transactions", len(s.UnmatchedBooks)},
		[]any{},
		[]any{sectionInsights},
	)

	for _, insight := range s.Insights {
		values = append(values, []any{insight})
	}

	values = append(values,
		[]any{},
		[]any{sectionMatches},
		[]any{
			"Statement Date", "Statement Description", "Statement Amount",
			"Book Date", "Book Description", "Book Amount",
			"Score", "Confidence", "Reason", "Explanation",
		},
	)
	for _, m := range s.Matches {
		values = append(values, []any{
			m.StatementTransaction.Date.Format("2006-01-02"),
			m.StatementTransaction.Description,
			m.StatementTransaction.Amount.InexactFloat64(),
			m.BookTransaction.TransactionDate.Format("2006-01-02"),
			m.BookTransaction.Description,
			m.BookTransaction.Amount.InexactFloat64(),
			fmt.Sprintf("%.2f", m.Score),
			string(m.Confidence),
			m.Reason,
			m.Explanation,
		})
	}

	values = append(values,
		[]any{},
		[]any{sectionStatements},
		[]any{"Date", "Description", "Amount", "Reference", "ID"},
	)
	for _, stmt := range s.UnmatchedStatements {
		values = append(values, []any{
			stmt.Date.Format("2006-01-02"),
			stmt.Description,
			stmt.Amount.InexactFloat64(),
			stmt.Reference,
			stmt.ID,
		})
	}

	values = append(values,
		[]any{},
		[]any{sectionBooks},
		[]any{"Date", "Description", "Amount", "Reference", "ID"},
	)
	for _, book := range s.UnmatchedBooks {
		values = append(values, []any{
			book.TransactionDate.Format("2006-01-02"),
			book.Description,
			book.Amount.InexactFloat64(),
			book.ReferenceID,
			book.ID,
		})
	}

	return values
}

// sectionRows returns the indexes of section title rows.
func sectionRows(values [][]any) []int {
	var idx []int
	for i, row := range values {
		if len(row) != 1 {
			continue
		}
		switch row[0] {
		case sectionSummary, sectionInsights, sectionMatches, sectionStatements, sectionBooks:
			idx = append(idx, i)
		}
	}
	return idx
}
