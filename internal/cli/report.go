package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Veraticus/the-spice-must-balance/internal/engine"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	dateFormat     = "2006-01-02"
	maxDescription = 32
)

// RenderSuggestion writes the matches, leftovers and insights of a run.
func RenderSuggestion(w io.Writer, s *model.MatchSuggestion) error {
	var b strings.Builder

	b.WriteString(FormatTitle(fmt.Sprintf("Matches (%d)", len(s.Matches))))
	b.WriteString("\n")

	if len(s.Matches) > 0 {
		b.WriteString(matchTable(s.Matches))
		b.WriteString("\n\n")

		for i, m := range s.Matches {
			if m.Explanation == "" {
				continue
			}
			fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render(fmt.Sprintf("%2d.", i+1)), m.Explanation)
		}
		b.WriteString("\n")
	}

	if len(s.UnmatchedStatements) > 0 {
		b.WriteString(BoldStyle.Render(fmt.Sprintf("Unmatched statement lines (%d)", len(s.UnmatchedStatements))))
		b.WriteString("\n")
		for _, st := range s.UnmatchedStatements {
			fmt.Fprintf(&b, "  %s  %10s  %s\n", st.Date.Format(dateFormat), st.Amount.StringFixed(2), st.Description)
		}
		b.WriteString("\n")
	}

	if len(s.UnmatchedBooks) > 0 {
		b.WriteString(BoldStyle.Render(fmt.Sprintf("Unmatched book transactions (%d)", len(s.UnmatchedBooks))))
		b.WriteString("\n")
		for _, bt := range s.UnmatchedBooks {
			fmt.Fprintf(&b, "  %s  %10s  %s\n", bt.TransactionDate.Format(dateFormat), bt.Amount.StringFixed(2), bt.Description)
		}
		b.WriteString("\n")
	}

	insights := make([]string, 0, len(s.Insights)+1)
	for _, line := range s.Insights {
		insights = append(insights, "• "+line)
	}
	insights = append(insights, fmt.Sprintf("Overall confidence: %.1f%%", s.Confidence))
	b.WriteString(RenderBox(ChartIcon+" Insights", strings.Join(insights, "\n")))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func matchTable(matches []model.TransactionMatch) string {
	rows := make([][]string, 0, len(matches))
	for i, m := range matches {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			m.StatementTransaction.Date.Format(dateFormat),
			truncate(m.StatementTransaction.Description, maxDescription),
			m.StatementTransaction.Amount.StringFixed(2),
			truncate(m.BookTransaction.Description, maxDescription),
			m.BookTransaction.Amount.StringFixed(2),
			fmt.Sprintf("%.2f", m.Score),
			string(m.Confidence),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtleStyle).
		Headers("#", "Date", "Statement", "Amount", "Book", "Amount", "Score", "Confidence").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return BoldStyle.Padding(0, 1)
			}
			if col == 7 && row >= 0 && row < len(matches) {
				return ConfidenceStyle(matches[row].Confidence).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		String()
}

// RenderMatchRecords lists stored matches with the IDs used by
// "matches reject".
func RenderMatchRecords(w io.Writer, records []model.MatchRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No matches stored"))
		return err
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.StatementDate.Format(dateFormat),
			truncate(r.StatementDescription, maxDescription),
			r.StatementAmount.StringFixed(2),
			string(r.Confidence),
			string(r.Status),
		})
	}

	out := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtleStyle).
		Headers("ID", "Date", "Statement", "Amount", "Confidence", "Status").
		Rows(rows...).
		String()
	_, err := fmt.Fprintln(w, out)
	return err
}

// RenderSessions lists reconciliation sessions.
func RenderSessions(w io.Writer, sessions []model.ReconciliationSession) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No reconciliation sessions"))
		return err
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.ID,
			s.AccountID,
			s.StartDate.Format(dateFormat) + " → " + s.EndDate.Format(dateFormat),
			s.StatementBalance.StringFixed(2),
			string(s.Status),
		})
	}

	out := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtleStyle).
		Headers("ID", "Account", "Period", "Balance", "Status").
		Rows(rows...).
		String()
	_, err := fmt.Fprintln(w, out)
	return err
}

// RenderRules lists reconciliation rules with their conditions.
func RenderRules(w io.Writer, rules []model.ReconciliationRule) error {
	if len(rules) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No reconciliation rules"))
		return err
	}

	var b strings.Builder
	for _, r := range rules {
		status := SuccessStyle.Render("active")
		if !r.IsActive {
			status = SubtleStyle.Render("inactive")
		}
		fmt.Fprintf(&b, "%s %s  priority %d  used %d×  %s\n",
			BoldStyle.Render(fmt.Sprintf("#%d", r.ID)), r.Name, r.Priority, r.TimesUsed, status)
		for _, c := range r.Conditions {
			fmt.Fprintf(&b, "    %s %s %q\n", c.Field, c.Operator, c.Value)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderSummary writes a session summary box.
func RenderSummary(w io.Writer, title string, s *engine.SessionSummary) error {
	lines := []string{
		fmt.Sprintf("Session: %s", s.SessionID),
		fmt.Sprintf("Matched: %d (%s)", s.Matched, s.MatchedAmount.StringFixed(2)),
		fmt.Sprintf("Rejected: %d", s.Rejected),
		fmt.Sprintf("Statement balance: %s", s.StatementBalance.StringFixed(2)),
	}
	for _, c := range []model.MatchConfidence{model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow} {
		if n := s.ByConfidence[c]; n > 0 {
			lines = append(lines, ConfidenceStyle(c).Render(fmt.Sprintf("  %s: %d", c, n)))
		}
	}
	if !s.CompletedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Completed: %s", s.CompletedAt.Format("2006-01-02 15:04")))
	}

	_, err := fmt.Fprintln(w, RenderBox(title, strings.Join(lines, "\n")))
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
