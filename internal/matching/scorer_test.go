package matching

import (
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestScorer_AmazonPurchaseIsHighConfidence(t *testing.T) {
	s := stmt("s1", "100.00", "AMAZON.COM PURCHASE", "2025-01-15")
	b := book("b1", "100.00", "Amazon Purchase", "2025-01-15")

	sim := NewScorer().Score(s, b, neutral)

	assert.GreaterOrEqual(t, sim.Score, 0.8)
	assert.Equal(t, model.ConfidenceHigh, model.ConfidenceForScore(sim.Score))
	assert.InDelta(t, 0.4, sim.Breakdown.Amount, 1e-9)
	assert.InDelta(t, 0.3, sim.Breakdown.Date, 1e-9)
	assert.InDelta(t, 0.18, sim.Breakdown.Description, 1e-9)
	assert.Contains(t, sim.Criteria, model.CriterionExactAmount)
	assert.Contains(t, sim.Criteria, model.CriterionSameDate)
	assert.Contains(t, sim.Criteria, model.CriterionDescriptionSimilarity)
}

func TestScorer_FiveDayGapIsNotHigh(t *testing.T) {
	s := stmt("s1", "50.00", "GAS STATION", "2025-01-15")
	b := book("b1", "50.00", "Office supplies", "2025-01-20")

	sim := NewScorer().Score(s, b, neutral)

	assert.InDelta(t, 0.05, sim.Breakdown.Date, 1e-9)
	assert.InDelta(t, 0.4, sim.Breakdown.Amount, 1e-9)
	assert.NotEqual(t, model.ConfidenceHigh, model.ConfidenceForScore(sim.Score))
	assert.Contains(t, []model.MatchConfidence{model.ConfidenceMedium, model.ConfidenceLow}, model.ConfidenceForScore(sim.Score))
	assert.Contains(t, sim.Criteria, model.CriterionDateProximity)
}

func TestScorer_IdenticalTransactionsScoreAtLeastPointNine(t *testing.T) {
	s := stmt("s1", "42.17", "Monthly rent payment", "2025-03-01")
	b := book("b1", "42.17", "Monthly rent payment", "2025-03-01")

	for _, signals := range []StatementSignals{
		neutral,
		{CategoryKnown: true, PredictedCategory: "Utilities"},
		{HistoryKnown: true, HistoryRatio: 0},
	} {
		sim := NewScorer().Score(s, b, signals)
		assert.GreaterOrEqual(t, sim.Score, 0.9)
	}
}

func TestAmountScore(t *testing.T) {
	tests := []struct {
		diff string
		want float64
	}{
		{"0", 0.4},
		{"0.009", 0.4},
		{"0.01", 0.2 * 0.99},
		{"0.5", 0.1},
		{"0.99", 0.2 * 0.01},
		{"1", 0},
		{"25", 0},
	}
	for _, tt := range tests {
		t.Run(tt.diff, func(t *testing.T) {
			assert.InDelta(t, tt.want, amountScore(amount(tt.diff)), 1e-9)
		})
	}
}

func TestDateScore(t *testing.T) {
	base := day("2025-01-15")
	tests := []struct {
		other string
		want  float64
	}{
		{"2025-01-15", 0.3},
		{"2025-01-14", 0.25},
		{"2025-01-17", 0.15},
		{"2025-01-22", 0.05},
		{"2025-01-23", 0},
	}
	for _, tt := range tests {
		t.Run(tt.other, func(t *testing.T) {
			assert.InDelta(t, tt.want, dateScore(calendarDaysApart(base, day(tt.other))), 1e-9)
		})
	}
}

func TestCalendarDaysApart_IgnoresTimeOfDay(t *testing.T) {
	morning := day("2025-01-15").Add(time.Hour)
	night := day("2025-01-15").Add(23 * time.Hour)
	assert.Equal(t, 0, calendarDaysApart(morning, night))
	assert.Equal(t, 1, calendarDaysApart(night, day("2025-01-16")))
}

func TestScorer_Reference(t *testing.T) {
	s := stmt("s1", "10.00", "x", "2025-01-01")
	b := book("b1", "99.00", "y", "2025-03-01")

	s.Reference = "INV-42"
	b.ReferenceID = "inv-42"
	sim := NewScorer().Score(s, b, neutral)
	assert.InDelta(t, WeightReference, sim.Breakdown.Reference, 1e-9)
	assert.Contains(t, sim.Criteria, model.CriterionReferenceMatch)

	b.ReferenceID = "INV-43"
	sim = NewScorer().Score(s, b, neutral)
	assert.Zero(t, sim.Breakdown.Reference)
}

func TestScorer_CategorySignal(t *testing.T) {
	s := stmt("s1", "10.00", "Starbucks", "2025-01-01")
	b := book("b1", "10.00", "Coffee", "2025-01-01")
	b.Category = "Dining"

	tests := []struct {
		name    string
		signals StatementSignals
		want    float64
	}{
		{name: "unknown is neutral", signals: neutral, want: 0.025},
		{name: "match", signals: StatementSignals{CategoryKnown: true, PredictedCategory: "dining"}, want: 0.05},
		{name: "mismatch", signals: StatementSignals{CategoryKnown: true, PredictedCategory: "Travel"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewScorer().Score(s, b, tt.signals)
			assert.InDelta(t, tt.want, sim.Breakdown.Category, 1e-9)
		})
	}
}

func TestScorer_HistorySignal(t *testing.T) {
	s := stmt("s1", "10.00", "Starbucks", "2025-01-01")
	b := book("b1", "10.00", "Coffee", "2025-01-01")

	sim := NewScorer().Score(s, b, StatementSignals{HistoryKnown: true, HistoryRatio: 0.75})
	assert.InDelta(t, 0.0375, sim.Breakdown.History, 1e-9)
	assert.Contains(t, sim.Criteria, model.CriterionHistoricalPattern)

	sim = NewScorer().Score(s, b, neutral)
	assert.InDelta(t, 0.025, sim.Breakdown.History, 1e-9)
}

func TestScorer_ScoreIsClamped(t *testing.T) {
	s := stmt("s1", "10.00", "Starbucks coffee", "2025-01-01")
	b := book("b1", "10.00", "Starbucks coffee", "2025-01-01")
	s.Reference, b.ReferenceID, b.Category = "R1", "R1", "Dining"

	sim := NewScorer().Score(s, b, StatementSignals{
		CategoryKnown: true, PredictedCategory: "Dining",
		HistoryKnown: true, HistoryRatio: 1,
	})

	assert.InDelta(t, 1.1, sim.Breakdown.Sum(), 1e-9)
	assert.Equal(t, 1.0, sim.Score)
}

func TestScorer_Monotonic(t *testing.T) {
	scorer := NewScorer()
	base := book("b1", "100.00", "Hardware store", "2025-02-10")

	t.Run("amount", func(t *testing.T) {
		prev := -1.0
		for _, a := range []string{"150.00", "100.90", "100.50", "100.10", "100.00"} {
			score := scorer.Score(stmt("s", a, "Hardware store", "2025-02-10"), base, neutral).Score
			assert.GreaterOrEqual(t, score, prev, a)
			prev = score
		}
	})

	t.Run("date", func(t *testing.T) {
		prev := -1.0
		for _, d := range []string{"2025-03-10", "2025-02-16", "2025-02-12", "2025-02-11", "2025-02-10"} {
			score := scorer.Score(stmt("s", "100.00", "Hardware store", d), base, neutral).Score
			assert.GreaterOrEqual(t, score, prev, d)
			prev = score
		}
	})

	t.Run("description", func(t *testing.T) {
		prev := -1.0
		for _, desc := range []string{"pizza", "store", "hardware store", "Hardware store"} {
			score := scorer.Score(stmt("s", "100.00", desc, "2025-02-10"), base, neutral).Score
			assert.GreaterOrEqual(t, score, prev, desc)
			prev = score
		}
	})
}
