package matching

import (
	"math"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/shopspring/decimal"
)

// Dimension weights. They sum to 1.1; the total is clamped to 1.
const (
	WeightAmount      = 0.4
	WeightDate        = 0.3
	WeightDescription = 0.2
	WeightReference   = 0.1
	WeightCategory    = 0.05
	WeightHistory     = 0.05

	// neutralShare is the fraction of a weight awarded when a signal is unavailable.
	neutralShare = 0.5
)

var (
	exactAmountTolerance = decimal.NewFromFloat(0.01)
	partialAmountLimit   = decimal.NewFromInt(1)
)

// StatementSignals carries the per-statement external signals gathered
// before pair scoring.
type StatementSignals struct {
	PredictedCategory string
	HistoryRatio      float64
	CategoryKnown     bool
	HistoryKnown      bool
}

// Breakdown is the contribution of each dimension to a similarity score.
type Breakdown struct {
	Amount      float64
	Date        float64
	Description float64
	Reference   float64
	Category    float64
	History     float64
}

// Sum adds every dimension without clamping.
func (b Breakdown) Sum() float64 {
	return b.Amount + b.Date + b.Description + b.Reference + b.Category + b.History
}

// Similarity is the result of scoring one pair.
type Similarity struct {
	Criteria  []model.Criterion
	Breakdown Breakdown
	Score     float64
}

// Scorer computes weighted similarity between a statement and a book
// transaction. It has no side effects.
type Scorer struct{}

// NewScorer creates a similarity scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score rates how well book explains stmt. The result is always in [0,1].
func (s *Scorer) Score(stmt model.StatementTransaction, book model.BookTransaction, signals StatementSignals) Similarity {
	var (
		b        Breakdown
		criteria []model.Criterion
	)

	amountDiff := stmt.Amount.Sub(book.Amount).Abs()
	b.Amount = amountScore(amountDiff)
	switch {
	case amountDiff.LessThan(exactAmountTolerance):
		criteria = append(criteria, model.CriterionExactAmount)
	case b.Amount > 0:
		criteria = append(criteria, model.CriterionAmountProximity)
	}

	days := calendarDaysApart(stmt.Date, book.TransactionDate)
	b.Date = dateScore(days)
	switch {
	case days == 0:
		criteria = append(criteria, model.CriterionSameDate)
	case b.Date > 0:
		criteria = append(criteria, model.CriterionDateProximity)
	}

	similarity := descriptionSimilarity(stmt.Description, book.Description)
	b.Description = WeightDescription * similarity
	if similarity > 0.5 {
		criteria = append(criteria, model.CriterionDescriptionSimilarity)
	}

	if stmt.Reference != "" && book.ReferenceID != "" && strings.EqualFold(stmt.Reference, book.ReferenceID) {
		b.Reference = WeightReference
		criteria = append(criteria, model.CriterionReferenceMatch)
	}

	switch {
	case !signals.CategoryKnown:
		b.Category = WeightCategory * neutralShare
	case book.Category != "" && strings.EqualFold(signals.PredictedCategory, book.Category):
		b.Category = WeightCategory
		criteria = append(criteria, model.CriterionCategoryMatch)
	}

	if signals.HistoryKnown {
		b.History = WeightHistory * signals.HistoryRatio
		if signals.HistoryRatio >= 0.5 {
			criteria = append(criteria, model.CriterionHistoricalPattern)
		}
	} else {
		b.History = WeightHistory * neutralShare
	}

	return Similarity{
		Score:     clamp(b.Sum(), 0, 1),
		Breakdown: b,
		Criteria:  criteria,
	}
}

// amountScore gives full weight below one cent and partial credit for
// differences under one unit.
func amountScore(diff decimal.Decimal) float64 {
	if diff.LessThan(exactAmountTolerance) {
		return WeightAmount
	}
	if diff.LessThan(partialAmountLimit) {
		return 0.2 * (1 - diff.InexactFloat64())
	}
	return 0
}

func dateScore(days int) float64 {
	switch {
	case days == 0:
		return WeightDate
	case days <= 1:
		return 0.25
	case days <= 2:
		return 0.15
	case days <= 7:
		return 0.05
	default:
		return 0
	}
}

// calendarDaysApart compares the calendar dates of a and b as given, without
// converting either to another zone.
func calendarDaysApart(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(math.Round(da.Sub(db).Hours() / 24))
	if days < 0 {
		return -days
	}
	return days
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
