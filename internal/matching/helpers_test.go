package matching

import (
	"context"
	"errors"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func stmt(id, amt, desc, date string) model.StatementTransaction {
	return model.StatementTransaction{ID: id, Amount: amount(amt), Description: desc, Date: day(date)}
}

func book(id, amt, desc, date string) model.BookTransaction {
	return model.BookTransaction{ID: id, Amount: amount(amt), Description: desc, TransactionDate: day(date)}
}

type mockCategorizer struct {
	mock.Mock
}

func (m *mockCategorizer) Categorize(ctx context.Context, description string, amt decimal.Decimal, txnType model.TransactionType) (string, error) {
	args := m.Called(ctx, description, amt, txnType)
	return args.String(0), args.Error(1)
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) GetHistoricalMatches(ctx context.Context, substring string) ([]model.HistoricalMatch, error) {
	args := m.Called(ctx, substring)
	matches, _ := args.Get(0).([]model.HistoricalMatch)
	return matches, args.Error(1)
}

type failingExplainer struct{}

func (failingExplainer) Explain(context.Context, model.TransactionMatch) (string, error) {
	return "", errors.New("model unavailable")
}

var neutral = StatementSignals{}
