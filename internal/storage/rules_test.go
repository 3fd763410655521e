package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/common"
	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRule(name string, priority int, active bool) *model.ReconciliationRule {
	return &model.ReconciliationRule{
		UserID:   "user-1",
		Name:     name,
		Priority: priority,
		IsActive: active,
		Conditions: []model.RuleCondition{
			{Field: model.FieldStatementDescription, Operator: model.OperatorContains, Value: "payroll"},
			{Field: model.FieldStatementAmount, Operator: model.OperatorAmountEquals, Value: model.FieldBookAmount},
		},
	}
}

func TestRules_CreateAndGet(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := testRule("payroll", 5, true)
	require.NoError(t, store.CreateRule(ctx, rule))
	assert.NotZero(t, rule.ID)

	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "payroll", got.Name)
	assert.Equal(t, 5, got.Priority)
	assert.True(t, got.IsActive)
	assert.Equal(t, rule.Conditions, got.Conditions)
	assert.Nil(t, got.LastUsedAt)

	_, err = store.GetRule(ctx, 9999)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRules_ActiveOrdering(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	for _, r := range []*model.ReconciliationRule{
		testRule("low", 1, true),
		testRule("disabled", 9, false),
		testRule("high", 4, true),
		testRule("also-high", 4, true),
	} {
		require.NoError(t, store.CreateRule(ctx, r))
	}
	foreign := testRule("foreign", 10, true)
	foreign.UserID = "user-2"
	require.NoError(t, store.CreateRule(ctx, foreign))

	rules, err := store.GetActiveRules(ctx, "user-1")
	require.NoError(t, err)

	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"high", "also-high", "low"}, names)
}

func TestRules_UsageAndDelete(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rule := testRule("payroll", 5, true)
	require.NoError(t, store.CreateRule(ctx, rule))

	usedAt := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordRuleUsage(ctx, rule.ID, usedAt))
	require.NoError(t, store.RecordRuleUsage(ctx, rule.ID, usedAt))

	got, err := store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TimesUsed)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, got.LastUsedAt.Equal(usedAt))

	require.NoError(t, store.DeleteRule(ctx, rule.ID))
	assert.ErrorIs(t, store.DeleteRule(ctx, rule.ID), common.ErrNotFound)
	assert.ErrorIs(t, store.RecordRuleUsage(ctx, rule.ID, usedAt), common.ErrNotFound)
}
