package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
)

func ptr[T any](v T) *T { return &v }

func TestRuleEditor_PropagatesToEntries(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rule := createRule(t, repo, core.RecurringRule{
		UnitPrice:       price("10"),
		DefaultQuantity: price("1"),
		Frequency:       core.Monthly,
		Category:        "Home",
		StartDate:       core.NewDate(2024, 1, 5),
		Creator:         "alice",
	})
	_, err := NewMaterializer(repo, nil).GenerateDue(ctx, core.NewDate(2024, 3, 10))
	require.NoError(t, err)

	pub := &recordingPublisher{}
	updated, err := NewRuleEditor(repo, pub).Edit(ctx, rule.ID, core.RuleEdit{
		Title:           ptr("  Rent  "),
		UnitPrice:       ptr(decimal.RequireFromString("12.5")),
		DefaultQuantity: ptr(decimal.NewFromInt(2)),
		Category:        ptr("Housing"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Rent", updated.Title)
	assert.Equal(t, "2024-03-05", updated.LastGeneratedDate.String())

	entries, err := repo.ListEntriesByRule(ctx, rule.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "Rent", e.Title)
		assert.Equal(t, "Housing", e.Category)
		assert.Equal(t, "25", e.Amount.String())
		assert.Equal(t, "alice", e.Payer)
	}
	assert.Equal(t, []string{"2024-01-05", "2024-02-05", "2024-03-05"}, entryDates(t, repo, rule.ID))

	events := pub.ofType(amqp.RuleUpdated)
	require.Len(t, events, 3, "one event per touched month")
	assert.Equal(t, "2024-01-01", events[0].Date.String())
}

func TestRuleEditor_PreservesManualAmountsWithoutPrice(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rule := createRule(t, repo, core.RecurringRule{Frequency: core.Daily, StartDate: core.NewDate(2024, 1, 1)})

	_, err := repo.CreateEntry(ctx, core.Entry{
		Date:        core.NewDate(2024, 1, 1),
		Title:       "Milk",
		Amount:      decimal.RequireFromString("7.5"),
		Payer:       "alice",
		RecurringID: rule.ID,
	})
	require.NoError(t, err)

	_, err = NewRuleEditor(repo, nil).Edit(ctx, rule.ID, core.RuleEdit{Title: ptr("Oat milk")})
	require.NoError(t, err)

	entries, err := repo.ListEntriesByRule(ctx, rule.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Oat milk", entries[0].Title)
	assert.Equal(t, "7.5", entries[0].Amount.String(), "no price on rule or entry, amount kept")
}

func TestRuleEditor_RealignsWatermark(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rule := createRule(t, repo, core.RecurringRule{Frequency: core.Daily, StartDate: core.NewDate(2024, 1, 1)})
	m := NewMaterializer(repo, nil)
	editor := NewRuleEditor(repo, nil)

	_, err := m.GenerateDue(ctx, core.NewDate(2024, 1, 4))
	require.NoError(t, err)

	entries, err := repo.ListEntriesByRule(ctx, rule.ID)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteEntry(ctx, entries[3].ID))
	require.NoError(t, repo.DeleteEntry(ctx, entries[2].ID))

	updated, err := editor.Edit(ctx, rule.ID, core.RuleEdit{})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", updated.LastGeneratedDate.String())

	n, err := m.GenerateDue(ctx, core.NewDate(2024, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, 2, n, "occurrences after the realigned watermark come back")

	_, err = repo.DeleteEntriesByRule(ctx, rule.ID)
	require.NoError(t, err)
	updated, err = editor.Edit(ctx, rule.ID, core.RuleEdit{})
	require.NoError(t, err)
	assert.True(t, updated.LastGeneratedDate.IsZero())

	got, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, got.LastGeneratedDate.IsZero())
}

func TestRuleEditor_RejectsInvalidEdit(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rule := createRule(t, repo, core.RecurringRule{Frequency: core.Daily, StartDate: core.NewDate(2024, 1, 1)})
	_, err := NewMaterializer(repo, nil).GenerateDue(ctx, core.NewDate(2024, 1, 2))
	require.NoError(t, err)

	editor := NewRuleEditor(repo, nil)

	tests := []struct {
		name string
		edit core.RuleEdit
	}{
		{"blank title", core.RuleEdit{Title: ptr("   ")}},
		{"negative price", core.RuleEdit{UnitPrice: ptr(decimal.NewFromInt(-1))}},
		{"end before start", core.RuleEdit{EndDate: ptr(core.NewDate(2023, 12, 31))}},
		{"unknown frequency", core.RuleEdit{Frequency: ptr(core.Frequency("hourly"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := editor.Edit(ctx, rule.ID, tt.edit)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}

	got, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Milk", got.Title)
	assert.Equal(t, "2024-01-02", got.LastGeneratedDate.String())
}

func TestRuleEditor_NotFound(t *testing.T) {
	_, err := NewRuleEditor(newTestRepo(t), nil).Edit(context.Background(), 42, core.RuleEdit{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}
