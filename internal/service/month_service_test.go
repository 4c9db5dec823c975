package service

import (
	"context"
	"testing"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMonthService(h *harness) *MonthService {
	svc := NewMonthService(h.budgets, h.months, h.tracker, h.cascade, h.locker, zerolog.Nop())
	svc.SetEventPublisher(h.events)
	return svc
}

func TestMonthService_GetMonthBalances_RecalculatesStaleMonth(t *testing.T) {
	h := newHarness(t)
	seedChain(t, h)
	svc := newMonthService(h)

	month, err := svc.GetMonthBalances(context.Background(), testBudgetID, feb)

	require.NoError(t, err)
	assert.Equal(t, "900.00", accountEnd(t, month, "checking"))
	assert.Equal(t, "-100.00", categoryEnd(t, month, "food"))
	assert.Empty(t, h.budget(t).DirtyMonths())
}

func TestMonthService_GetMonthBalances_CleanMonthIsNotRecalculated(t *testing.T) {
	h := newHarness(t)
	seedChain(t, h)
	recalculated(t, h, RecalcOptions{})
	svc := newMonthService(h)
	writes := h.store.Writes

	month, err := svc.GetMonthBalances(context.Background(), testBudgetID, mar)

	require.NoError(t, err)
	assert.Equal(t, "850.00", accountEnd(t, month, "checking"))
	assert.Equal(t, writes, h.store.Writes)
}

func TestMonthService_GetMonthBalances_AdoptsUnindexedRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := domain.NewMonthRecord(testBudgetID, mar)
	m.SetTransactions(domain.MonthTransactions{Income: []domain.Income{income(mar, "i1", "savings", "40")}})
	_, err := h.months.SaveTransactions(ctx, m)
	require.NoError(t, err)
	svc := newMonthService(h)

	month, err := svc.GetMonthBalances(ctx, testBudgetID, mar)

	require.NoError(t, err)
	assert.Equal(t, "40.00", accountEnd(t, month, "savings"))
	assert.Equal(t, []domain.YearMonth{mar}, h.budget(t).ExistingMonths())
}

func TestMonthService_GetMonthBalances_MissingMonth(t *testing.T) {
	h := newHarness(t)
	svc := newMonthService(h)

	_, err := svc.GetMonthBalances(context.Background(), testBudgetID, mar)
	assert.ErrorIs(t, err, domain.ErrMonthNotFound)

	_, err = svc.GetMonthBalances(context.Background(), "no-such-budget", mar)
	assert.ErrorIs(t, err, domain.ErrBudgetNotFound)
}

func TestMonthService_ListMonths(t *testing.T) {
	h := newHarness(t)
	seedChain(t, h)
	recalculated(t, h, RecalcOptions{})
	_, err := h.tracker.MarkMonths(context.Background(), testBudgetID, mar)
	require.NoError(t, err)
	svc := newMonthService(h)

	months, err := svc.ListMonths(context.Background(), testBudgetID)

	require.NoError(t, err)
	require.Len(t, months, 4)
	assert.Equal(t, "2024-01", months[0].Key)
	assert.False(t, months[0].NeedsRecalc)
	assert.True(t, months[2].NeedsRecalc)
	assert.False(t, months[3].NeedsRecalc)
}

func TestMonthService_MarkDirtyFrom(t *testing.T) {
	h := newHarness(t)
	seedChain(t, h)
	recalculated(t, h, RecalcOptions{})
	svc := newMonthService(h)

	require.NoError(t, svc.MarkDirtyFrom(context.Background(), testBudgetID, feb))

	assert.Equal(t, []domain.YearMonth{feb, mar, apr}, h.budget(t).DirtyMonths())
	assert.Contains(t, h.events.Types(testBudgetID), "month.dirty")
}

func TestMonthService_DeleteMonthsAfter(t *testing.T) {
	h := newHarness(t)
	seedChain(t, h)
	recalculated(t, h, RecalcOptions{})
	svc := newMonthService(h)

	removed, err := svc.DeleteMonthsAfter(context.Background(), testBudgetID, feb)

	require.NoError(t, err)
	assert.Equal(t, []domain.YearMonth{mar, apr}, removed)
	assert.Equal(t, []domain.YearMonth{jan, feb}, h.budget(t).ExistingMonths())
	assert.Equal(t, 2, h.store.Count(domain.CollectionMonths))

	b := h.budget(t)
	assert.Equal(t, "900.00", b.Accounts["checking"].Balance.StringFixed(2))
	assert.True(t, b.Categories["rent"].Balance.IsZero())
}

func TestMonthService_DeleteMonthsAfter_NothingToDelete(t *testing.T) {
	h := newHarness(t)
	seedChain(t, h)
	svc := newMonthService(h)

	removed, err := svc.DeleteMonthsAfter(context.Background(), testBudgetID, apr)

	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, 4, h.store.Count(domain.CollectionMonths))
}

func TestMonthService_GetMonthBalances_RecalculatesBehindEarlierDirtyMonth(t *testing.T) {
	h := newHarness(t)
	seedChain(t, h)
	recalculated(t, h, RecalcOptions{})
	alloc := newAllocationService(h)
	ctx := context.Background()
	_, err := alloc.SaveDraft(ctx, testBudgetID, feb, amounts("food", "200"))
	require.NoError(t, err)
	_, err = alloc.Finalize(ctx, testBudgetID, feb)
	require.NoError(t, err)
	// April itself is clean; only March carries the flag
	require.Equal(t, []domain.YearMonth{mar}, h.budget(t).DirtyMonths())

	month, err := newMonthService(h).GetMonthBalances(ctx, testBudgetID, apr)

	require.NoError(t, err)
	food, _ := month.CategoryBalance("food")
	assert.Equal(t, "100.00", food.StartBalance.StringFixed(2))
	assert.Equal(t, "100.00", food.EndBalance.StringFixed(2))
	assert.Empty(t, h.budget(t).DirtyMonths())
}

func TestMonthService_GetMonthBalances_SeesFlagsFromAnotherInstance(t *testing.T) {
	h := newHarness(t)
	seedChain(t, h)
	recalculated(t, h, RecalcOptions{})
	svc := newMonthService(h)
	ctx := context.Background()
	_, err := svc.GetMonthBalances(ctx, testBudgetID, mar)
	require.NoError(t, err)

	// Another process edits February and flags it behind this instance's cache
	other := newHarnessOver(t, h)
	other.setTransactions(t, feb, domain.MonthTransactions{Expenses: []domain.Expense{expense(feb, "e1", "checking", "food", "300")}})
	_, err = other.tracker.MarkDirty(ctx, testBudgetID, feb)
	require.NoError(t, err)

	month, err := svc.GetMonthBalances(ctx, testBudgetID, mar)

	require.NoError(t, err)
	assert.Equal(t, "650.00", accountEnd(t, month, "checking"))
	assert.Equal(t, "-300.00", categoryEnd(t, month, "food"))
	assert.Empty(t, h.budget(t).DirtyMonths())
}
