package service

import (
	"context"
	"testing"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/cache"
	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/repository/document"
	"github.com/dafibh/envelope/envelope-backend/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testBudgetID = "budget-1"

var (
	jan = domain.YearMonth{Year: 2024, Month: 1}
	feb = domain.YearMonth{Year: 2024, Month: 2}
	mar = domain.YearMonth{Year: 2024, Month: 3}
	apr = domain.YearMonth{Year: 2024, Month: 4}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(ym domain.YearMonth, d int) time.Time {
	return time.Date(ym.Year, time.Month(ym.Month), d, 0, 0, 0, 0, time.UTC)
}

// testBudget has two on-budget accounts, one off-budget account, two fixed
// categories, a 10% percentage category and a hidden category
func testBudget() *domain.Budget {
	return &domain.Budget{
		ID:      testBudgetID,
		Name:    "Household",
		UserIDs: []string{"auth0|alice"},
		Accounts: map[string]*domain.Account{
			"checking":  {ID: "checking", Nickname: "Checking", SortOrder: 1, OnBudget: true, IsActive: true},
			"savings":   {ID: "savings", Nickname: "Savings", SortOrder: 2, OnBudget: true, IsActive: true},
			"brokerage": {ID: "brokerage", Nickname: "Brokerage", SortOrder: 3, OnBudget: false, IsActive: true},
		},
		AccountGroups: map[string]*domain.AccountGroup{},
		Categories: map[string]*domain.Category{
			"food":     {ID: "food", Name: "Food", SortOrder: 1, DefaultMonthlyType: domain.AllocationTypeFixed},
			"rent":     {ID: "rent", Name: "Rent", SortOrder: 2, DefaultMonthlyType: domain.AllocationTypeFixed},
			"goal":     {ID: "goal", Name: "Savings goal", SortOrder: 3, DefaultMonthlyType: domain.AllocationTypePercentage, DefaultMonthlyAmount: dec("10")},
			"archived": {ID: "archived", Name: "Archived", SortOrder: 4, DefaultMonthlyType: domain.AllocationTypeFixed, IsHidden: true},
		},
		CategoryGroups: map[string]*domain.CategoryGroup{},
		MonthMap:       map[string]bool{},
	}
}

func income(ym domain.YearMonth, id, account, amount string) domain.Income {
	return domain.Income{ID: id, Date: day(ym, 1), AccountID: account, Amount: dec(amount), Cleared: true}
}

func expense(ym domain.YearMonth, id, account, category, amount string) domain.Expense {
	return domain.Expense{ID: id, Date: day(ym, 15), AccountID: account, CategoryID: category, Amount: dec(amount), Cleared: true}
}

// harness wires the recalculation services over an in-memory document store
type harness struct {
	store   *testutil.MockDocumentStore
	budgets *document.BudgetRepository
	months  *document.MonthRepository
	tracker *RecalcTracker
	locker  *BudgetLocker
	cascade *CascadeService
	events  *testutil.MockEventPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := testutil.NewMockDocumentStore()
	docCache := cache.NewDocumentCache(1000, time.Minute)
	h := &harness{
		store:   store,
		budgets: document.NewBudgetRepository(store, docCache),
		months:  document.NewMonthRepository(store, docCache),
		locker:  NewBudgetLocker(),
		events:  testutil.NewMockEventPublisher(),
	}
	h.tracker = NewRecalcTracker(h.budgets)
	h.cascade = NewCascadeService(h.budgets, h.months, h.tracker, NewCalculationService(), h.locker, zerolog.Nop())
	h.cascade.SetEventPublisher(h.events)

	_, err := h.budgets.Create(context.Background(), testBudget())
	require.NoError(t, err)
	return h
}

// addMonth creates a month record with the given transactions and indexes it
func (h *harness) addMonth(t *testing.T, ym domain.YearMonth, txs domain.MonthTransactions) {
	t.Helper()
	m := domain.NewMonthRecord(testBudgetID, ym)
	m.SetTransactions(txs)
	_, err := h.months.SaveTransactions(context.Background(), m)
	require.NoError(t, err)
	_, err = h.tracker.Register(context.Background(), testBudgetID, ym)
	require.NoError(t, err)
}

// setTransactions overwrites a month's transactions without touching any flags
func (h *harness) setTransactions(t *testing.T, ym domain.YearMonth, txs domain.MonthTransactions) {
	t.Helper()
	m, err := h.months.GetFresh(context.Background(), testBudgetID, ym)
	require.NoError(t, err)
	m.SetTransactions(txs)
	_, err = h.months.SaveTransactions(context.Background(), m)
	require.NoError(t, err)
}

func (h *harness) month(t *testing.T, ym domain.YearMonth) *domain.MonthRecord {
	t.Helper()
	m, err := h.months.GetFresh(context.Background(), testBudgetID, ym)
	require.NoError(t, err)
	return m
}

func (h *harness) budget(t *testing.T) *domain.Budget {
	t.Helper()
	b, err := h.budgets.GetFresh(context.Background(), testBudgetID)
	require.NoError(t, err)
	return b
}

func accountEnd(t *testing.T, m *domain.MonthRecord, accountID string) string {
	t.Helper()
	row, ok := m.AccountBalance(accountID)
	require.True(t, ok, "no row for account %s", accountID)
	return row.EndBalance.StringFixed(2)
}

func categoryEnd(t *testing.T, m *domain.MonthRecord, categoryID string) string {
	t.Helper()
	row, ok := m.CategoryBalance(categoryID)
	require.True(t, ok, "no row for category %s", categoryID)
	return row.EndBalance.StringFixed(2)
}

// newHarnessOver builds a second instance over the same store with its own cache,
// as another server process would see it
func newHarnessOver(t *testing.T, h *harness) *harness {
	t.Helper()
	docCache := cache.NewDocumentCache(1000, time.Minute)
	other := &harness{
		store:   h.store,
		budgets: document.NewBudgetRepository(h.store, docCache),
		months:  document.NewMonthRepository(h.store, docCache),
		locker:  NewBudgetLocker(),
		events:  testutil.NewMockEventPublisher(),
	}
	other.tracker = NewRecalcTracker(other.budgets)
	other.cascade = NewCascadeService(other.budgets, other.months, other.tracker, NewCalculationService(), other.locker, zerolog.Nop())
	return other
}
