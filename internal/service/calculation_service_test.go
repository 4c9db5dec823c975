package service

import (
	"testing"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/util"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputFor(ym domain.YearMonth, txs domain.MonthTransactions) MonthInput {
	b := testBudget()
	return MonthInput{
		Month:         ym,
		Transactions:  txs,
		Categories:    b.SortedCategories(),
		Accounts:      b.SortedAccounts(),
		AccountGroups: b.AccountGroups,
	}
}

func finalized(amounts map[string]string) domain.MonthAllocations {
	out := domain.MonthAllocations{Finalized: true, Amounts: map[string]decimal.Decimal{}}
	for id, a := range amounts {
		out.Amounts[id] = dec(a)
	}
	return out
}

func TestCalculationService_CategoryEndBalance(t *testing.T) {
	calc := NewCalculationService()
	in := inputFor(mar, domain.MonthTransactions{
		Expenses: []domain.Expense{expense(mar, "e1", "checking", "food", "50")},
	})
	in.Allocations = finalized(map[string]string{"food": "200"})

	result := calc.Compute(in)

	food, ok := result.CategoryBalance("food")
	require.True(t, ok)
	assert.Equal(t, "0.00", food.StartBalance.StringFixed(2))
	assert.Equal(t, "200.00", food.Allocated.StringFixed(2))
	assert.Equal(t, "-50.00", food.Spent.StringFixed(2))
	assert.Equal(t, "150.00", food.EndBalance.StringFixed(2))
}

func TestCalculationService_AccountEndBalance(t *testing.T) {
	calc := NewCalculationService()
	in := inputFor(mar, domain.MonthTransactions{
		Income: []domain.Income{income(mar, "i1", "checking", "300")},
		Transfers: []domain.Transfer{
			{ID: "t1", Date: day(mar, 10), FromAccountID: "checking", ToAccountID: "savings", Amount: dec("50"), Cleared: true},
		},
	})
	in.Previous = domain.ZeroSnapshot()
	in.Previous.AccountEndBalances["checking"] = dec("100")

	result := calc.Compute(in)

	checking, ok := result.AccountBalance("checking")
	require.True(t, ok)
	assert.Equal(t, "100.00", checking.StartBalance.StringFixed(2))
	assert.Equal(t, "300.00", checking.Income.StringFixed(2))
	assert.Equal(t, "-50.00", checking.Transfers.StringFixed(2))
	assert.Equal(t, "250.00", checking.NetChange.StringFixed(2))
	assert.Equal(t, "350.00", checking.EndBalance.StringFixed(2))

	savings, _ := result.AccountBalance("savings")
	assert.Equal(t, "50.00", savings.EndBalance.StringFixed(2))
	assert.Equal(t, "300.00", result.TotalIncome.StringFixed(2))
}

func TestCalculationService_PercentageAllocation(t *testing.T) {
	calc := NewCalculationService()
	in := inputFor(mar, domain.MonthTransactions{})
	in.PreviousMonthIncome = dec("1000")
	// Persisted amounts are ignored for percentage categories
	in.Allocations = finalized(map[string]string{"goal": "999"})

	result := calc.Compute(in)

	goal, _ := result.CategoryBalance("goal")
	assert.Equal(t, "100.00", goal.Allocated.StringFixed(2))
	assert.Equal(t, "1000.00", result.PreviousMonthIncome.StringFixed(2))
}

func TestCalculationService_PercentageAppliesBeforeFinalize(t *testing.T) {
	calc := NewCalculationService()
	in := inputFor(mar, domain.MonthTransactions{})
	in.PreviousMonthIncome = dec("1234.56")

	result := calc.Compute(in)

	goal, _ := result.CategoryBalance("goal")
	food, _ := result.CategoryBalance("food")
	assert.Equal(t, "123.46", goal.Allocated.StringFixed(2))
	assert.True(t, food.Allocated.IsZero())
}

func TestCalculationService_HiddenAndUnfinalizedCategoriesGetNothing(t *testing.T) {
	calc := NewCalculationService()

	in := inputFor(mar, domain.MonthTransactions{})
	in.Allocations = finalized(map[string]string{"archived": "75", "rent": "500"})
	result := calc.Compute(in)
	archived, _ := result.CategoryBalance("archived")
	rent, _ := result.CategoryBalance("rent")
	assert.True(t, archived.Allocated.IsZero())
	assert.Equal(t, "500.00", rent.Allocated.StringFixed(2))

	in.Allocations.Finalized = false
	result = calc.Compute(in)
	rent, _ = result.CategoryBalance("rent")
	assert.True(t, rent.Allocated.IsZero())
	assert.True(t, result.TotalAllocated.IsZero())
}

func TestCalculationService_ReadyToAssignIdentity(t *testing.T) {
	calc := NewCalculationService()
	in := inputFor(jan, domain.MonthTransactions{
		Income: []domain.Income{income(jan, "i1", "checking", "1000")},
		Expenses: []domain.Expense{
			expense(jan, "e1", "checking", "food", "50"),
			expense(jan, "e2", "brokerage", "food", "20"),
		},
	})
	in.PreviousMonthIncome = dec("1000")
	in.Allocations = finalized(map[string]string{"food": "200", "rent": "500"})

	result := calc.Compute(in)

	assert.Equal(t, "130.00", categoryEndOf(result, "food"))
	assert.Equal(t, "500.00", categoryEndOf(result, "rent"))
	assert.Equal(t, "100.00", categoryEndOf(result, "goal"))
	assert.Equal(t, "800.00", result.TotalAllocated.StringFixed(2))
	// Spending from an off-budget account moves the off-budget carry, not ready-to-assign
	assert.Equal(t, "20.00", result.OffBudgetEnd.StringFixed(2))
	assert.Equal(t, "200.00", result.UnassignedEnd.StringFixed(2))

	onBudget := decimal.Zero
	for _, ab := range result.AccountBalances {
		if ab.AccountID != "brokerage" {
			onBudget = onBudget.Add(ab.EndBalance)
		}
	}
	categories := decimal.Zero
	for _, cb := range result.CategoryBalances {
		categories = categories.Add(cb.EndBalance)
	}
	assert.True(t, result.UnassignedEnd.Equal(onBudget.Sub(categories).Sub(result.OffBudgetEnd)))
}

func TestCalculationService_ConservesMoneyAcrossMonths(t *testing.T) {
	calc := NewCalculationService()
	janIn := inputFor(jan, domain.MonthTransactions{
		Income:   []domain.Income{income(jan, "i1", "checking", "1000")},
		Expenses: []domain.Expense{expense(jan, "e1", "checking", "food", "80")},
	})
	janIn.Allocations = finalized(map[string]string{"food": "100"})
	janOut := calc.Compute(janIn)

	febIn := inputFor(feb, domain.MonthTransactions{
		Transfers: []domain.Transfer{
			{ID: "t1", Date: day(feb, 3), FromCategoryID: "food", ToCategoryID: "rent", Amount: dec("20")},
		},
	})
	febIn.Previous = domain.ExtractSnapshot(jan, janOut)
	febIn.PreviousMonthIncome = janOut.TotalIncome
	febOut := calc.Compute(febIn)

	for _, cb := range febOut.CategoryBalances {
		assert.Equal(t, febIn.Previous.CategoryEndBalances[cb.CategoryID].StringFixed(2), cb.StartBalance.StringFixed(2), cb.CategoryID)
	}
	for _, ab := range febOut.AccountBalances {
		assert.Equal(t, febIn.Previous.AccountEndBalances[ab.AccountID].StringFixed(2), ab.StartBalance.StringFixed(2), ab.AccountID)
	}
	assert.Equal(t, janOut.UnassignedEnd.StringFixed(2), febOut.UnassignedStart.StringFixed(2))
	// A category-to-category transfer leaves ready-to-assign alone; only the goal allocation draws on it
	assert.Equal(t, janOut.UnassignedEnd.Sub(dec("100")).StringFixed(2), febOut.UnassignedEnd.StringFixed(2))
	assert.Equal(t, "0.00", categoryEndOf(febOut, "food"))
	assert.Equal(t, "20.00", categoryEndOf(febOut, "rent"))
}

func TestCalculationService_IsDeterministic(t *testing.T) {
	calc := NewCalculationService()
	in := inputFor(mar, domain.MonthTransactions{
		Income:      []domain.Income{income(mar, "i1", "checking", "10.10"), income(mar, "i2", "savings", "20.20")},
		Expenses:    []domain.Expense{expense(mar, "e1", "checking", "food", "0.30")},
		Adjustments: []domain.Adjustment{{ID: "a1", Date: day(mar, 2), AccountID: "checking", Amount: dec("-1.01")}},
	})
	in.PreviousMonthIncome = dec("333.33")

	first := calc.Compute(in)
	second := calc.Compute(in)

	assert.True(t, first.Equal(second))
	assert.Equal(t, "30.30", first.TotalIncome.StringFixed(2))
}

func TestCalculationService_UnknownReferencesLandInReservedBuckets(t *testing.T) {
	calc := NewCalculationService()
	in := inputFor(mar, domain.MonthTransactions{
		Expenses: []domain.Expense{expense(mar, "e1", "closed-account", "deleted-category", "30")},
	})
	in.Previous = domain.ZeroSnapshot()
	in.Previous.CategoryEndBalances["gone"] = dec("40")

	result := calc.Compute(in)

	unknownCategory, ok := result.CategoryBalance(domain.UnknownCategoryID)
	require.True(t, ok)
	assert.Equal(t, "40.00", unknownCategory.StartBalance.StringFixed(2))
	assert.Equal(t, "-30.00", unknownCategory.Spent.StringFixed(2))
	assert.Equal(t, "10.00", unknownCategory.EndBalance.StringFixed(2))

	unknownAccount, ok := result.AccountBalance(domain.UnknownAccountID)
	require.True(t, ok)
	assert.Equal(t, "-30.00", unknownAccount.EndBalance.StringFixed(2))
}

func TestCalculationService_NoUnknownRowsWhenEverythingResolves(t *testing.T) {
	calc := NewCalculationService()
	result := calc.Compute(inputFor(mar, domain.MonthTransactions{
		Expenses: []domain.Expense{expense(mar, "e1", "checking", "food", "5")},
	}))

	_, hasCategory := result.CategoryBalance(domain.UnknownCategoryID)
	_, hasAccount := result.AccountBalance(domain.UnknownAccountID)
	assert.False(t, hasCategory)
	assert.False(t, hasAccount)
	assert.Len(t, result.CategoryBalances, 4)
	assert.Len(t, result.AccountBalances, 3)
}

func TestCalculationService_ClearedAndUnclearedBalances(t *testing.T) {
	calc := NewCalculationService()
	uncleared := expense(mar, "e1", "checking", "food", "10")
	uncleared.Cleared = false
	in := inputFor(mar, domain.MonthTransactions{
		Income:   []domain.Income{income(mar, "i1", "checking", "50")},
		Expenses: []domain.Expense{uncleared},
	})
	in.Previous = domain.ZeroSnapshot()
	in.Previous.AccountEndBalances["checking"] = dec("100")
	in.Previous.AccountClearedEndBalances["checking"] = dec("80")

	result := calc.Compute(in)

	checking, _ := result.AccountBalance("checking")
	assert.Equal(t, "80.00", checking.ClearedStartBalance.StringFixed(2))
	assert.Equal(t, "20.00", checking.UnclearedStartBalance.StringFixed(2))
	assert.Equal(t, "130.00", checking.ClearedEndBalance.StringFixed(2))
	assert.Equal(t, "10.00", checking.UnclearedEndBalance.StringFixed(2))
	assert.Equal(t, "140.00", checking.EndBalance.StringFixed(2))
}

func TestCalculationService_GroupOverridesOnBudget(t *testing.T) {
	calc := NewCalculationService()
	off := false
	in := inputFor(mar, domain.MonthTransactions{
		Income: []domain.Income{income(mar, "i1", "savings", "100")},
	})
	in.Accounts[1].GroupID = "long-term"
	in.AccountGroups = map[string]*domain.AccountGroup{"long-term": {ID: "long-term", OnBudget: &off}}

	result := calc.Compute(in)

	assert.True(t, result.UnassignedEnd.IsZero())
}

func TestNewlyAvailable(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		allocated string
		want      string
	}{
		{"no debt", "20", "100", "100.00"},
		{"partial debt", "-30", "100", "70.00"},
		{"debt exceeds allocation", "-150", "100", "0.00"},
		{"nothing allocated", "-10", "0", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewlyAvailable(dec(tt.start), dec(tt.allocated)).StringFixed(2))
		})
	}
}

func TestAllocationResolver_Resolve(t *testing.T) {
	r := NewAllocationResolver()
	b := testBudget()
	persisted := finalized(map[string]string{"food": "12.345", "goal": "50", "archived": "10"})

	assert.Equal(t, "12.35", r.Resolve(b.Categories["food"], persisted, dec("500")).StringFixed(2))
	assert.Equal(t, "50.00", r.Resolve(b.Categories["goal"], persisted, dec("500")).StringFixed(2))
	assert.True(t, r.Resolve(b.Categories["archived"], persisted, dec("500")).IsZero())
	assert.True(t, r.Resolve(b.Categories["rent"], persisted, dec("500")).IsZero())

	persisted.Finalized = false
	assert.True(t, r.Resolve(b.Categories["food"], persisted, dec("500")).IsZero())
	assert.Equal(t, "50.00", r.Resolve(b.Categories["goal"], persisted, dec("500")).StringFixed(2))
}

func TestPercentageAllocation_RoundsToCents(t *testing.T) {
	assert.Equal(t, "0.33", PercentageAllocation(dec("33.333"), dec("1")).StringFixed(2))
	assert.True(t, PercentageAllocation(dec("10"), decimal.Zero).IsZero())
	assert.Equal(t, util.RoundCents(dec("12.5")).StringFixed(2), PercentageAllocation(dec("25"), dec("50")).StringFixed(2))
}

func categoryEndOf(b *domain.MonthBalances, id string) string {
	row, _ := b.CategoryBalance(id)
	return row.EndBalance.StringFixed(2)
}
