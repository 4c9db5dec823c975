package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func balancesWithChecking(row AccountMonthBalance) *MonthBalances {
	row.AccountID = "checking"
	return &MonthBalances{AccountBalances: []AccountMonthBalance{row}}
}

func TestMonthBalances_Equal_ComparesClearedSplit(t *testing.T) {
	hundred := decimal.NewFromInt(100)
	base := AccountMonthBalance{
		StartBalance:        hundred,
		EndBalance:          hundred,
		ClearedStartBalance: hundred,
		ClearedEndBalance:   hundred,
	}

	tests := []struct {
		name   string
		change func(row *AccountMonthBalance)
	}{
		{"cleared activity", func(row *AccountMonthBalance) {
			row.ClearedActivity = AccountActivity{Income: hundred, Expenses: hundred}
		}},
		{"uncleared activity", func(row *AccountMonthBalance) {
			row.UnclearedActivity = AccountActivity{Income: hundred, Expenses: hundred}
		}},
		{"uncleared start balance", func(row *AccountMonthBalance) {
			row.UnclearedStartBalance = hundred
			row.ClearedStartBalance = decimal.Zero
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := base
			tt.change(&changed)

			assert.False(t, balancesWithChecking(base).Equal(balancesWithChecking(changed)))
			assert.True(t, balancesWithChecking(changed).Equal(balancesWithChecking(changed)))
		})
	}
}

func TestMonthBalances_Equal_IgnoresDecimalScale(t *testing.T) {
	a := balancesWithChecking(AccountMonthBalance{
		EndBalance:        decimal.RequireFromString("10.5"),
		ClearedActivity:   AccountActivity{Income: decimal.RequireFromString("10.5")},
		UnclearedActivity: AccountActivity{Expenses: decimal.RequireFromString("2")},
	})
	b := balancesWithChecking(AccountMonthBalance{
		EndBalance:        decimal.RequireFromString("10.50"),
		ClearedActivity:   AccountActivity{Income: decimal.RequireFromString("10.50")},
		UnclearedActivity: AccountActivity{Expenses: decimal.RequireFromString("2.00")},
	})

	assert.True(t, a.Equal(b))
}

func TestBudget_DirtyThrough(t *testing.T) {
	feb := YearMonth{Year: 2024, Month: 2}
	mar := YearMonth{Year: 2024, Month: 3}
	apr := YearMonth{Year: 2024, Month: 4}
	b := testBudget()
	b.MonthMap = map[string]bool{feb.String(): false, mar.String(): true, apr.String(): false}

	assert.False(t, b.DirtyThrough(feb))
	assert.True(t, b.DirtyThrough(mar))
	assert.True(t, b.DirtyThrough(apr))
}
