package domain

import "github.com/shopspring/decimal"

// CategoryMonthBalance is one category's derived row for a month.
// Spent is negative so EndBalance = StartBalance + Allocated + Spent + Transfers + Adjustments.
type CategoryMonthBalance struct {
	CategoryID   string          `json:"categoryId"`
	StartBalance decimal.Decimal `json:"startBalance"`
	Allocated    decimal.Decimal `json:"allocated"`
	Spent        decimal.Decimal `json:"spent"`
	Transfers    decimal.Decimal `json:"transfers"`
	Adjustments  decimal.Decimal `json:"adjustments"`
	EndBalance   decimal.Decimal `json:"endBalance"`
}

// AccountActivity sums account activity over a subset of transactions
type AccountActivity struct {
	Income      decimal.Decimal `json:"income"`
	Expenses    decimal.Decimal `json:"expenses"`
	Transfers   decimal.Decimal `json:"transfers"`
	Adjustments decimal.Decimal `json:"adjustments"`
	NetChange   decimal.Decimal `json:"netChange"`
}

// Equal compares two activity sums using decimal equality
func (a AccountActivity) Equal(other AccountActivity) bool {
	return allEqual(
		[]decimal.Decimal{a.Income, a.Expenses, a.Transfers, a.Adjustments, a.NetChange},
		[]decimal.Decimal{other.Income, other.Expenses, other.Transfers, other.Adjustments, other.NetChange})
}

// AccountMonthBalance is one account's derived row for a month
type AccountMonthBalance struct {
	AccountID    string          `json:"accountId"`
	StartBalance decimal.Decimal `json:"startBalance"`
	Income       decimal.Decimal `json:"income"`
	Expenses     decimal.Decimal `json:"expenses"`
	Transfers    decimal.Decimal `json:"transfers"`
	Adjustments  decimal.Decimal `json:"adjustments"`
	NetChange    decimal.Decimal `json:"netChange"`
	EndBalance   decimal.Decimal `json:"endBalance"`

	ClearedStartBalance   decimal.Decimal `json:"clearedStartBalance"`
	UnclearedStartBalance decimal.Decimal `json:"unclearedStartBalance"`
	ClearedActivity       AccountActivity `json:"clearedActivity"`
	UnclearedActivity     AccountActivity `json:"unclearedActivity"`
	ClearedEndBalance     decimal.Decimal `json:"clearedEndBalance"`
	UnclearedEndBalance   decimal.Decimal `json:"unclearedEndBalance"`
}

// MonthBalances is everything the calculator derives for a month
type MonthBalances struct {
	CategoryBalances    []CategoryMonthBalance `json:"categoryBalances"`
	AccountBalances     []AccountMonthBalance  `json:"accountBalances"`
	TotalIncome         decimal.Decimal        `json:"totalIncome"`
	TotalExpenses       decimal.Decimal        `json:"totalExpenses"`
	PreviousMonthIncome decimal.Decimal        `json:"previousMonthIncome"`
	TotalAllocated      decimal.Decimal        `json:"totalAllocated"`
	TotalNewlyAvailable decimal.Decimal        `json:"totalNewlyAvailable"`
	UnassignedStart     decimal.Decimal        `json:"unassignedStart"`
	UnassignedEnd       decimal.Decimal        `json:"unassignedEnd"`
	OffBudgetStart      decimal.Decimal        `json:"offBudgetStart"`
	OffBudgetEnd        decimal.Decimal        `json:"offBudgetEnd"`
}

// CategoryBalance returns the row for a category, if present
func (b *MonthBalances) CategoryBalance(categoryID string) (CategoryMonthBalance, bool) {
	for _, cb := range b.CategoryBalances {
		if cb.CategoryID == categoryID {
			return cb, true
		}
	}
	return CategoryMonthBalance{}, false
}

// AccountBalance returns the row for an account, if present
func (b *MonthBalances) AccountBalance(accountID string) (AccountMonthBalance, bool) {
	for _, ab := range b.AccountBalances {
		if ab.AccountID == accountID {
			return ab, true
		}
	}
	return AccountMonthBalance{}, false
}

// Equal compares two results field by field using decimal equality
func (b *MonthBalances) Equal(other *MonthBalances) bool {
	if b == nil || other == nil {
		return b == other
	}
	if len(b.CategoryBalances) != len(other.CategoryBalances) || len(b.AccountBalances) != len(other.AccountBalances) {
		return false
	}
	for i, cb := range b.CategoryBalances {
		o := other.CategoryBalances[i]
		if cb.CategoryID != o.CategoryID || !allEqual(
			[]decimal.Decimal{cb.StartBalance, cb.Allocated, cb.Spent, cb.Transfers, cb.Adjustments, cb.EndBalance},
			[]decimal.Decimal{o.StartBalance, o.Allocated, o.Spent, o.Transfers, o.Adjustments, o.EndBalance}) {
			return false
		}
	}
	for i, ab := range b.AccountBalances {
		o := other.AccountBalances[i]
		if ab.AccountID != o.AccountID || !allEqual(
			[]decimal.Decimal{ab.StartBalance, ab.Income, ab.Expenses, ab.Transfers, ab.Adjustments, ab.NetChange, ab.EndBalance,
				ab.ClearedStartBalance, ab.UnclearedStartBalance, ab.ClearedEndBalance, ab.UnclearedEndBalance},
			[]decimal.Decimal{o.StartBalance, o.Income, o.Expenses, o.Transfers, o.Adjustments, o.NetChange, o.EndBalance,
				o.ClearedStartBalance, o.UnclearedStartBalance, o.ClearedEndBalance, o.UnclearedEndBalance}) {
			return false
		}
		if !ab.ClearedActivity.Equal(o.ClearedActivity) || !ab.UnclearedActivity.Equal(o.UnclearedActivity) {
			return false
		}
	}
	return allEqual(
		[]decimal.Decimal{b.TotalIncome, b.TotalExpenses, b.PreviousMonthIncome, b.TotalAllocated, b.TotalNewlyAvailable,
			b.UnassignedStart, b.UnassignedEnd, b.OffBudgetStart, b.OffBudgetEnd},
		[]decimal.Decimal{other.TotalIncome, other.TotalExpenses, other.PreviousMonthIncome, other.TotalAllocated, other.TotalNewlyAvailable,
			other.UnassignedStart, other.UnassignedEnd, other.OffBudgetStart, other.OffBudgetEnd})
}

// EndBalancesEqual reports whether the carried-forward parts of two results match.
// The cascade uses it to decide whether the next month must be recomputed.
func (b *MonthBalances) EndBalancesEqual(other *MonthBalances) bool {
	if b == nil || other == nil {
		return b == other
	}
	return ExtractSnapshot(YearMonth{}, b).Equal(ExtractSnapshot(YearMonth{}, other))
}

func allEqual(a, b []decimal.Decimal) bool {
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
