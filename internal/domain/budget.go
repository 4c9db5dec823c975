package domain

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPercentageIncomeMonthsBack is how far back percentage allocations look for income
const DefaultPercentageIncomeMonthsBack = 1

// Budget holds the account/category definitions and the recalculation flag map.
// Month records hold everything else.
type Budget struct {
	ID                         string                    `json:"id"`
	Name                       string                    `json:"name"`
	UserIDs                    []string                  `json:"userIds"`
	Accounts                   map[string]*Account       `json:"accounts"`
	AccountGroups              map[string]*AccountGroup  `json:"accountGroups"`
	Categories                 map[string]*Category      `json:"categories"`
	CategoryGroups             map[string]*CategoryGroup `json:"categoryGroups"`
	PercentageIncomeMonthsBack int                       `json:"percentageIncomeMonthsBack"`
	// MonthMap indexes every existing month ("YYYY-MM") to its needs-recalculation flag
	MonthMap    map[string]bool `json:"monthMap"`
	NeedsRecalc bool            `json:"needsRecalc"`

	Version   int64     `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// IncomeMonthsBack returns the configured look-back, defaulting to one month
func (b *Budget) IncomeMonthsBack() int {
	if b.PercentageIncomeMonthsBack <= 0 {
		return DefaultPercentageIncomeMonthsBack
	}
	return b.PercentageIncomeMonthsBack
}

// HasUser reports whether the user may read and write this budget
func (b *Budget) HasUser(userID string) bool {
	for _, id := range b.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// SortedCategories returns categories ordered by sort order, then id
func (b *Budget) SortedCategories() []*Category {
	out := make([]*Category, 0, len(b.Categories))
	for _, c := range b.Categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SortedAccounts returns accounts ordered by sort order, then id
func (b *Budget) SortedAccounts() []*Account {
	out := make([]*Account, 0, len(b.Accounts))
	for _, a := range b.Accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ExistingMonths returns the months in the month index in chronological order
func (b *Budget) ExistingMonths() []YearMonth {
	months := make([]YearMonth, 0, len(b.MonthMap))
	for key := range b.MonthMap {
		ym, err := ParseYearMonth(key)
		if err != nil {
			continue
		}
		months = append(months, ym)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months
}

// DirtyMonths returns the months flagged for recalculation in chronological order
func (b *Budget) DirtyMonths() []YearMonth {
	var dirty []YearMonth
	for _, ym := range b.ExistingMonths() {
		if b.MonthMap[ym.Key()] {
			dirty = append(dirty, ym)
		}
	}
	return dirty
}

// DirtyThrough reports whether ym or any earlier month is flagged. A month's
// stored balances are only current when this is false.
func (b *Budget) DirtyThrough(ym YearMonth) bool {
	for key, dirty := range b.MonthMap {
		if !dirty {
			continue
		}
		m, err := ParseYearMonth(key)
		if err == nil && !m.After(ym) {
			return true
		}
	}
	return false
}

// BudgetRepository persists budget documents
type BudgetRepository interface {
	Get(ctx context.Context, budgetID string) (*Budget, error)
	// GetFresh bypasses any local cache
	GetFresh(ctx context.Context, budgetID string) (*Budget, error)
	// ListNeedingRecalc returns ids of budgets with at least one dirty month
	ListNeedingRecalc(ctx context.Context) ([]string, error)
	// SaveMonthMap writes the flag map, failing with ErrConflict when budget.Version is stale
	SaveMonthMap(ctx context.Context, budget *Budget) (*Budget, error)
	// SaveBalances writes the denormalized account and category balances,
	// failing with ErrConflict when budget.Version is stale
	SaveBalances(ctx context.Context, budget *Budget) (*Budget, error)
}

// ApplyBalances copies snapshot end balances onto the denormalized balance fields.
// Definitions absent from the snapshot are reset to zero.
func (b *Budget) ApplyBalances(s *Snapshot) {
	for id, a := range b.Accounts {
		a.Balance = s.AccountEndBalances[id]
		if a.Balance.IsZero() {
			a.Balance = decimal.Zero
		}
	}
	for id, c := range b.Categories {
		c.Balance = s.CategoryEndBalances[id]
		if c.Balance.IsZero() {
			c.Balance = decimal.Zero
		}
	}
}
