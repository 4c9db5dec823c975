package domain

import "github.com/shopspring/decimal"

// Snapshot is the minimal projection of a month needed to start the next one
type Snapshot struct {
	Month                     YearMonth                  `json:"month"`
	AccountEndBalances        map[string]decimal.Decimal `json:"accountEndBalances"`
	AccountClearedEndBalances map[string]decimal.Decimal `json:"accountClearedEndBalances"`
	CategoryEndBalances       map[string]decimal.Decimal `json:"categoryEndBalances"`
	TotalIncome               decimal.Decimal            `json:"totalIncome"`
	UnassignedEnd             decimal.Decimal            `json:"unassignedEnd"`
	OffBudgetEnd              decimal.Decimal            `json:"offBudgetEnd"`
}

// ZeroSnapshot is the all-zero baseline used before the first month
// and whenever a previous month cannot be read
func ZeroSnapshot() *Snapshot {
	return &Snapshot{
		AccountEndBalances:        map[string]decimal.Decimal{},
		AccountClearedEndBalances: map[string]decimal.Decimal{},
		CategoryEndBalances:       map[string]decimal.Decimal{},
	}
}

// ExtractSnapshot projects a month's derived balances onto its carry-forward snapshot
func ExtractSnapshot(ym YearMonth, b *MonthBalances) *Snapshot {
	s := ZeroSnapshot()
	s.Month = ym
	if b == nil {
		return s
	}
	for _, ab := range b.AccountBalances {
		s.AccountEndBalances[ab.AccountID] = ab.EndBalance
		s.AccountClearedEndBalances[ab.AccountID] = ab.ClearedEndBalance
	}
	for _, cb := range b.CategoryBalances {
		s.CategoryEndBalances[cb.CategoryID] = cb.EndBalance
	}
	s.TotalIncome = b.TotalIncome
	s.UnassignedEnd = b.UnassignedEnd
	s.OffBudgetEnd = b.OffBudgetEnd
	return s
}

// Equal compares end balances, treating a missing entry as zero
func (s *Snapshot) Equal(other *Snapshot) bool {
	return mapsEqual(s.AccountEndBalances, other.AccountEndBalances) &&
		mapsEqual(s.AccountClearedEndBalances, other.AccountClearedEndBalances) &&
		mapsEqual(s.CategoryEndBalances, other.CategoryEndBalances) &&
		s.TotalIncome.Equal(other.TotalIncome) &&
		s.UnassignedEnd.Equal(other.UnassignedEnd) &&
		s.OffBudgetEnd.Equal(other.OffBudgetEnd)
}

func mapsEqual(a, b map[string]decimal.Decimal) bool {
	for k, v := range a {
		if !v.Equal(b[k]) {
			return false
		}
	}
	for k, v := range b {
		if !v.Equal(a[k]) {
			return false
		}
	}
	return true
}
