package service

import (
	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/util"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// AllocationResolver computes the allocation the calculator applies to a category
type AllocationResolver struct{}

// NewAllocationResolver creates a new AllocationResolver
func NewAllocationResolver() *AllocationResolver {
	return &AllocationResolver{}
}

// Resolve returns the effective allocation of a category for a month.
// Hidden categories always get zero. Percentage categories are derived from
// previousMonthIncome and never read the persisted value. Fixed categories use
// the persisted value once the month is finalized and zero before that.
func (r *AllocationResolver) Resolve(category *domain.Category, allocations domain.MonthAllocations, previousMonthIncome decimal.Decimal) decimal.Decimal {
	if category.IsHidden {
		return decimal.Zero
	}
	if category.IsPercentage() {
		return PercentageAllocation(category.DefaultMonthlyAmount, previousMonthIncome)
	}
	if !allocations.Finalized {
		return decimal.Zero
	}
	return util.RoundCents(allocations.Amount(category.ID))
}

// PercentageAllocation returns percent of income, rounded to cents
func PercentageAllocation(percent, income decimal.Decimal) decimal.Decimal {
	return util.RoundCents(percent.Div(oneHundred).Mul(income))
}
