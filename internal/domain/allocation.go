package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AllocationState is the per-month state of the fixed-type allocation set
type AllocationState string

const (
	AllocationStateUnset            AllocationState = "unset"
	AllocationStateDraft            AllocationState = "draft"
	AllocationStateFinalized        AllocationState = "finalized"
	AllocationStateEditingFinalized AllocationState = "editing_finalized"
)

// MonthAllocations is the persisted allocation input of a month
type MonthAllocations struct {
	Finalized bool
	Amounts   map[string]decimal.Decimal
}

// Amount returns the persisted amount for a category, zero when absent
func (a MonthAllocations) Amount(categoryID string) decimal.Decimal {
	if a.Amounts == nil {
		return decimal.Zero
	}
	return a.Amounts[categoryID]
}

// AllocationDraft holds amounts entered but not yet finalized. Drafts are never durable.
type AllocationDraft struct {
	BudgetID  string                     `json:"budgetId"`
	Month     YearMonth                  `json:"month"`
	Amounts   map[string]decimal.Decimal `json:"amounts"`
	Editing   bool                       `json:"editing"`
	UpdatedAt time.Time                  `json:"updatedAt"`
}

// ResolvedAllocation is one category's allocation as the calculator will see it
type ResolvedAllocation struct {
	CategoryID string           `json:"categoryId"`
	Type       AllocationType   `json:"type"`
	IsHidden   bool             `json:"isHidden"`
	Persisted  decimal.Decimal  `json:"persisted"`
	Draft      *decimal.Decimal `json:"draft,omitempty"`
	Effective  decimal.Decimal  `json:"effective"`
}

// MonthAllocationView is the allocation screen of a month
type MonthAllocationView struct {
	Month               YearMonth            `json:"month"`
	State               AllocationState      `json:"state"`
	PreviousMonthIncome decimal.Decimal      `json:"previousMonthIncome"`
	Allocations         []ResolvedAllocation `json:"allocations"`
}

// DraftStore keeps allocation drafts outside the durable store
type DraftStore interface {
	GetDraft(ctx context.Context, budgetID string, ym YearMonth) (*AllocationDraft, bool)
	SaveDraft(ctx context.Context, draft *AllocationDraft)
	DeleteDraft(ctx context.Context, budgetID string, ym YearMonth)
}
