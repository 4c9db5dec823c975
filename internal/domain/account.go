package domain

import "github.com/shopspring/decimal"

// Reserved identities that keep money referenced by deleted or missing
// accounts/categories visible in balance output
const (
	UnknownAccountID  = "__unknown_account__"
	UnknownCategoryID = "__unknown_category__"
)

type Account struct {
	ID              string          `json:"id"`
	Nickname        string          `json:"nickname"`
	GroupID         string          `json:"groupId,omitempty"`
	SortOrder       int             `json:"sortOrder"`
	OnBudget        bool            `json:"onBudget"`
	IsActive        bool            `json:"isActive"`
	IsIncomeAccount bool            `json:"isIncomeAccount"`
	IsIncomeDefault bool            `json:"isIncomeDefault"`
	IsOutgoAccount  bool            `json:"isOutgoAccount"`
	IsOutgoDefault  bool            `json:"isOutgoDefault"`
	Balance         decimal.Decimal `json:"balance"`
}

// AccountGroup may override the on-budget and active flags of its accounts
type AccountGroup struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sortOrder"`
	OnBudget  *bool  `json:"onBudget,omitempty"`
	IsActive  *bool  `json:"isActive,omitempty"`
}

// EffectiveOnBudget resolves the on-budget flag, preferring the group override
func (a *Account) EffectiveOnBudget(groups map[string]*AccountGroup) bool {
	if g, ok := groups[a.GroupID]; ok && g.OnBudget != nil {
		return *g.OnBudget
	}
	return a.OnBudget
}

// EffectiveIsActive resolves the active flag, preferring the group override
func (a *Account) EffectiveIsActive(groups map[string]*AccountGroup) bool {
	if g, ok := groups[a.GroupID]; ok && g.IsActive != nil {
		return *g.IsActive
	}
	return a.IsActive
}
