package domain

import "github.com/shopspring/decimal"

type AllocationType string

const (
	AllocationTypeFixed      AllocationType = "fixed"
	AllocationTypePercentage AllocationType = "percentage"
)

type Category struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	GroupID              string          `json:"groupId,omitempty"`
	SortOrder            int             `json:"sortOrder"`
	DefaultMonthlyAmount decimal.Decimal `json:"defaultMonthlyAmount"`
	DefaultMonthlyType   AllocationType  `json:"defaultMonthlyType"`
	IsHidden             bool            `json:"isHidden"`
	Balance              decimal.Decimal `json:"balance"`
}

// IsPercentage reports whether the category is allocated as a share of income
func (c *Category) IsPercentage() bool {
	return c.DefaultMonthlyType == AllocationTypePercentage
}

type CategoryGroup struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sortOrder"`
}
