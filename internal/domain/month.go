package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/util"
	"github.com/shopspring/decimal"
)

// Supported calendar range for month records
const (
	MinYear = 1900
	MaxYear = 2200
)

// YearMonth identifies a calendar month. It is passed explicitly to every
// calculator and scheduler call; there is no ambient "current month".
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewYearMonth validates and builds a YearMonth
func NewYearMonth(year, month int) (YearMonth, error) {
	if month < 1 || month > 12 || year < MinYear || year > MaxYear {
		return YearMonth{}, fmt.Errorf("%w: year %d month %d", ErrInvalidInput, year, month)
	}
	return YearMonth{Year: year, Month: month}, nil
}

// YearMonthOf returns the month containing t
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

// YearMonthFromOrdinal is the inverse of Ordinal
func YearMonthFromOrdinal(ordinal int) YearMonth {
	return YearMonth{Year: ordinal / 12, Month: ordinal%12 + 1}
}

// ParseYearMonth parses the "YYYY-MM" form produced by Key
func ParseYearMonth(s string) (YearMonth, error) {
	var year, month int
	if _, err := fmt.Sscanf(s, "%04d-%02d", &year, &month); err != nil {
		return YearMonth{}, fmt.Errorf("%w: month key %q", ErrInvalidInput, s)
	}
	return NewYearMonth(year, month)
}

// Ordinal is a monotonically increasing month number, used for ordering and queries
func (ym YearMonth) Ordinal() int {
	return ym.Year*12 + ym.Month - 1
}

// Key is the sortable "YYYY-MM" form used in the recalculation flag map
func (ym YearMonth) Key() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

func (ym YearMonth) String() string {
	return ym.Key()
}

// Label is the human readable form reported in progress updates
func (ym YearMonth) Label() string {
	return fmt.Sprintf("%s %d", time.Month(ym.Month).String(), ym.Year)
}

func (ym YearMonth) Next() YearMonth {
	y, m := util.NextMonth(ym.Year, ym.Month)
	return YearMonth{Year: y, Month: m}
}

func (ym YearMonth) Prev() YearMonth {
	y, m := util.PreviousMonth(ym.Year, ym.Month)
	return YearMonth{Year: y, Month: m}
}

// AddMonths moves n months forward (or backward for negative n)
func (ym YearMonth) AddMonths(n int) YearMonth {
	return YearMonthFromOrdinal(ym.Ordinal() + n)
}

func (ym YearMonth) Before(other YearMonth) bool {
	return ym.Ordinal() < other.Ordinal()
}

func (ym YearMonth) After(other YearMonth) bool {
	return ym.Ordinal() > other.Ordinal()
}

// Contains reports whether t falls inside the month (UTC calendar)
func (ym YearMonth) Contains(t time.Time) bool {
	start, end := util.MonthBoundaries(ym.Year, ym.Month)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(start) && !day.After(end)
}

// MonthRecord is the per-budget, per-month document. Raw transactions are the
// source of truth; the embedded MonthBalances are derived but persisted.
type MonthRecord struct {
	BudgetID                string       `json:"budgetId"`
	Year                    int          `json:"year"`
	Month                   int          `json:"month"`
	Ordinal                 int          `json:"ordinal"`
	Income                  []Income     `json:"income"`
	Expenses                []Expense    `json:"expenses"`
	Transfers               []Transfer   `json:"transfers"`
	Adjustments             []Adjustment `json:"adjustments"`
	AreAllocationsFinalized bool         `json:"areAllocationsFinalized"`
	MonthBalances

	Version   int64     `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// NewMonthRecord builds an empty record for a month that has no document yet
func NewMonthRecord(budgetID string, ym YearMonth) *MonthRecord {
	return &MonthRecord{
		BudgetID:    budgetID,
		Year:        ym.Year,
		Month:       ym.Month,
		Ordinal:     ym.Ordinal(),
		Income:      []Income{},
		Expenses:    []Expense{},
		Transfers:   []Transfer{},
		Adjustments: []Adjustment{},
	}
}

// YearMonth returns the record's month
func (m *MonthRecord) YearMonth() YearMonth {
	return YearMonth{Year: m.Year, Month: m.Month}
}

// Transactions returns the raw transaction lists of the month
func (m *MonthRecord) Transactions() MonthTransactions {
	return MonthTransactions{
		Income:      m.Income,
		Expenses:    m.Expenses,
		Transfers:   m.Transfers,
		Adjustments: m.Adjustments,
	}
}

// SetTransactions replaces the raw transaction lists of the month
func (m *MonthRecord) SetTransactions(t MonthTransactions) {
	m.Income = nonNil(t.Income)
	m.Expenses = nonNil(t.Expenses)
	m.Transfers = nonNil(t.Transfers)
	m.Adjustments = nonNil(t.Adjustments)
}

// Allocations returns the persisted allocation state of the month
func (m *MonthRecord) Allocations() MonthAllocations {
	amounts := make(map[string]decimal.Decimal, len(m.CategoryBalances))
	for _, cb := range m.CategoryBalances {
		amounts[cb.CategoryID] = cb.Allocated
	}
	return MonthAllocations{Finalized: m.AreAllocationsFinalized, Amounts: amounts}
}

// MonthRepository persists month records
type MonthRepository interface {
	Get(ctx context.Context, budgetID string, ym YearMonth) (*MonthRecord, error)
	// GetFresh bypasses any local cache
	GetFresh(ctx context.Context, budgetID string, ym YearMonth) (*MonthRecord, error)
	ListByBudget(ctx context.Context, budgetID string) ([]*MonthRecord, error)
	// SaveTransactions writes the raw transaction lists. A zero Version creates the record.
	SaveTransactions(ctx context.Context, month *MonthRecord) (*MonthRecord, error)
	// SaveBalances writes derived balances and the finalized flag, failing with
	// ErrConflict when the stored version no longer matches month.Version.
	SaveBalances(ctx context.Context, month *MonthRecord) (*MonthRecord, error)
	Delete(ctx context.Context, budgetID string, ym YearMonth) error
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// MonthStatus is one entry of a budget's month index
type MonthStatus struct {
	Month       YearMonth `json:"month"`
	Key         string    `json:"key"`
	NeedsRecalc bool      `json:"needsRecalc"`
}
