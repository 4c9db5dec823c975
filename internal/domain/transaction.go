package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindIncome     TransactionKind = "income"
	TransactionKindExpense    TransactionKind = "expense"
	TransactionKindTransfer   TransactionKind = "transfer"
	TransactionKindAdjustment TransactionKind = "adjustment"
)

// Income is money arriving in an account. It funds the ready-to-assign pool,
// not a category.
type Income struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	AccountID   string          `json:"accountId"`
	Amount      decimal.Decimal `json:"amount"`
	Payee       string          `json:"payee,omitempty"`
	Description string          `json:"description,omitempty"`
	Cleared     bool            `json:"cleared"`
}

// Expense is money leaving an account against a category. Amount is a positive magnitude.
type Expense struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	AccountID   string          `json:"accountId"`
	CategoryID  string          `json:"categoryId"`
	Amount      decimal.Decimal `json:"amount"`
	Payee       string          `json:"payee,omitempty"`
	Description string          `json:"description,omitempty"`
	Cleared     bool            `json:"cleared"`
}

// Transfer moves money between accounts, between categories, or both.
// Either side of a pair may be empty.
type Transfer struct {
	ID             string          `json:"id"`
	Date           time.Time       `json:"date"`
	FromAccountID  string          `json:"fromAccountId,omitempty"`
	ToAccountID    string          `json:"toAccountId,omitempty"`
	FromCategoryID string          `json:"fromCategoryId,omitempty"`
	ToCategoryID   string          `json:"toCategoryId,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description,omitempty"`
	Cleared        bool            `json:"cleared"`
}

// Adjustment is a signed correction to an account, a category, or both
type Adjustment struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	AccountID   string          `json:"accountId,omitempty"`
	CategoryID  string          `json:"categoryId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Cleared     bool            `json:"cleared"`
}

// MonthTransactions groups the raw transaction arrays of one month
type MonthTransactions struct {
	Income      []Income     `json:"income"`
	Expenses    []Expense    `json:"expenses"`
	Transfers   []Transfer   `json:"transfers"`
	Adjustments []Adjustment `json:"adjustments"`
}

// Count returns the total number of transactions
func (t MonthTransactions) Count() int {
	return len(t.Income) + len(t.Expenses) + len(t.Transfers) + len(t.Adjustments)
}

// Append returns a copy of t with other's transactions appended
func (t MonthTransactions) Append(other MonthTransactions) MonthTransactions {
	return MonthTransactions{
		Income:      append(append([]Income{}, t.Income...), other.Income...),
		Expenses:    append(append([]Expense{}, t.Expenses...), other.Expenses...),
		Transfers:   append(append([]Transfer{}, t.Transfers...), other.Transfers...),
		Adjustments: append(append([]Adjustment{}, t.Adjustments...), other.Adjustments...),
	}
}

// Remove returns a copy of t without the transaction with the given id
func (t MonthTransactions) Remove(id string) (MonthTransactions, bool) {
	out := MonthTransactions{
		Income:      make([]Income, 0, len(t.Income)),
		Expenses:    make([]Expense, 0, len(t.Expenses)),
		Transfers:   make([]Transfer, 0, len(t.Transfers)),
		Adjustments: make([]Adjustment, 0, len(t.Adjustments)),
	}
	found := false
	for _, tx := range t.Income {
		if tx.ID == id {
			found = true
			continue
		}
		out.Income = append(out.Income, tx)
	}
	for _, tx := range t.Expenses {
		if tx.ID == id {
			found = true
			continue
		}
		out.Expenses = append(out.Expenses, tx)
	}
	for _, tx := range t.Transfers {
		if tx.ID == id {
			found = true
			continue
		}
		out.Transfers = append(out.Transfers, tx)
	}
	for _, tx := range t.Adjustments {
		if tx.ID == id {
			found = true
			continue
		}
		out.Adjustments = append(out.Adjustments, tx)
	}
	return out, found
}

// Validate rejects transactions that reference unknown accounts or categories,
// carry negative magnitudes, or fall outside the month. Adjustments may be negative.
func (t MonthTransactions) Validate(ym YearMonth, budget *Budget) error {
	checkAccount := func(id string, required bool) error {
		if id == "" {
			if required {
				return fmt.Errorf("%w: account is required", ErrInvalidInput)
			}
			return nil
		}
		if _, ok := budget.Accounts[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
		}
		return nil
	}
	checkCategory := func(id string) error {
		if id == "" {
			return nil
		}
		if _, ok := budget.Categories[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, id)
		}
		return nil
	}
	checkCommon := func(id string, date time.Time, amount decimal.Decimal, signed bool) error {
		if id == "" {
			return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
		}
		if !signed && amount.IsNegative() {
			return fmt.Errorf("%w: transaction %s", ErrInvalidAmount, id)
		}
		if !ym.Contains(date) {
			return fmt.Errorf("%w: transaction %s dated %s is outside %s", ErrInvalidInput, id, date.Format("2006-01-02"), ym)
		}
		return nil
	}

	seen := make(map[string]bool, t.Count())
	unique := func(id string) error {
		if seen[id] {
			return fmt.Errorf("%w: duplicate transaction id %s", ErrInvalidInput, id)
		}
		seen[id] = true
		return nil
	}

	for _, tx := range t.Income {
		if err := firstErr(checkCommon(tx.ID, tx.Date, tx.Amount, false), unique(tx.ID), checkAccount(tx.AccountID, true)); err != nil {
			return err
		}
	}
	for _, tx := range t.Expenses {
		if err := firstErr(checkCommon(tx.ID, tx.Date, tx.Amount, false), unique(tx.ID), checkAccount(tx.AccountID, true), checkCategory(tx.CategoryID)); err != nil {
			return err
		}
	}
	for _, tx := range t.Transfers {
		if err := firstErr(checkCommon(tx.ID, tx.Date, tx.Amount, false), unique(tx.ID),
			checkAccount(tx.FromAccountID, false), checkAccount(tx.ToAccountID, false),
			checkCategory(tx.FromCategoryID), checkCategory(tx.ToCategoryID)); err != nil {
			return err
		}
		if tx.FromAccountID == "" && tx.ToAccountID == "" && tx.FromCategoryID == "" && tx.ToCategoryID == "" {
			return fmt.Errorf("%w: transfer %s has no source or destination", ErrInvalidInput, tx.ID)
		}
	}
	for _, tx := range t.Adjustments {
		if err := firstErr(checkCommon(tx.ID, tx.Date, tx.Amount, true), unique(tx.ID),
			checkAccount(tx.AccountID, false), checkCategory(tx.CategoryID)); err != nil {
			return err
		}
		if tx.AccountID == "" && tx.CategoryID == "" {
			return fmt.Errorf("%w: adjustment %s has no account or category", ErrInvalidInput, tx.ID)
		}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
