package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrNotFound               = errors.New("resource not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrInternalError          = errors.New("internal error")
	ErrBudgetNotFound         = errors.New("budget not found")
	ErrMonthNotFound          = errors.New("month not found")
	ErrInvalidAmount          = errors.New("amount must be a non-negative number")
	ErrUnknownCategory        = errors.New("unknown category")
	ErrUnknownAccount         = errors.New("unknown account")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidAllocationState = errors.New("operation not allowed in current allocation state")
	ErrConflict               = errors.New("document was modified concurrently")
	ErrStoreUnavailable       = errors.New("document store unavailable")
	ErrRecalcInProgress       = errors.New("recalculation already in progress for budget")
	ErrJobNotFound            = errors.New("recalculation job not found")
)

// RecalcError carries enough context for a caller to resume a failed recalculation.
type RecalcError struct {
	BudgetID string
	Month    YearMonth
	Phase    RecalcPhase
	Err      error
}

func (e *RecalcError) Error() string {
	return fmt.Sprintf("recalculate budget %s: %s at %s: %v", e.BudgetID, e.Phase, e.Month, e.Err)
}

func (e *RecalcError) Unwrap() error {
	return e.Err
}
