package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error types
const (
	ErrorTypeValidation   = "https://envelope.app/errors/validation"
	ErrorTypeNotFound     = "https://envelope.app/errors/not-found"
	ErrorTypeUnauthorized = "https://envelope.app/errors/unauthorized"
	ErrorTypeForbidden    = "https://envelope.app/errors/forbidden"
	ErrorTypeConflict     = "https://envelope.app/errors/conflict"
	ErrorTypeInternal     = "https://envelope.app/errors/internal"
)

// NewValidationError creates a validation error response
func NewValidationError(c echo.Context, detail string, errors []ValidationError) error {
	return c.JSON(http.StatusBadRequest, ProblemDetails{
		Type:     ErrorTypeValidation,
		Title:    "Validation Error",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Errors:   errors,
	})
}

// NewNotFoundError creates a not found error response
func NewNotFoundError(c echo.Context, detail string) error {
	return c.JSON(http.StatusNotFound, ProblemDetails{
		Type:     ErrorTypeNotFound,
		Title:    "Not Found",
		Status:   http.StatusNotFound,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewUnauthorizedError creates an unauthorized error response
func NewUnauthorizedError(c echo.Context, detail string) error {
	return c.JSON(http.StatusUnauthorized, ProblemDetails{
		Type:     ErrorTypeUnauthorized,
		Title:    "Unauthorized",
		Status:   http.StatusUnauthorized,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewForbiddenError creates a forbidden error response
func NewForbiddenError(c echo.Context, detail string) error {
	return c.JSON(http.StatusForbidden, ProblemDetails{
		Type:     ErrorTypeForbidden,
		Title:    "Forbidden",
		Status:   http.StatusForbidden,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewConflictError creates a conflict error response
func NewConflictError(c echo.Context, detail string) error {
	return c.JSON(http.StatusConflict, ProblemDetails{
		Type:     ErrorTypeConflict,
		Title:    "Conflict",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewInternalError creates an internal error response
func NewInternalError(c echo.Context, detail string) error {
	return c.JSON(http.StatusInternalServerError, ProblemDetails{
		Type:     ErrorTypeInternal,
		Title:    "Internal Server Error",
		Status:   http.StatusInternalServerError,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// serviceError maps a service error onto a problem response. Unexpected errors
// are logged with the budget id and answered with a generic message.
func serviceError(c echo.Context, err error, budgetID, failure string) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownCategory),
		errors.Is(err, domain.ErrUnknownAccount):
		return NewValidationError(c, err.Error(), nil)
	case errors.Is(err, domain.ErrBudgetNotFound),
		errors.Is(err, domain.ErrMonthNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrNotFound):
		return NewNotFoundError(c, err.Error())
	case errors.Is(err, domain.ErrInvalidAllocationState),
		errors.Is(err, domain.ErrRecalcInProgress),
		errors.Is(err, domain.ErrConflict):
		return NewConflictError(c, err.Error())
	}

	event := log.Error().Err(err).Str("budget_id", budgetID)
	var recalcErr *domain.RecalcError
	if errors.As(err, &recalcErr) {
		event = event.Str("month", recalcErr.Month.Key()).Str("phase", string(recalcErr.Phase))
	}
	event.Msg(failure)
	return NewInternalError(c, failure)
}

// parseYearMonth reads the :year and :month route parameters
func parseYearMonth(c echo.Context) (domain.YearMonth, []ValidationError) {
	var errs []ValidationError
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < domain.MinYear || year > domain.MaxYear {
		errs = append(errs, ValidationError{Field: "year", Message: "Year must be between 1900 and 2200"})
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil || month < 1 || month > 12 {
		errs = append(errs, ValidationError{Field: "month", Message: "Month must be between 1 and 12"})
	}
	if len(errs) > 0 {
		return domain.YearMonth{}, errs
	}
	return domain.YearMonth{Year: year, Month: month}, nil
}
