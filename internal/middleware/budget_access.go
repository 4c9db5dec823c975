package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// BudgetIDParam is the route parameter carrying the budget id
const BudgetIDParam = "budgetId"

// BudgetLookup loads a budget by id
type BudgetLookup interface {
	Get(ctx context.Context, budgetID string) (*domain.Budget, error)
}

// BudgetAccess rejects requests from users who are not members of the budget in the path.
// Must run after Authenticate.
func BudgetAccess(budgets BudgetLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := GetAuth0ID(c)
			if userID == "" {
				return unauthorizedError(c, "missing user")
			}

			budgetID := c.Param(BudgetIDParam)
			budget, err := budgets.Get(c.Request().Context(), budgetID)
			if err != nil {
				if errors.Is(err, domain.ErrBudgetNotFound) || errors.Is(err, domain.ErrNotFound) {
					return notFoundError(c, "budget not found")
				}
				log.Error().Err(err).Str("budget_id", budgetID).Msg("Budget lookup failed")
				return problem(c, http.StatusInternalServerError, errorTypeInternal, "Internal Server Error", "")
			}

			if !budget.HasUser(userID) {
				event := log.Warn().Str("budget_id", budgetID).Str("auth0_id", userID)
				if custom := GetCustomClaims(c); custom != nil && custom.Email != "" {
					event = event.Str("email", custom.Email)
				}
				event.Msg("Budget access denied")
				return forbiddenError(c, "no access to budget")
			}

			return next(c)
		}
	}
}
