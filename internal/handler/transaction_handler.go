package handler

import (
	"context"
	"net/http"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/middleware"
	"github.com/dafibh/envelope/envelope-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// TransactionHandler handles raw transaction HTTP requests
type TransactionHandler struct {
	transactionService *service.TransactionService
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

// GetTransactions handles GET /api/v1/budgets/:budgetId/months/:year/:month/transactions
// @Summary Get a month's raw transactions
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 200 {object} domain.MonthTransactions
// @Router /budgets/{budgetId}/months/{year}/{month}/transactions [get]
func (h *TransactionHandler) GetTransactions(c echo.Context) error {
	budgetID := c.Param(middleware.BudgetIDParam)
	ym, verrs := parseYearMonth(c)
	if verrs != nil {
		return NewValidationError(c, "Invalid month", verrs)
	}

	txs, err := h.transactionService.GetTransactions(c.Request().Context(), budgetID, ym)
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to get transactions")
	}
	return c.JSON(http.StatusOK, txs)
}

// ReplaceTransactions handles PUT /api/v1/budgets/:budgetId/months/:year/:month/transactions
// @Summary Replace a month's transactions
// @Description Replaces the month's transactions and flags it and every later month for recalculation
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Param request body domain.MonthTransactions true "Transactions"
// @Success 200 {object} domain.MonthTransactions
// @Failure 400 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /budgets/{budgetId}/months/{year}/{month}/transactions [put]
func (h *TransactionHandler) ReplaceTransactions(c echo.Context) error {
	return h.write(c, h.transactionService.ReplaceTransactions)
}

// AddTransactions handles POST /api/v1/budgets/:budgetId/months/:year/:month/transactions
// @Summary Append transactions to a month
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Param request body domain.MonthTransactions true "Transactions"
// @Success 200 {object} domain.MonthTransactions
// @Failure 400 {object} ProblemDetails
// @Router /budgets/{budgetId}/months/{year}/{month}/transactions [post]
func (h *TransactionHandler) AddTransactions(c echo.Context) error {
	return h.write(c, h.transactionService.AddTransactions)
}

// DeleteTransaction handles DELETE /api/v1/budgets/:budgetId/months/:year/:month/transactions/:transactionId
// @Summary Delete one transaction
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Param transactionId path string true "Transaction ID"
// @Success 200 {object} domain.MonthTransactions
// @Failure 404 {object} ProblemDetails
// @Router /budgets/{budgetId}/months/{year}/{month}/transactions/{transactionId} [delete]
func (h *TransactionHandler) DeleteTransaction(c echo.Context) error {
	budgetID := c.Param(middleware.BudgetIDParam)
	ym, verrs := parseYearMonth(c)
	if verrs != nil {
		return NewValidationError(c, "Invalid month", verrs)
	}

	month, err := h.transactionService.DeleteTransaction(c.Request().Context(), budgetID, ym, c.Param("transactionId"))
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to delete transaction")
	}
	return c.JSON(http.StatusOK, month.Transactions())
}

type transactionWriter func(ctx context.Context, budgetID string, ym domain.YearMonth, txs domain.MonthTransactions) (*domain.MonthRecord, error)

func (h *TransactionHandler) write(c echo.Context, fn transactionWriter) error {
	budgetID := c.Param(middleware.BudgetIDParam)
	ym, verrs := parseYearMonth(c)
	if verrs != nil {
		return NewValidationError(c, "Invalid month", verrs)
	}

	var req domain.MonthTransactions
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	month, err := fn(c.Request().Context(), budgetID, ym, req)
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to save transactions")
	}
	return c.JSON(http.StatusOK, month.Transactions())
}
