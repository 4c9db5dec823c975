package handler

import (
	"net/http"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/middleware"
	"github.com/dafibh/envelope/envelope-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// MonthHandler handles month balance HTTP requests
type MonthHandler struct {
	monthService *service.MonthService
}

// NewMonthHandler creates a new MonthHandler
func NewMonthHandler(monthService *service.MonthService) *MonthHandler {
	return &MonthHandler{
		monthService: monthService,
	}
}

// MonthResponse is a month record with its computed balances
type MonthResponse struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	*domain.MonthRecord
}

// DeletedMonthsResponse lists the months removed by a cleanup
type DeletedMonthsResponse struct {
	Deleted []string `json:"deleted"`
}

// GetAllMonths handles GET /api/v1/budgets/:budgetId/months
// @Summary List stored months
// @Tags months
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Success 200 {array} domain.MonthStatus
// @Failure 403 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /budgets/{budgetId}/months [get]
func (h *MonthHandler) GetAllMonths(c echo.Context) error {
	budgetID := c.Param(middleware.BudgetIDParam)

	months, err := h.monthService.ListMonths(c.Request().Context(), budgetID)
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to list months")
	}
	return c.JSON(http.StatusOK, months)
}

// GetByYearMonth handles GET /api/v1/budgets/:budgetId/months/:year/:month.
// A month flagged for recalculation is recalculated before it is returned.
// @Summary Get month balances
// @Description Returns the month with its balances, recalculating first if it is flagged
// @Tags months
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 200 {object} MonthResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /budgets/{budgetId}/months/{year}/{month} [get]
func (h *MonthHandler) GetByYearMonth(c echo.Context) error {
	budgetID := c.Param(middleware.BudgetIDParam)
	ym, verrs := parseYearMonth(c)
	if verrs != nil {
		return NewValidationError(c, "Invalid month", verrs)
	}

	month, err := h.monthService.GetMonthBalances(c.Request().Context(), budgetID, ym)
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to get month balances")
	}
	return c.JSON(http.StatusOK, toMonthResponse(month))
}

// MarkDirty handles POST /api/v1/budgets/:budgetId/months/:year/:month/dirty
// @Summary Flag a month and every later month for recalculation
// @Tags months
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 204
// @Failure 400 {object} ProblemDetails
// @Router /budgets/{budgetId}/months/{year}/{month}/dirty [post]
func (h *MonthHandler) MarkDirty(c echo.Context) error {
	budgetID := c.Param(middleware.BudgetIDParam)
	ym, verrs := parseYearMonth(c)
	if verrs != nil {
		return NewValidationError(c, "Invalid month", verrs)
	}

	if err := h.monthService.MarkDirtyFrom(c.Request().Context(), budgetID, ym); err != nil {
		return serviceError(c, err, budgetID, "Failed to mark months for recalculation")
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteMonthsAfter handles DELETE /api/v1/budgets/:budgetId/months/after/:year/:month
// @Summary Delete every month after the given one
// @Tags months
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 200 {object} DeletedMonthsResponse
// @Router /budgets/{budgetId}/months/after/{year}/{month} [delete]
func (h *MonthHandler) DeleteMonthsAfter(c echo.Context) error {
	budgetID := c.Param(middleware.BudgetIDParam)
	ym, verrs := parseYearMonth(c)
	if verrs != nil {
		return NewValidationError(c, "Invalid month", verrs)
	}

	deleted, err := h.monthService.DeleteMonthsAfter(c.Request().Context(), budgetID, ym)
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to delete months")
	}

	response := DeletedMonthsResponse{Deleted: make([]string, len(deleted))}
	for i, d := range deleted {
		response.Deleted[i] = d.Key()
	}
	return c.JSON(http.StatusOK, response)
}

func toMonthResponse(m *domain.MonthRecord) MonthResponse {
	ym := m.YearMonth()
	return MonthResponse{Key: ym.Key(), Label: ym.Label(), MonthRecord: m}
}
