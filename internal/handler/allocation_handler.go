package handler

import (
	"context"
	"net/http"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/middleware"
	"github.com/dafibh/envelope/envelope-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// AllocationHandler drives the per-month allocation state machine
type AllocationHandler struct {
	allocationService *service.AllocationService
}

// NewAllocationHandler creates a new AllocationHandler
func NewAllocationHandler(allocationService *service.AllocationService) *AllocationHandler {
	return &AllocationHandler{
		allocationService: allocationService,
	}
}

// SaveDraftRequest carries fixed allocation amounts by category id
type SaveDraftRequest struct {
	Amounts map[string]decimal.Decimal `json:"amounts"`
}

type allocationTransition func(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.MonthAllocationView, error)

// GetAllocations handles GET /api/v1/budgets/:budgetId/months/:year/:month/allocations
// @Summary Get resolved allocations and their state
// @Tags allocations
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 200 {object} domain.MonthAllocationView
// @Router /budgets/{budgetId}/months/{year}/{month}/allocations [get]
func (h *AllocationHandler) GetAllocations(c echo.Context) error {
	return h.transition(c, h.allocationService.GetAllocations, "Failed to get allocations")
}

// SaveDraft handles PUT /api/v1/budgets/:budgetId/months/:year/:month/allocations/draft
// @Summary Save fixed allocation amounts as a draft
// @Tags allocations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Param request body SaveDraftRequest true "Draft amounts"
// @Success 200 {object} domain.MonthAllocationView
// @Failure 400 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /budgets/{budgetId}/months/{year}/{month}/allocations/draft [put]
func (h *AllocationHandler) SaveDraft(c echo.Context) error {
	budgetID := c.Param(middleware.BudgetIDParam)
	ym, verrs := parseYearMonth(c)
	if verrs != nil {
		return NewValidationError(c, "Invalid month", verrs)
	}

	var req SaveDraftRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.Amounts == nil {
		return NewValidationError(c, "Amounts are required", []ValidationError{
			{Field: "amounts", Message: "Amounts are required"},
		})
	}

	view, err := h.allocationService.SaveDraft(c.Request().Context(), budgetID, ym, req.Amounts)
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to save allocation draft")
	}
	return c.JSON(http.StatusOK, view)
}

// BeginEdit handles POST /api/v1/budgets/:budgetId/months/:year/:month/allocations/edit
// @Summary Reopen finalized allocations for editing
// @Tags allocations
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 200 {object} domain.MonthAllocationView
// @Failure 409 {object} ProblemDetails
// @Router /budgets/{budgetId}/months/{year}/{month}/allocations/edit [post]
func (h *AllocationHandler) BeginEdit(c echo.Context) error {
	return h.transition(c, h.allocationService.BeginEdit, "Failed to reopen allocations")
}

// CancelDraft handles DELETE /api/v1/budgets/:budgetId/months/:year/:month/allocations/draft
// @Summary Discard the draft
// @Tags allocations
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 200 {object} domain.MonthAllocationView
// @Failure 409 {object} ProblemDetails
// @Router /budgets/{budgetId}/months/{year}/{month}/allocations/draft [delete]
func (h *AllocationHandler) CancelDraft(c echo.Context) error {
	return h.transition(c, h.allocationService.Cancel, "Failed to cancel allocation draft")
}

// Finalize handles POST /api/v1/budgets/:budgetId/months/:year/:month/allocations/finalize
// @Summary Persist the draft as the month's allocations
// @Tags allocations
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 200 {object} domain.MonthAllocationView
// @Failure 409 {object} ProblemDetails
// @Router /budgets/{budgetId}/months/{year}/{month}/allocations/finalize [post]
func (h *AllocationHandler) Finalize(c echo.Context) error {
	return h.transition(c, h.allocationService.Finalize, "Failed to finalize allocations")
}

// DeleteAllocations handles DELETE /api/v1/budgets/:budgetId/months/:year/:month/allocations
// @Summary Delete finalized allocations
// @Tags allocations
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 200 {object} domain.MonthAllocationView
// @Failure 409 {object} ProblemDetails
// @Router /budgets/{budgetId}/months/{year}/{month}/allocations [delete]
func (h *AllocationHandler) DeleteAllocations(c echo.Context) error {
	return h.transition(c, h.allocationService.Delete, "Failed to delete allocations")
}

func (h *AllocationHandler) transition(c echo.Context, fn allocationTransition, failure string) error {
	budgetID := c.Param(middleware.BudgetIDParam)
	ym, verrs := parseYearMonth(c)
	if verrs != nil {
		return NewValidationError(c, "Invalid month", verrs)
	}

	view, err := fn(c.Request().Context(), budgetID, ym)
	if err != nil {
		return serviceError(c, err, budgetID, failure)
	}
	return c.JSON(http.StatusOK, view)
}
