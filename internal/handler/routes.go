package handler

import (
	"github.com/dafibh/envelope/envelope-backend/internal/middleware"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Handlers groups the route handlers registered by RegisterRoutes
type Handlers struct {
	Month       *MonthHandler
	Transaction *TransactionHandler
	Allocation  *AllocationHandler
	Recalc      *RecalcHandler
	WebSocket   *WebSocketHandler
}

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, budgets middleware.BudgetLookup, rateLimiter *middleware.RateLimiter, h Handlers) {
	// API documentation
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.GET("/openapi.json", ServeOpenAPI3Spec)

	// API version 1
	api := e.Group("/api/v1")

	// Websocket authenticates with a query token, browsers cannot set headers on upgrade
	api.GET("/budgets/:budgetId/ws", h.WebSocket.HandleWS)

	// Budget routes (protected, members only)
	budget := api.Group("/budgets/:budgetId")
	budget.Use(authMiddleware.Authenticate(), middleware.BudgetAccess(budgets))

	// Month routes
	budget.GET("/months", h.Month.GetAllMonths)
	budget.GET("/months/:year/:month", h.Month.GetByYearMonth)
	budget.POST("/months/:year/:month/dirty", h.Month.MarkDirty)
	budget.DELETE("/months/after/:year/:month", h.Month.DeleteMonthsAfter)

	// Transaction routes
	budget.GET("/months/:year/:month/transactions", h.Transaction.GetTransactions)
	budget.PUT("/months/:year/:month/transactions", h.Transaction.ReplaceTransactions)
	budget.POST("/months/:year/:month/transactions", h.Transaction.AddTransactions)
	budget.DELETE("/months/:year/:month/transactions/:transactionId", h.Transaction.DeleteTransaction)

	// Allocation routes
	budget.GET("/months/:year/:month/allocations", h.Allocation.GetAllocations)
	budget.PUT("/months/:year/:month/allocations/draft", h.Allocation.SaveDraft)
	budget.DELETE("/months/:year/:month/allocations/draft", h.Allocation.CancelDraft)
	budget.POST("/months/:year/:month/allocations/edit", h.Allocation.BeginEdit)
	budget.POST("/months/:year/:month/allocations/finalize", h.Allocation.Finalize)
	budget.DELETE("/months/:year/:month/allocations", h.Allocation.DeleteAllocations)

	// Recalculation routes, triggers are rate limited per user
	limited := middleware.RateLimitMiddleware(rateLimiter)
	budget.POST("/recalculate", h.Recalc.RecalculateForward, limited)
	budget.POST("/recalculate/all", h.Recalc.RecalculateAll, limited)
	budget.GET("/recalculate/jobs/:jobId", h.Recalc.GetJob)
	budget.DELETE("/recalculate/jobs/:jobId", h.Recalc.CancelJob)
}
