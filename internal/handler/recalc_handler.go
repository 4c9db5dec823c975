package handler

import (
	"net/http"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/middleware"
	"github.com/dafibh/envelope/envelope-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// RecalcHandler exposes recalculation triggers and background job control
type RecalcHandler struct {
	cascade *service.CascadeService
	worker  *service.RecalcWorker
	queue   domain.RecalcQueue
}

// NewRecalcHandler creates a new RecalcHandler. A nil queue runs full-history
// jobs on the in-process worker.
func NewRecalcHandler(cascade *service.CascadeService, worker *service.RecalcWorker, queue domain.RecalcQueue) *RecalcHandler {
	return &RecalcHandler{
		cascade: cascade,
		worker:  worker,
		queue:   queue,
	}
}

// RecalculateRequest optionally forces the forward pass to start at a month
type RecalculateRequest struct {
	From string `json:"from"`
}

// RecalculateForward handles POST /api/v1/budgets/:budgetId/recalculate
// @Summary Recalculate forward
// @Description Recalculates every flagged month from the earliest one forward, or from an explicit month
// @Tags recalculation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param request body RecalculateRequest false "Optional start month"
// @Success 200 {object} domain.RecalcResult
// @Failure 409 {object} ProblemDetails
// @Failure 429 {object} ProblemDetails
// @Router /budgets/{budgetId}/recalculate [post]
func (h *RecalcHandler) RecalculateForward(c echo.Context) error {
	budgetID := c.Param(middleware.BudgetIDParam)

	var req RecalculateRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	var opts service.RecalcOptions
	if req.From != "" {
		from, err := domain.ParseYearMonth(req.From)
		if err != nil {
			return NewValidationError(c, "Invalid month", []ValidationError{
				{Field: "from", Message: "From must be a YYYY-MM month"},
			})
		}
		opts.From = &from
	}

	result, err := h.cascade.RecalculateForward(c.Request().Context(), budgetID, opts)
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to recalculate budget")
	}
	return c.JSON(http.StatusOK, result)
}

// RecalculateAll handles POST /api/v1/budgets/:budgetId/recalculate/all
// @Summary Recalculate all months
// @Description Queues a full-history recalculation, or runs it as a background job when no queue is configured. A queued job is marked remote and follows the worker's events.
// @Tags recalculation
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Success 202 {object} domain.RecalcJob
// @Failure 409 {object} ProblemDetails
// @Failure 429 {object} ProblemDetails
// @Router /budgets/{budgetId}/recalculate/all [post]
func (h *RecalcHandler) RecalculateAll(c echo.Context) error {
	budgetID := c.Param(middleware.BudgetIDParam)
	req := domain.RecalcRequest{
		RequestID: uuid.New().String(),
		BudgetID:  budgetID,
		Mode:      domain.RecalcModeAll,
	}

	if h.queue != nil {
		err := h.queue.RequestRecalc(c.Request().Context(), req)
		if err == nil {
			return c.JSON(http.StatusAccepted, h.worker.TrackQueued(req))
		}
		log.Warn().Err(err).Str("budget_id", budgetID).Msg("Recalc queue unavailable, running in process")
	}

	job, err := h.worker.Submit(req)
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to start recalculation")
	}
	return c.JSON(http.StatusAccepted, job)
}

// GetJob handles GET /api/v1/budgets/:budgetId/recalculate/jobs/:jobId
// @Summary Get a recalculation job
// @Tags recalculation
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param jobId path string true "Job ID"
// @Success 200 {object} domain.RecalcJob
// @Failure 404 {object} ProblemDetails
// @Router /budgets/{budgetId}/recalculate/jobs/{jobId} [get]
func (h *RecalcHandler) GetJob(c echo.Context) error {
	budgetID := c.Param(middleware.BudgetIDParam)
	job, err := h.budgetJob(budgetID, c.Param("jobId"))
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to get recalculation job")
	}
	return c.JSON(http.StatusOK, job)
}

// CancelJob handles DELETE /api/v1/budgets/:budgetId/recalculate/jobs/:jobId
// @Summary Cancel a recalculation job
// @Tags recalculation
// @Produce json
// @Security BearerAuth
// @Param budgetId path string true "Budget ID"
// @Param jobId path string true "Job ID"
// @Success 202 {object} domain.RecalcJob
// @Failure 404 {object} ProblemDetails
// @Router /budgets/{budgetId}/recalculate/jobs/{jobId} [delete]
func (h *RecalcHandler) CancelJob(c echo.Context) error {
	budgetID := c.Param(middleware.BudgetIDParam)
	job, err := h.budgetJob(budgetID, c.Param("jobId"))
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to cancel recalculation job")
	}
	if job.Remote {
		if h.queue == nil {
			return serviceError(c, domain.ErrJobNotFound, budgetID, "Failed to cancel recalculation job")
		}
		if err := h.queue.CancelRecalc(c.Request().Context(), budgetID, job.ID); err != nil {
			return serviceError(c, err, budgetID, "Failed to cancel recalculation job")
		}
		// the worker reports the cancellation through its events
		return c.JSON(http.StatusAccepted, job)
	}
	if err := h.worker.Cancel(job.ID); err != nil {
		return serviceError(c, err, budgetID, "Failed to cancel recalculation job")
	}

	job, err = h.worker.Job(job.ID)
	if err != nil {
		return serviceError(c, err, budgetID, "Failed to cancel recalculation job")
	}
	return c.JSON(http.StatusAccepted, job)
}

// budgetJob hides jobs of other budgets behind ErrJobNotFound
func (h *RecalcHandler) budgetJob(budgetID, jobID string) (*domain.RecalcJob, error) {
	job, err := h.worker.Job(jobID)
	if err != nil {
		return nil, err
	}
	if job.BudgetID != budgetID {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}
