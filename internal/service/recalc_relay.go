package service

import (
	"encoding/json"
	"fmt"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// RecalcRelay takes events raised by recalculation workers in other processes,
// passes them to local websocket clients and keeps the jobs they describe
// queryable through the local worker
type RecalcRelay struct {
	worker    *RecalcWorker
	publisher websocket.EventPublisher
	logger    zerolog.Logger
}

// NewRecalcRelay creates a new RecalcRelay
func NewRecalcRelay(worker *RecalcWorker, publisher websocket.EventPublisher, logger zerolog.Logger) *RecalcRelay {
	return &RecalcRelay{
		worker:    worker,
		publisher: publisher,
		logger:    logger.With().Str("component", "recalc_relay").Logger(),
	}
}

// Relay handles one event. Its signature matches amqp.BudgetEventHandler.
func (r *RecalcRelay) Relay(budgetID string, event websocket.Event) {
	r.publisher.Publish(budgetID, event)
	if event.Entity != websocket.EntityTypeRecalc {
		return
	}

	job, err := jobFromPayload(event.Payload)
	if err != nil {
		r.logger.Warn().Err(err).Str("budget_id", budgetID).Str("event_type", event.Type).Msg("Recalc event without a usable job")
		return
	}
	if job.BudgetID != budgetID {
		r.logger.Warn().Str("budget_id", budgetID).Str("job_budget_id", job.BudgetID).Msg("Recalc event for another budget")
		return
	}
	r.worker.Observe(*job)
}

// jobFromPayload accepts either a bare job or the {"job": ..., "result": ...}
// shape of a completion event
func jobFromPayload(payload interface{}) (*domain.RecalcJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Job *domain.RecalcJob `json:"job"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Job != nil {
		return wrapped.Job, nil
	}
	var job domain.RecalcJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, fmt.Errorf("%w: recalc event has no job id", domain.ErrInvalidInput)
	}
	return &job, nil
}
