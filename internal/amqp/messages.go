package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
)

// RecalcMessage carries a recalculation request across the queue.
// The consumer re-reads the budget, so only identifiers travel.
type RecalcMessage struct {
	domain.RecalcRequest
	Timestamp time.Time `json:"timestamp"`
}

// NewRecalcMessage wraps a request for publishing
func NewRecalcMessage(req domain.RecalcRequest) *RecalcMessage {
	return &RecalcMessage{RecalcRequest: req, Timestamp: time.Now()}
}

// ToJSON converts the message to JSON bytes
func (m *RecalcMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecalcMessageFromJSON decodes and validates a message body
func RecalcMessageFromJSON(data []byte) (*RecalcMessage, error) {
	var msg RecalcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.BudgetID == "" {
		return nil, fmt.Errorf("%w: message has no budget id", domain.ErrInvalidInput)
	}
	switch msg.Mode {
	case "":
		msg.Mode = domain.RecalcModeForward
	case domain.RecalcModeForward, domain.RecalcModeAll:
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, msg.Mode)
	}
	return &msg, nil
}

// BudgetEventMessage carries a websocket event raised by a worker to the API
// processes holding the budget's websocket clients
type BudgetEventMessage struct {
	BudgetID string          `json:"budgetId"`
	Event    websocket.Event `json:"event"`
}

// NewBudgetEventMessage wraps an event for publishing
func NewBudgetEventMessage(budgetID string, event websocket.Event) *BudgetEventMessage {
	return &BudgetEventMessage{BudgetID: budgetID, Event: event}
}

// ToJSON converts the message to JSON bytes
func (m *BudgetEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BudgetEventMessageFromJSON decodes and validates a message body
func BudgetEventMessageFromJSON(data []byte) (*BudgetEventMessage, error) {
	var msg BudgetEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.BudgetID == "" || msg.Event.Type == "" {
		return nil, fmt.Errorf("%w: event message needs a budget id and an event type", domain.ErrInvalidInput)
	}
	return &msg, nil
}

// CancelMessage asks the worker running a job to stop it
type CancelMessage struct {
	BudgetID  string    `json:"budgetId"`
	JobID     string    `json:"jobId"`
	Timestamp time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m *CancelMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CancelMessageFromJSON decodes and validates a message body
func CancelMessageFromJSON(data []byte) (*CancelMessage, error) {
	var msg CancelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JobID == "" {
		return nil, fmt.Errorf("%w: cancel message has no job id", domain.ErrInvalidInput)
	}
	return &msg, nil
}
