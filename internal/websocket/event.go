package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents what happened to an entity
type EventType string

const (
	EventTypeUpdated   EventType = "updated"
	EventTypeDeleted   EventType = "deleted"
	EventTypeDirty     EventType = "dirty"
	EventTypeProgress  EventType = "progress"
	EventTypeCompleted EventType = "completed"
	EventTypeFailed    EventType = "failed"
	EventTypeFinalized EventType = "finalized"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeMonth        EntityType = "month"
	EntityTypeTransactions EntityType = "transactions"
	EntityTypeAllocations  EntityType = "allocations"
	EntityTypeRecalc       EntityType = "recalc"
	EntityTypeBudget       EntityType = "budget"
)

const (
	recalcProgressType  = string(EntityTypeRecalc) + "." + string(EventTypeProgress)
	recalcCompletedType = string(EntityTypeRecalc) + "." + string(EventTypeCompleted)
	recalcFailedType    = string(EntityTypeRecalc) + "." + string(EventTypeFailed)
)

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "recalc.progress"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "recalc"
	Payload   interface{} `json:"payload"`   // Entity data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionsUpdated creates a transactions.updated event
func TransactionsUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeTransactions, payload)
}

// MonthsDirty creates a month.dirty event
func MonthsDirty(payload interface{}) Event {
	return NewEvent(EventTypeDirty, EntityTypeMonth, payload)
}

// AllocationsFinalized creates an allocations.finalized event
func AllocationsFinalized(payload interface{}) Event {
	return NewEvent(EventTypeFinalized, EntityTypeAllocations, payload)
}

// AllocationsDeleted creates an allocations.deleted event
func AllocationsDeleted(payload interface{}) Event {
	return NewEvent(EventTypeDeleted, EntityTypeAllocations, payload)
}

// RecalcProgress creates a recalc.progress event
func RecalcProgress(payload interface{}) Event {
	return NewEvent(EventTypeProgress, EntityTypeRecalc, payload)
}

// RecalcCompleted creates a recalc.completed event
func RecalcCompleted(payload interface{}) Event {
	return NewEvent(EventTypeCompleted, EntityTypeRecalc, payload)
}

// RecalcFailed creates a recalc.failed event
func RecalcFailed(payload interface{}) Event {
	return NewEvent(EventTypeFailed, EntityTypeRecalc, payload)
}

// BudgetBalancesUpdated creates a budget.updated event after denormalized balances change
func BudgetBalancesUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeBudget, payload)
}
