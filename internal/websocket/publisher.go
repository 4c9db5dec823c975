package websocket

import "github.com/rs/zerolog/log"

// EventPublisher defines the interface for publishing events to WebSocket clients
type EventPublisher interface {
	// Publish sends an event to all clients connected to the specified budget
	Publish(budgetID string, event Event)
}

var _ EventPublisher = (*Hub)(nil)

// Publish broadcasts the event and keeps the hub's view of running recalculations current
func (h *Hub) Publish(budgetID string, event Event) {
	data, err := event.ToJSON()
	if err != nil {
		log.Error().Err(err).Str("budget_id", budgetID).Str("event_type", event.Type).Msg("Failed to serialize event")
		return
	}
	h.track(budgetID, event.Type, data)
	h.send(budgetID, event.Type, data)
}
