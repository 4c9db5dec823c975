package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHub_Implements_EventPublisher(t *testing.T) {
	// Compile-time check that Hub implements EventPublisher
	var _ EventPublisher = (*Hub)(nil)
}

func TestHub_Publish(t *testing.T) {
	hub := NewHub()

	// Create mock client
	client := newMockClient("client-1", "b1")
	hub.Register(client)

	// Publish event via EventPublisher interface
	var publisher EventPublisher = hub
	event := RecalcProgress(map[string]interface{}{"phase": "processing-months"})
	publisher.Publish("b1", event)

	// Verify client received the event
	messages := client.GetMessages()
	assert.Len(t, messages, 1)
}
