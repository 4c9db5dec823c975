package websocket

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClientClosed is returned when attempting to send to a closed client
var ErrClientClosed = errors.New("client is closed")

// ClientInterface defines the interface that clients must implement
type ClientInterface interface {
	ID() string
	BudgetID() string
	Send(data []byte) error
	Close() error
}

// Hub fans budget events out to the clients watching that budget. It keeps the
// latest recalc.progress frame of every budget with a running job, so a client
// that connects mid-run starts from the current progress rather than a blank bar.
type Hub struct {
	mu       sync.RWMutex
	budgets  map[string]map[string]ClientInterface
	progress map[string][]byte
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		budgets:  make(map[string]map[string]ClientInterface),
		progress: make(map[string][]byte),
	}
}

// Register adds a client under its budget and replays any in-flight progress
func (h *Hub) Register(client ClientInterface) {
	budgetID := client.BudgetID()

	h.mu.Lock()
	if h.budgets[budgetID] == nil {
		h.budgets[budgetID] = make(map[string]ClientInterface)
	}
	h.budgets[budgetID][client.ID()] = client
	replay := h.progress[budgetID]
	h.mu.Unlock()

	if replay != nil {
		if err := client.Send(replay); err != nil {
			log.Debug().Err(err).Str("client_id", client.ID()).Msg("Failed to replay recalc progress")
		}
	}

	log.Debug().
		Str("budget_id", budgetID).
		Str("client_id", client.ID()).
		Bool("replayed_progress", replay != nil).
		Msg("WebSocket client registered")
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client ClientInterface) {
	budgetID := client.BudgetID()

	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.budgets[budgetID]
	if !ok {
		return
	}
	if _, exists := clients[client.ID()]; !exists {
		return
	}
	delete(clients, client.ID())
	if len(clients) == 0 {
		delete(h.budgets, budgetID)
	}

	log.Debug().
		Str("budget_id", budgetID).
		Str("client_id", client.ID()).
		Msg("WebSocket client unregistered")
}

// send writes a frame to every client watching a budget. Sends never block, so
// frames reach each client in publish order; clients that fall behind are dropped.
func (h *Hub) send(budgetID, eventType string, data []byte) {
	h.mu.RLock()
	clients := make([]ClientInterface, 0, len(h.budgets[budgetID]))
	for _, client := range h.budgets[budgetID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		err := client.Send(data)
		if err == nil {
			continue
		}
		log.Warn().
			Err(err).
			Str("budget_id", budgetID).
			Str("client_id", client.ID()).
			Msg("Failed to send to client")
		if errors.Is(err, ErrSlowClient) {
			h.Unregister(client)
			client.Close()
		}
	}

	if len(clients) > 0 {
		log.Debug().
			Str("budget_id", budgetID).
			Str("event_type", eventType).
			Int("client_count", len(clients)).
			Msg("Broadcast event")
	}
}

// track remembers the latest progress frame of a running recalculation and
// forgets it once the job ends
func (h *Hub) track(budgetID, eventType string, data []byte) {
	switch eventType {
	case recalcProgressType:
		h.mu.Lock()
		h.progress[budgetID] = data
		h.mu.Unlock()
	case recalcCompletedType, recalcFailedType:
		h.mu.Lock()
		delete(h.progress, budgetID)
		h.mu.Unlock()
	}
}

// ClientCount returns the number of clients watching a budget
func (h *Hub) ClientCount(budgetID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.budgets[budgetID])
}

// TotalClientCount returns the total number of connected clients across all budgets
func (h *Hub) TotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.budgets {
		total += len(clients)
	}
	return total
}
