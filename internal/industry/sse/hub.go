package sse

import (
	"fmt"
	"log"
	"sync"
)

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client represents a connected SSE client subscribed to one plan
type Client struct {
	ID     string
	PlanID string
	Events chan Event
}

// Hub manages all SSE client connections
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// GlobalHub is the singleton SSE Hub instance
var GlobalHub = NewHub()

// NewHub creates a new SSE Hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	log.Printf("[SSE] Client registered: id=%s plan=%s (total: %d)", client.ID, client.PlanID, len(h.clients))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		log.Printf("[SSE] Client unregistered: id=%s (total: %d)", clientID, len(h.clients))
	}
}

// SendToPlan sends an event to all clients subscribed to a plan
func (h *Hub) SendToPlan(planID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.PlanID != planID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			log.Printf("[SSE] Client %s buffer full, skipping event", client.ID)
		}
	}
}

// PublishRecalculated notifies subscribers that a plan's ledgers were rebuilt
func PublishRecalculated(planID string, refreshedPrices bool) {
	data := fmt.Sprintf(`{"plan_id":"%s","refreshed_prices":%t}`, planID, refreshedPrices)
	GlobalHub.SendToPlan(planID, Event{
		EventType: "recalculated",
		Data:      data,
	})
	log.Printf("[SSE] Published recalculated: plan=%s refreshed_prices=%t", planID, refreshedPrices)
}

// PublishEntryBuilt notifies subscribers that an entry's build progress changed
func PublishEntryBuilt(planID, entryID string, builtRuns int) {
	data := fmt.Sprintf(`{"plan_id":"%s","entry_id":"%s","built_runs":%d}`, planID, entryID, builtRuns)
	GlobalHub.SendToPlan(planID, Event{
		EventType: "entry_built",
		Data:      data,
	})
	log.Printf("[SSE] Published entry_built: plan=%s entry=%s built_runs=%d", planID, entryID, builtRuns)
}
