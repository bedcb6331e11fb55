// Package websocket pushes live alerts to connected dashboards: fake
// visit flags as they happen and promise-to-pay sweep results.
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Alert event types
const (
	EventFakeVisit  = "FAKE_VISIT_FLAGGED"
	EventPTPBroken  = "PTP_SWEEP_COMPLETED"
	EventCaseUpdate = "CASE_UPDATED"
)

// AlertEvent is the envelope pushed to dashboard clients
type AlertEvent struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of active dashboard clients and broadcasts
// alert events to all of them
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*Client]struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			log.Printf("Dashboard connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Dashboard disconnected: %s", client.ID)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Buffer full or client dead, drop the message for
					// this client rather than blocking the hub.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast pushes an alert event to every connected client
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	event := AlertEvent{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	msg, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling alert event: %v", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("Alert broadcast queue full, dropping %s event", eventType)
	}
}

// ClientCount returns the number of connected dashboards
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
