package websocket

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/vigil-ops/vigil-backend-go/internal/core/alerting"
)

// Hub maintains the set of connected dashboard clients and broadcasts
// alert transition events to them. Broadcasting never blocks the engine:
// a full hub queue drops the event with a warning.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     *logrus.Logger
}

// NewHub creates a hub. Call Run in its own goroutine.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run owns the client set; all membership changes and broadcasts are
// serialized through this loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.WithField("clients", len(h.clients)).Debug("WebSocket client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.WithField("clients", len(h.clients)).Debug("WebSocket client disconnected")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client: drop it rather than stall the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// BroadcastEvent implements alerting.Broadcaster.
func (h *Hub) BroadcastEvent(event alerting.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal transition event")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.WithField("type", event.Type).Warn("Broadcast queue full, dropping event")
	}
}
