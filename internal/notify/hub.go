// Package notify delivers domain notifications to websocket clients and to
// station displays over AWS IoT. Delivery is best effort: failures are
// logged and never reach the operation that raised the notification.
package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"parkaro/internal/domain"
)

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub fans messages out to connected websocket clients. Only the Run
// goroutine writes to a connection.
type Hub struct {
	logger *zerolog.Logger

	clients    map[Conn]struct{}
	register   chan Conn
	unregister chan Conn
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[Conn]struct{}),
		register:   make(chan Conn),
		unregister: make(chan Conn),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("clients", total).Msg("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("clients", total).Msg("websocket client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Warn().Err(err).Msg("writing to websocket client failed; dropping it")
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(c Conn) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify queues n for every client. A full queue drops the message.
func (h *Hub) Notify(_ context.Context, n domain.Notification) {
	message, err := json.Marshal(n)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(n.Type)).Msg("marshalling notification failed")
		return
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn().Str("type", string(n.Type)).Msg("broadcast queue full, dropping notification")
	}
}
