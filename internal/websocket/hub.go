package websocket

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/rl-arena/ladder-backend/internal/models"
)

// Hub pushes engine events to connected adapters, one connection per adapter.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger *zap.Logger
}

var ErrHubClosed = errors.New("websocket hub closed")

// Message one pushed event.
type Message struct {
	GuildID string       `json:"-"`
	Type    string       `json:"type"`
	Payload models.Event `json:"payload"`
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and deliveries until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return nil
		}
	}
}

// Publish queues an event for delivery on this instance.
func (h *Hub) Publish(ctx context.Context, event models.Event) error {
	select {
	case h.broadcast <- &Message{GuildID: event.GuildID, Type: string(event.Type), Payload: event}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
}

// Deliver is the event bus handler.
func (h *Hub) Deliver(event models.Event) {
	if err := h.Publish(context.Background(), event); err != nil {
		h.logger.Warn("Failed to queue event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if oldClient, exists := h.clients[client.adapterID]; exists {
		close(oldClient.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("adapterId", client.adapterID))
	}

	h.clients[client.adapterID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("adapterId", client.adapterID),
		zap.Int("totalClients", len(h.clients)))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// a replaced client must not remove its successor
	if current, exists := h.clients[client.adapterID]; exists && current == client {
		delete(h.clients, client.adapterID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("adapterId", client.adapterID),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if !client.wants(message.GuildID) {
			continue
		}
		select {
		case client.send <- message:
		default:
			h.logger.Warn("Client send channel full, unregistering",
				zap.String("adapterId", client.adapterID))
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
}

// ClientCount connected adapters.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
