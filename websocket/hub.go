package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one live connection. A user may hold several (tabs, devices).
type Client struct {
	Hub    *Hub
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub fans notifications out to connected users
type Hub struct {
	// Connected clients grouped by user id
	Clients map[string]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Message handlers for inbound client frames
	MessageHandlers map[string]MessageHandler

	quit chan struct{}
	mu   sync.RWMutex
}

// Message is the frame pushed to clients
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// MessageHandler handles different types of messages
type MessageHandler func(*Client, *Message) error

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	hub := &Hub{
		Clients:         make(map[string]map[*Client]bool),
		Register:        make(chan *Client),
		Unregister:      make(chan *Client),
		MessageHandlers: make(map[string]MessageHandler),
		quit:            make(chan struct{}),
	}
	hub.MessageHandlers["ping"] = hub.handlePing
	return hub
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Clients[client.UserID] == nil {
				h.Clients[client.UserID] = make(map[*Client]bool)
			}
			h.Clients[client.UserID][client] = true
			h.mu.Unlock()
			log.Printf("🔌 Client registered: user=%s", client.UserID)

		case client := <-h.Unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			log.Printf("🔌 Client unregistered: user=%s", client.UserID)

		case <-h.quit:
			h.mu.RLock()
			for _, clients := range h.Clients {
				for client := range clients {
					client.Conn.Close()
				}
			}
			h.mu.RUnlock()
			return
		}
	}
}

// Stop ends Run and closes every open connection.
func (h *Hub) Stop() {
	close(h.quit)
}

// register hands client to Run. It reports false once the hub has stopped.
func (h *Hub) register(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// unregister hands client to Run, or gives up once the hub has stopped.
func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.quit:
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.Clients[client.UserID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.Clients, client.UserID)
	}
}

// SendToUser sends a message to every connection of a user
func (h *Hub) SendToUser(userID string, message *Message) bool {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Error marshaling message: %v", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := h.Clients[userID]
	if len(clients) == 0 {
		return false
	}

	delivered := false
	for client := range clients {
		select {
		case client.Send <- data:
			delivered = true
		default:
			log.Printf("⚠️ User %s's send buffer is full", userID)
		}
	}
	return delivered
}

// Notify pushes a typed payload to a user. Offline users simply miss the push; the
// notification row is still stored.
func (h *Hub) Notify(userID, msgType string, data interface{}) {
	if h.SendToUser(userID, &Message{Type: msgType, Data: data, Timestamp: time.Now()}) {
		log.Printf("🔔 Pushed %s to user %s", msgType, userID)
	}
}

// IsUserConnected checks if a user is currently connected
func (h *Hub) IsUserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Clients[userID]) > 0
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.Clients {
		n += len(clients)
	}
	return n
}

// handlePing handles ping messages for connection health
func (h *Hub) handlePing(client *Client, message *Message) error {
	return client.SendMessage(&Message{Type: "pong", Timestamp: time.Now()})
}
