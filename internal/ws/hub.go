package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub manages websocket connections receiving alert and camera status
// broadcasts. Every client gets every message; dead clients are evicted
// on write failure.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

// NewHub creates a hub with no clients
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

// Register adds a connection
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	log.Printf("[WS] client registered (total: %d)", len(h.clients))
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		log.Printf("[WS] client unregistered (total: %d)", len(h.clients))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every client. Clients that fail the write
// deadline are closed and evicted.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("[WS] error sending to client: %v", err)
			h.Unregister(conn)
			conn.Close()
		}
	}
}

// BroadcastAlert marshals and broadcasts an alert message
func (h *Hub) BroadcastAlert(msg *AlertMessage) {
	if h.ClientCount() == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] error marshaling alert message: %v", err)
		return
	}
	h.Broadcast(data)
}

// BroadcastStatus marshals and broadcasts a camera status message
func (h *Hub) BroadcastStatus(msg *StatusMessage) {
	if h.ClientCount() == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] error marshaling status message: %v", err)
		return
	}
	h.Broadcast(data)
}

// CloseAll closes every connection, used at shutdown
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
