package httpapi

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"offline-chat/internal/message"
)

// wsHub fans timeline updates out to connected websocket clients.
type wsHub struct {
	upgrader  websocket.Upgrader
	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	closeOnce sync.Once
}

func newWSHub() *wsHub {
	return &wsHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Broadcast sends one message update to every connected client,
// dropping clients whose writes fail.
func (h *wsHub) Broadcast(msg message.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write: %v", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *wsHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *wsHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	h.mu.Unlock()
}

// Close disconnects every client.
func (h *wsHub) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		for conn := range h.clients {
			_ = conn.Close()
		}
		h.clients = make(map[*websocket.Conn]struct{})
		h.mu.Unlock()
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}
	s.hub.add(conn)
	// Drain control frames until the client goes away.
	go func() {
		defer s.hub.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
