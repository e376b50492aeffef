package server

import (
	"sync"
)

// hub tracks the connected clients so the server can count them and close
// them on shutdown.
type hub struct {
	clients map[*client]bool
	mu      sync.RWMutex
}

func newHub() *hub {
	return &hub{
		clients: make(map[*client]bool),
	}
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll closes every registered connection. Clients unregister themselves
// once their read loop notices.
func (h *hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}
