package session

import (
	"sync"
)

// subscriberBuffer is the per-client channel headroom on top of the replay
// log. A client that falls this far behind starts losing frames.
const subscriberBuffer = 64

// Hub broadcasts wire-ready SSE frames from the single session writer to
// every subscriber. The full frame log is kept for the life of the session
// so late subscribers replay it before the live tail, preserving producer
// order.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]chan string
	log     []string
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]chan string)}
}

// Subscribe registers a client and returns its frame channel. The channel
// is preloaded with the replay of everything broadcast so far. When the
// hub is already closed the channel delivers the replay and then closes.
func (h *Hub) Subscribe(clientID string) <-chan string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan string, len(h.log)+subscriberBuffer)
	for _, frame := range h.log {
		ch <- frame
	}

	if h.closed {
		close(ch)
		return ch
	}

	h.clients[clientID] = ch
	return ch
}

// Unsubscribe removes a client and closes its channel. Safe to call after
// Close.
func (h *Hub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, exists := h.clients[clientID]; exists {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Broadcast appends the frame to the log and fans it out. Sends never
// block the producer: a subscriber with a full channel misses the frame
// and is expected to reconnect for catchup.
func (h *Hub) Broadcast(frame string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.log = append(h.log, frame)

	for _, ch := range h.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Close closes every subscriber channel. The replay log survives so
// subscribers arriving after the terminal frame still get the full
// session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for clientID, ch := range h.clients {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
