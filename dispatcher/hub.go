package dispatcher

import (
	"sync"

	"jackpot-service/events"
	"jackpot-service/metrics"
)

// Hub fans frames out to live-feed clients. A client whose buffer is full misses frames
// rather than slowing everyone else down.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan events.Frame]struct{}
	buffer  int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{clients: make(map[chan events.Frame]struct{}), buffer: buffer}
}

// Subscribe registers a client. Call the returned func to leave; it closes the channel.
func (h *Hub) Subscribe() (<-chan events.Frame, func()) {
	ch := make(chan events.Frame, h.buffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.StreamClients.Set(float64(n))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			n := len(h.clients)
			h.mu.Unlock()
			close(ch)
			metrics.StreamClients.Set(float64(n))
		})
	}
}

func (h *Hub) Broadcast(f events.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- f:
		default:
			metrics.StreamDropped.Inc()
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
