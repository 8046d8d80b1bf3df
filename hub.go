package main

import "sync"

const (
	maxConnsPerIP = 8
	maxTotalConns = 1000
)

// Hub tracks connected clients and wires them to the scheduler and the
// auth service. Dropping a connection promptly removes its player from
// whichever room holds it.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	scheduler *Scheduler
	auth      *Auth
	metrics   *Metrics

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

// NewHub creates a Hub and starts its scheduler
func NewHub(db *DB) *Hub {
	metrics := NewMetrics()
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		scheduler:  NewScheduler(metrics),
		auth:       NewAuth(db),
		metrics:    metrics,
		ipConns:    make(map[string]int),
	}
	go h.scheduler.Run()
	return h
}

// CanAccept reports whether a new connection from ip is allowed
func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

// TrackConnect counts a new connection against its IP
func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
	h.metrics.ConnOpened()
}

// TrackDisconnect releases a connection slot
func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
	h.metrics.ConnClosed()
}

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			// Remove the player from its room; idempotent, so a prior
			// explicit leave makes this a no-op.
			if pid := client.playerID; pid != "" {
				h.scheduler.Do(func() {
					h.scheduler.registry.RemovePlayer(pid)
				})
			}
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
