// Package fwbridge fronts a single fakewire exchange with a TCP
// monitor/inject protocol: a fixed hello handshake followed by
// length-prefixed packet frames, fanned out to every connected client.
package fwbridge

import (
	"sync"

	"github.com/celskeggs/theseus-scratch/internal/fwlog"
	"github.com/celskeggs/theseus-scratch/internal/fwmetrics"
)

// BackpressurePolicy selects what happens when a client's outbound queue is
// full at broadcast time.
type BackpressurePolicy int

const (
	// PolicyDrop silently drops the packet for that one slow client.
	PolicyDrop BackpressurePolicy = iota
	// PolicyKick disconnects the slow client instead of dropping.
	PolicyKick
)

// Client is one TCP monitor/inject connection's view into the hub.
type Client struct {
	Out       chan []byte
	Closed    chan struct{}
	closeOnce sync.Once
}

// Close signals the client is closed. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Closed) })
}

// Hub fans every packet read off the fakewire link out to every connected
// monitor client.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// NewHub creates a Hub with default settings.
func NewHub() *Hub { return &Hub{clients: make(map[*Client]struct{})} }

// Add registers a client with the hub.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	prev := len(h.clients)
	h.clients[c] = struct{}{}
	cur := len(h.clients)
	h.mu.Unlock()
	fwmetrics.SetBridgeClients(cur)
	if prev == 0 && cur == 1 {
		fwlog.L().Info("fwbridge_clients_first_connected")
	}
}

// Remove unregisters a client. Safe to call multiple times.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
	}
	cur := len(h.clients)
	h.mu.Unlock()
	c.Close()
	fwmetrics.SetBridgeClients(cur)
	if existed && cur == 0 {
		fwlog.L().Info("fwbridge_clients_last_disconnected")
	}
}

// Broadcast sends one packet to every connected client, honoring the
// configured backpressure policy for clients whose queue is full.
func (h *Hub) Broadcast(packet []byte) {
	for _, c := range h.Snapshot() {
		select {
		case c.Out <- packet:
		default:
			if h.Policy == PolicyKick {
				fwmetrics.IncBridgeKick()
				c.Close()
			} else {
				fwmetrics.IncBridgeDrop()
			}
		}
	}
}

// Snapshot returns a slice copy of the current client set.
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
