package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Scrimzay/artillery/internal/netsync"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 15 * time.Second
)

type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter
	ready   chan struct{} // closed once the session knows the peer
}

func (c *client) write(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(msgType, data)
}

// Hub is the leader's side of the WebSocket transport. Every connected
// follower is a peer named by a fresh UUID.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	receiver netsync.Receiver

	joins  chan *client
	leaves chan *client
	done   chan struct{}

	peerRate  rate.Limit
	peerBurst int
	log       zerolog.Logger
}

// NewHub limits each peer to peerRate inbound frames per second; zero
// means unlimited.
func NewHub(peerRate float64, log zerolog.Logger) *Hub {
	limit := rate.Inf
	if peerRate > 0 {
		limit = rate.Limit(peerRate)
	}
	return &Hub{
		clients:   make(map[string]*client),
		joins:     make(chan *client),
		leaves:    make(chan *client),
		done:      make(chan struct{}),
		peerRate:  limit,
		peerBurst: max(int(peerRate), 8),
		log:       log.With().Str("component", "hub").Logger(),
	}
}

// Bind sets who hears about peers and frames. Call it before Run.
func (h *Hub) Bind(r netsync.Receiver) {
	h.mu.Lock()
	h.receiver = r
	h.mu.Unlock()
}

func (h *Hub) receiverFor() netsync.Receiver {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.receiver
}

// Run owns registration and keeps idle connections alive until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.joins:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			h.log.Info().Str("peer", c.id).Str("remote", c.conn.RemoteAddr().String()).Msg("peer connected")
			if r := h.receiverFor(); r != nil {
				r.PeerChanged(c.id, true)
			}
			close(c.ready)

		case c := <-h.leaves:
			h.mu.Lock()
			_, ok := h.clients[c.id]
			delete(h.clients, c.id)
			h.mu.Unlock()
			if !ok {
				continue
			}
			c.conn.Close()
			h.log.Info().Str("peer", c.id).Msg("peer disconnected")
			if r := h.receiverFor(); r != nil {
				r.PeerChanged(c.id, false)
			}

		case <-ping.C:
			for _, c := range h.snapshot() {
				if err := c.write(websocket.PingMessage, nil); err != nil {
					h.log.Warn().Err(err).Str("peer", c.id).Msg("ping failed")
					go h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) snapshot() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.conn.Close()
		delete(h.clients, id)
	}
}

// add registers a connection; it returns nil once the hub has stopped.
func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		limiter: rate.NewLimiter(h.peerRate, h.peerBurst),
		ready:   make(chan struct{}),
	}
	select {
	case h.joins <- c:
		<-c.ready
		return c

	case <-h.done:
		conn.Close()
		return nil
	}
}

func (h *Hub) remove(c *client) {
	select {
	case h.leaves <- c:

	case <-h.done:
	}
}

// deliver hands an inbound frame to the session unless the peer is over
// its rate.
func (h *Hub) deliver(c *client, data []byte) {
	if !c.limiter.Allow() {
		h.log.Debug().Str("peer", c.id).Msg("peer over rate, dropping frame")
		return
	}
	if r := h.receiverFor(); r != nil {
		r.Receive(c.id, data)
	}
}

func (h *Hub) SendTo(peer string, data []byte) error {
	h.mu.RLock()
	c, ok := h.clients[peer]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", netsync.ErrUnknownPeer, peer)
	}
	if err := c.write(websocket.BinaryMessage, data); err != nil {
		go h.remove(c)
		return fmt.Errorf("writing to %s: %w", peer, err)
	}
	return nil
}

func (h *Hub) Broadcast(data []byte) error {
	for _, c := range h.snapshot() {
		if err := c.write(websocket.BinaryMessage, data); err != nil {
			h.log.Warn().Err(err).Str("peer", c.id).Msg("broadcast error")
			// cleanup happens on the Run loop
			go h.remove(c)
		}
	}
	return nil
}

// Peers lists connected peer ids.
func (h *Hub) Peers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.clients))
	for id := range h.clients {
		out = append(out, id)
	}
	return out
}
