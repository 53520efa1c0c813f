package netsync

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var ErrUnknownPeer = errors.New("netsync: unknown peer")

// Transport delivers opaque frames between peers. Implementations must be
// safe for concurrent use.
type Transport interface {
	SendTo(peer string, data []byte) error
	Broadcast(data []byte) error
}

// Receiver is the callback side of a transport. Both methods may be called
// from any goroutine.
type Receiver interface {
	Receive(peer string, data []byte)
	PeerChanged(peer string, connected bool)
}

// MemNetwork is an in-process mesh. Every attached peer sees every other.
type MemNetwork struct {
	mu    sync.RWMutex
	peers map[string]Receiver
	order []string
}

func NewMemNetwork() *MemNetwork {
	return &MemNetwork{peers: make(map[string]Receiver)}
}

// Peer returns the transport a peer named id sends through. It does not
// attach the peer; call Connect once its receiver exists.
func (n *MemNetwork) Peer(id string) *MemPeer {
	return &MemPeer{net: n, id: id}
}

type MemPeer struct {
	net *MemNetwork
	id  string
}

func (p *MemPeer) ID() string {
	return p.id
}

// Connect attaches r and announces it to every peer already present, and
// them to it.
func (p *MemPeer) Connect(r Receiver) {
	n := p.net
	n.mu.Lock()
	others := make([]Receiver, 0, len(n.order))
	names := slices.Clone(n.order)
	for _, id := range n.order {
		others = append(others, n.peers[id])
	}
	if _, ok := n.peers[p.id]; !ok {
		n.order = append(n.order, p.id)
	}
	n.peers[p.id] = r
	n.mu.Unlock()

	for i, o := range others {
		o.PeerChanged(p.id, true)
		r.PeerChanged(names[i], true)
	}
}

// Disconnect detaches the peer and tells the rest.
func (p *MemPeer) Disconnect() {
	n := p.net
	n.mu.Lock()
	if _, ok := n.peers[p.id]; !ok {
		n.mu.Unlock()
		return
	}
	delete(n.peers, p.id)
	n.order = slices.DeleteFunc(n.order, func(id string) bool { return id == p.id })
	rest := make([]Receiver, 0, len(n.order))
	for _, id := range n.order {
		rest = append(rest, n.peers[id])
	}
	n.mu.Unlock()

	for _, o := range rest {
		o.PeerChanged(p.id, false)
	}
}

func (p *MemPeer) SendTo(peer string, data []byte) error {
	p.net.mu.RLock()
	_, self := p.net.peers[p.id]
	r, ok := p.net.peers[peer]
	p.net.mu.RUnlock()
	if !self || !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	r.Receive(p.id, slices.Clone(data))
	return nil
}

func (p *MemPeer) Broadcast(data []byte) error {
	p.net.mu.RLock()
	if _, self := p.net.peers[p.id]; !self {
		p.net.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrUnknownPeer, p.id)
	}
	var targets []Receiver
	for _, id := range p.net.order {
		if id != p.id {
			targets = append(targets, p.net.peers[id])
		}
	}
	p.net.mu.RUnlock()

	for _, r := range targets {
		r.Receive(p.id, slices.Clone(data))
	}
	return nil
}
