package netsync

import (
	"slices"
	"time"
)

// barrier waits for a set of peers to check in. A zero deadline never
// expires.
type barrier struct {
	waitFor  Kind
	pending  map[string]bool
	deadline time.Time
}

func newBarrier(waitFor Kind, peers []string, now time.Time, timeout time.Duration) *barrier {
	b := &barrier{waitFor: waitFor, pending: make(map[string]bool, len(peers))}
	for _, p := range peers {
		b.pending[p] = true
	}
	if timeout > 0 {
		b.deadline = now.Add(timeout)
	}
	return b
}

// arrive checks a peer in and reports whether it was still awaited.
func (b *barrier) arrive(peer string) bool {
	if !b.pending[peer] {
		return false
	}
	delete(b.pending, peer)
	return true
}

func (b *barrier) drop(peer string) {
	delete(b.pending, peer)
}

func (b *barrier) waiting(peer string) bool {
	return b.pending[peer]
}

func (b *barrier) done() bool {
	return len(b.pending) == 0
}

func (b *barrier) expired(now time.Time) bool {
	return !b.deadline.IsZero() && !now.Before(b.deadline)
}

func (b *barrier) missing() []string {
	out := make([]string, 0, len(b.pending))
	for p := range b.pending {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
