package netsync

import "sync"

// queue is an unbounded FIFO shared between transport goroutines and the
// session loop.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
}

func (q *queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
}

// Drain returns everything queued and empties the queue.
func (q *queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = make([]T, 0, cap(out))
	return out
}

func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
