package synchronizer

import (
	"context"
	"sync"
)

// BundleQueue is an unbounded FIFO of published bundles. Any number of
// consumers may drain it concurrently; each bundle is delivered once.
type BundleQueue struct {
	mu     sync.Mutex
	items  []*Bundle
	ready  chan struct{} // closed and replaced on every Put
	closed bool
}

func NewBundleQueue() *BundleQueue {
	return &BundleQueue{ready: make(chan struct{})}
}

// Put appends b. It fails only after Close.
func (q *BundleQueue) Put(b *Bundle) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, b)
	close(q.ready)
	q.ready = make(chan struct{})
	return nil
}

// Get blocks until a bundle is available, the queue is closed and drained
// (ErrClosed), or ctx is done.
func (q *BundleQueue) Get(ctx context.Context) (*Bundle, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			b := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return b, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryGet returns the oldest bundle without blocking.
func (q *BundleQueue) TryGet() (*Bundle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	b := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return b, true
}

// Len is the number of bundles waiting to be consumed.
func (q *BundleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further Puts. Consumers drain what is left, then get ErrClosed.
func (q *BundleQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}
