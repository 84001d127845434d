package decision

import (
	"context"
	"sync"
)

// Barrier is the per-tick join: the tick goroutine waits for every
// dispatched task to report Done before it drains the action queue.
type Barrier struct {
	mu sync.Mutex
	n  int
	ch chan struct{}
}

func (b *Barrier) Add(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.n == 0 && n > 0 {
		b.ch = make(chan struct{})
	}
	b.n += n
	if b.n < 0 {
		panic("decision: negative barrier count")
	}
	if b.n == 0 && b.ch != nil {
		close(b.ch)
		b.ch = nil
	}
}

func (b *Barrier) Done() { b.Add(-1) }

func (b *Barrier) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Wait blocks until the count reaches zero or ctx ends.
func (b *Barrier) Wait(ctx context.Context) error {
	b.mu.Lock()
	if b.n == 0 {
		b.mu.Unlock()
		return nil
	}
	ch := b.ch
	b.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
