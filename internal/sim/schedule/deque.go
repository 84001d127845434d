package schedule

import "sync"

// deque is a worker-local task deque. The owner pops from the back; thieves
// take from the front with TryLock so a contended steal fails fast instead of
// queueing behind the owner.
type deque[T any] struct {
	mu   sync.Mutex
	buf  []T
	head int
}

func (d *deque[T]) push(t T) {
	d.mu.Lock()
	if d.head > 0 && d.head >= len(d.buf)/2 {
		n := copy(d.buf, d.buf[d.head:])
		clear(d.buf[n:])
		d.buf = d.buf[:n]
		d.head = 0
	}
	d.buf = append(d.buf, t)
	d.mu.Unlock()
}

func (d *deque[T]) popBack() (T, bool) {
	var zero T
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.buf) == d.head {
		return zero, false
	}
	last := len(d.buf) - 1
	t := d.buf[last]
	d.buf[last] = zero
	d.buf = d.buf[:last]
	if d.head == len(d.buf) {
		d.buf = d.buf[:0]
		d.head = 0
	}
	return t, true
}

// steal takes the oldest task. contended is true when the lock was busy.
func (d *deque[T]) steal() (t T, ok bool, contended bool) {
	if !d.mu.TryLock() {
		return t, false, true
	}
	defer d.mu.Unlock()
	if len(d.buf) == d.head {
		return t, false, false
	}
	var zero T
	t = d.buf[d.head]
	d.buf[d.head] = zero
	d.head++
	if d.head == len(d.buf) {
		d.buf = d.buf[:0]
		d.head = 0
	}
	return t, true, false
}

func (d *deque[T]) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf) - d.head
}
