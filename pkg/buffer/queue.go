// Package buffer provides thread-safe generic buffers.
package buffer

import "sync"

// Queue is a thread-safe FIFO queue. It is lossless by default: it grows
// without bound until elements are popped. An optional capacity turns it
// into a bounded queue that drops the oldest element on overflow.
//
// Pop operations are non-blocking. Each pushed element is returned by exactly
// one TryPop or Drain call, in push order, regardless of how many goroutines
// pop concurrently.
type Queue[T any] struct {
	mu     sync.Mutex
	buf    []T
	cap    int
	notify chan struct{}
}

// NewQueue creates an unbounded FIFO queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// NewBoundedQueue creates a queue that holds at most size elements.
// Pushing onto a full queue drops the oldest element. A size of zero or
// less means unbounded.
func NewBoundedQueue[T any](size int) *Queue[T] {
	return &Queue[T]{cap: size, notify: make(chan struct{}, 1)}
}

// Push appends v to the tail of the queue. It reports whether an element
// was dropped from the head to make room.
func (q *Queue[T]) Push(v T) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.wake()
	if q.cap > 0 && len(q.buf) >= q.cap {
		copy(q.buf, q.buf[1:])
		q.buf[len(q.buf)-1] = v
		return true
	}
	q.buf = append(q.buf, v)
	return false
}

func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Notify returns a channel that receives a signal after a Push. The
// channel is buffered with one slot, so one signal may coalesce several
// pushes; receivers must drain the queue on every wakeup.
func (q *Queue[T]) Notify() <-chan struct{} {
	return q.notify
}

// TryPop removes and returns the oldest element. The second return value
// is false if the queue is empty.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.buf) == 0 {
		return zero, false
	}
	v := q.buf[0]
	q.buf[0] = zero
	q.buf = q.buf[1:]
	if len(q.buf) == 0 {
		q.buf = nil
	}
	return v, true
}

// Drain removes and returns all buffered elements in FIFO order.
// Returns nil if the queue is empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = nil
	return out
}

// Len returns the number of buffered elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Clear discards all buffered elements.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = nil
}
