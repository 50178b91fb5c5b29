// Package queue provides the bounded lock-free rings used to pass plain values
// between the control goroutines and the audio callback.
package queue

import "sync/atomic"

const cacheLine = 64

type pad [cacheLine - 8]byte

// SPSC is a lock-free single-producer single-consumer ring. Exactly one
// goroutine may push and exactly one may pop.
type SPSC[T any] struct {
	write atomic.Uint64
	_     pad
	read  atomic.Uint64
	_     pad
	items []T
	mask  uint64
}

// NewSPSC returns a queue holding up to size items. Size must be a power of 2.
func NewSPSC[T any](size int) *SPSC[T] {
	if size <= 0 || size&(size-1) != 0 {
		panic("queue size must be a power of 2")
	}
	return &SPSC[T]{
		items: make([]T, size),
		mask:  uint64(size - 1),
	}
}

// TryPush appends v and reports whether there was room for it.
func (q *SPSC[T]) TryPush(v T) bool {
	write := q.write.Load()
	if write-q.read.Load() == uint64(len(q.items)) {
		return false
	}
	q.items[write&q.mask] = v
	q.write.Store(write + 1)
	return true
}

// TryPop removes the oldest item.
func (q *SPSC[T]) TryPop() (T, bool) {
	read := q.read.Load()
	if read == q.write.Load() {
		var zero T
		return zero, false
	}
	v := q.items[read&q.mask]
	q.read.Store(read + 1)
	return v, true
}

// Drain calls f for queued items in order until the queue is empty or f
// returns false. The item f rejected stays at the head of the queue.
// It returns the number of items consumed.
func (q *SPSC[T]) Drain(f func(T) bool) int {
	read := q.read.Load()
	write := q.write.Load()
	start := read
	for read != write {
		if !f(q.items[read&q.mask]) {
			break
		}
		read++
	}
	q.read.Store(read)
	return int(read - start)
}

// Len is approximate when called concurrently with push or pop.
func (q *SPSC[T]) Len() int {
	return int(q.write.Load() - q.read.Load())
}

func (q *SPSC[T]) Cap() int { return len(q.items) }

func (q *SPSC[T]) Empty() bool { return q.Len() == 0 }

func (q *SPSC[T]) Full() bool { return q.Len() == len(q.items) }
