package queue

import "sync/atomic"

type cell[T any] struct {
	seq atomic.Uint64
	val T
}

// MPSC is a bounded ring that accepts pushes from any number of goroutines
// and pops from a single consumer. Producers claim a ticket on the tail and
// each slot carries a sequence number telling whether it is free, filled or
// still being read.
type MPSC[T any] struct {
	tail  atomic.Uint64
	_     pad
	head  uint64
	_     pad
	cells []cell[T]
	mask  uint64
}

// NewMPSC returns a queue holding up to size items. Size must be a power of 2.
func NewMPSC[T any](size int) *MPSC[T] {
	if size <= 0 || size&(size-1) != 0 {
		panic("queue size must be a power of 2")
	}
	q := &MPSC[T]{
		cells: make([]cell[T], size),
		mask:  uint64(size - 1),
	}
	for i := range q.cells {
		q.cells[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush is safe to call from multiple goroutines. It returns false when
// the queue is full.
func (q *MPSC[T]) TryPush(v T) bool {
	pos := q.tail.Load()
	for {
		c := &q.cells[pos&q.mask]
		seq := c.seq.Load()
		switch diff := int64(seq) - int64(pos); {
		case diff == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				c.val = v
				c.seq.Store(pos + 1)
				return true
			}
			pos = q.tail.Load()
		case diff < 0:
			return false
		default:
			pos = q.tail.Load()
		}
	}
}

// TryPop must only be called from the consumer goroutine.
func (q *MPSC[T]) TryPop() (T, bool) {
	pos := q.head
	c := &q.cells[pos&q.mask]
	if int64(c.seq.Load())-int64(pos+1) < 0 {
		var zero T
		return zero, false
	}
	v := c.val
	c.seq.Store(pos + q.mask + 1)
	q.head = pos + 1
	return v, true
}

// Drain pops until the queue is empty or f returns false.
func (q *MPSC[T]) Drain(f func(T) bool) int {
	var n int
	for {
		pos := q.head
		c := &q.cells[pos&q.mask]
		if int64(c.seq.Load())-int64(pos+1) < 0 {
			return n
		}
		if !f(c.val) {
			return n
		}
		c.seq.Store(pos + q.mask + 1)
		q.head = pos + 1
		n++
	}
}

func (q *MPSC[T]) Cap() int { return len(q.cells) }
