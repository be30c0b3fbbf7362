// Package ordered implements reordering buffer that connects pipeline
// stages.
package ordered

import (
	"sync"

	"github.com/go-faster/errors"
)

var (
	// ErrDuplicate means that id is already stored in buffer.
	ErrDuplicate = errors.New("duplicate id")
	// ErrConsumed means that id was already returned by Next.
	ErrConsumed = errors.New("id already consumed")
)

// Buffer is blocking id-keyed queue that releases items strictly in
// ascending id order, starting from zero.
//
// Consumer waiting for id k blocks until k is inserted, even if k+1 is
// already present, so out-of-order producers are reassembled without
// sorting. Safe for concurrent use by any number of producers and
// consumers.
type Buffer[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	items     map[int]T
	nextWrite int
	nextRead  int
	closed    bool
	window    int
}

// Option configures Buffer.
type Option func(o *options)

type options struct {
	window int
}

// WithWindow limits ids admitted by insert to [next, next+n), where next
// is the id awaited by consumer. Inserts of ids beyond the window wait for
// consumer or Close. Zero or negative n means no limit.
//
// The awaited id is always admitted, so window never stalls an ordered
// consumer.
func WithWindow(n int) Option {
	return func(o *options) {
		o.window = n
	}
}

// New initializes and returns new Buffer.
func New[T any](opts ...Option) *Buffer[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	b := &Buffer[T]{
		items:  make(map[int]T),
		window: o.window,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Insert stores v with next auto-assigned id and returns that id.
//
// Does not block unless buffer has window.
func (b *Buffer[T]) Insert(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextWrite
	b.nextWrite++
	b.wait(id)
	b.items[id] = v
	b.cond.Broadcast()

	return id
}

// InsertAt stores v with explicit id.
//
// Future auto-assigned ids are always greater than id.
func (b *Buffer[T]) InsertAt(id int, v T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.wait(id)
	if id < b.nextRead {
		return errors.Wrapf(ErrConsumed, "insert %d (next %d)", id, b.nextRead)
	}
	if _, ok := b.items[id]; ok {
		return errors.Wrapf(ErrDuplicate, "insert %d", id)
	}
	if id >= b.nextWrite {
		b.nextWrite = id + 1
	}
	b.items[id] = v
	b.cond.Broadcast()

	return nil
}

// wait blocks while id is outside of window and buffer is open.
//
// Must be called with b.mu held.
func (b *Buffer[T]) wait(id int) {
	if b.window <= 0 {
		return
	}
	for !b.closed && id >= b.nextRead+b.window {
		b.cond.Wait()
	}
}

// Next removes and returns item with the next id in order, blocking until
// it is available.
//
// Returns ok=false (end of stream) only when buffer is closed and the
// awaited id is absent. Items inserted before Close are still drained.
func (b *Buffer[T]) Next() (id int, v T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Re-checking both conditions after every wakeup: broadcasts are
	// issued for any insert or close, not only for the awaited id.
	for {
		if v, ok := b.items[b.nextRead]; ok {
			id := b.nextRead
			delete(b.items, id)
			b.nextRead++
			b.cond.Broadcast()
			return id, v, true
		}
		if b.closed {
			var zero T
			return 0, zero, false
		}
		b.cond.Wait()
	}
}

// Close marks buffer as closed and wakes all waiters. Idempotent.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.cond.Broadcast()
}

// Closed reports whether Close was called.
func (b *Buffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns count of stored items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
