package leftright

import (
	"sync"
	"unsafe"
)

// Shared is a Value that may be written from many goroutines. Writers are
// serialized by a mutex that readers never touch, so reads stay lock-free. The
// zero value is safe to use.
type Shared[T any] struct {
	// mu serializes Write, Store and Swap. it gets its own cache line so that
	// writers queueing on it do not bounce the line readers load the counter
	// from.
	mu sync.Mutex
	_  [cacheLine - unsafe.Sizeof(sync.Mutex{})]byte
	v  Value[T]
}

// NewShared returns a Shared with both instances set to initial.
func NewShared[T any](initial T) *Shared[T] {
	s := new(Shared[T])
	s.v.inst[0] = initial
	s.v.inst[1] = initial
	return s
}

// Read is Value.Read. It does not take the writer lock.
func (s *Shared[T]) Read(fn func(*T)) { s.v.Read(fn) }

// TryRead is Value.TryRead. It does not take the writer lock.
func (s *Shared[T]) TryRead(fn func(*T)) bool { return s.v.TryRead(fn) }

// Load is Value.Load. It does not take the writer lock.
func (s *Shared[T]) Load() T { return s.v.Load() }

// Gen reports how many writes have completed.
func (s *Shared[T]) Gen() uint64 { return s.v.Gen() }

// Write is Value.Write, serialized with other writers.
func (s *Shared[T]) Write(fn func(*T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Write(fn)
}

// Store is Value.Store, serialized with other writers.
func (s *Shared[T]) Store(x T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Store(x)
}

// Swap stores x and returns the value it replaced. No other write can happen
// between the two.
func (s *Shared[T]) Swap(x T) (old T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// with the lock held nothing mutates [0], so it can be copied directly.
	copyValue(&old, &s.v.inst[0])
	s.v.Store(x)
	return old
}
