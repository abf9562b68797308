package leftright

import "unsafe"

const cacheLine = 64 // typical size of a cache line

// Value holds two instances of T and lets any number of goroutines read a
// consistent one while a single writer mutates them in place. Reads never
// block and never wait for the writer. Writes never wait for readers. The zero
// value is safe to use and holds the zero T.
//
// T must be safe to read while another goroutine modifies it: in practice every
// field a visitor looks at is accessed through sync/atomic. A reader may see a
// torn combination of fields, but such a read is always detected and retried.
//
// Only one goroutine may be writing at a time. See Shared for a Value that
// serializes writers itself.
type Value[T any] struct {
	ctr  counter
	_    [cacheLine - unsafe.Sizeof(counter{})]byte
	inst [2]T
}

// New returns a Value with both instances set to initial.
func New[T any](initial T) *Value[T] {
	v := new(Value[T])
	v.inst[0] = initial
	v.inst[1] = initial
	return v
}

// Read calls fn with the instance currently authoritative for readers. If a
// write overlapped the call in a way that could have made fn observe a half
// written instance, fn is called again on the now authoritative instance,
// until a call completes without such overlap.
//
// fn must not modify the instance, must not crash on a torn read and must not
// call Write or Store on v. Only the effects of the final call should be kept.
func (v *Value[T]) Read(fn func(*T)) {
	for {
		e := v.ctr.Begin()
		fn(&v.inst[e.index()])
		if v.ctr.Valid(e) {
			return
		}
	}
}

// TryRead makes a single read attempt and reports whether it was consistent.
// When it returns false whatever fn observed must be discarded. It is meant for
// callers that want to bound or account for retries themselves.
func (v *Value[T]) TryRead(fn func(*T)) bool {
	e := v.ctr.Begin()
	fn(&v.inst[e.index()])
	return v.ctr.Valid(e)
}

// Read is like Value.Read but returns the result of the accepted call to fn.
func Read[T, R any](v *Value[T], fn func(*T) R) R {
	for {
		e := v.ctr.Begin()
		r := fn(&v.inst[e.index()])
		if v.ctr.Valid(e) {
			return r
		}
	}
}

// Write calls fn twice: first on the instance readers are not using, which is
// then published to them, and then on the other instance to bring it back in
// sync. fn must perform the same deterministic mutation both times, relative
// to the instance it is handed; copying one instance into the other is not
// equivalent. fn must not panic.
//
// Write must not be called concurrently with itself. It panics if it notices
// that it was.
func (v *Value[T]) Write(fn func(*T)) {
	base := v.ctr.begin()
	fn(&v.inst[1])
	v.ctr.publish(base)
	fn(&v.inst[0])
	v.ctr.settle(base)
}

// Write is like Value.Write but returns the result of the second call to fn.
func Write[T, R any](v *Value[T], fn func(*T) R) R {
	base := v.ctr.begin()
	fn(&v.inst[1])
	v.ctr.publish(base)
	r := fn(&v.inst[0])
	v.ctr.settle(base)
	return r
}

// Load returns a copy of the current value. If *T implements Copier, the copy
// is made with CopyFrom, otherwise with plain assignment.
func (v *Value[T]) Load() (out T) {
	v.Read(func(x *T) { copyValue(&out, x) })
	return out
}

// Store sets both instances to x. If *T implements Copier, CopyFrom is used to
// assign to the instances, otherwise plain assignment, which is only safe
// against concurrent readers if T's representation tolerates it.
func (v *Value[T]) Store(x T) {
	v.Write(func(dst *T) { copyValue(dst, &x) })
}

// Clone returns a new Value holding a copy of v's current value.
func (v *Value[T]) Clone() *Value[T] {
	return New(v.Load())
}

// Assign stores other's current value into v. Assigning a Value to itself does
// nothing.
func (v *Value[T]) Assign(other *Value[T]) {
	if v == other {
		return
	}
	v.Store(other.Load())
}

// Gen reports how many writes to v have completed.
func (v *Value[T]) Gen() uint64 {
	return v.ctr.Gen()
}
