package leftright

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/zeebo/assert"
	"github.com/zeebo/pcg"
)

// pair is a payload whose fields are always written together. b is kept as the
// complement of a so that a read that mixes two writes can be spotted.
type pair struct {
	a atomic.Uint64
	b atomic.Uint64
}

func (p *pair) CopyFrom(src *pair) {
	p.a.Store(src.a.Load())
	p.b.Store(src.b.Load())
}

func (p *pair) set(n uint64) {
	p.a.Store(n)
	p.b.Store(^n)
}

func (p *pair) get() (uint64, bool) {
	a, b := p.a.Load(), p.b.Load()
	return a, b == ^a
}

func newPair(n uint64) *Value[pair] {
	v := new(Value[pair])
	v.inst[0].set(n)
	v.inst[1].set(n)
	return v
}

func TestValueZero(t *testing.T) {
	var v Value[[4]uint64]
	assert.Equal(t, v.Load(), [4]uint64{})
	assert.Equal(t, v.Gen(), uint64(0))
}

func TestValueRoundTrip(t *testing.T) {
	v := new(Value[[4]uint64])
	rand64 := func() uint64 { return uint64(pcg.Uint32())<<32 | uint64(pcg.Uint32()) }

	for i := 0; i < 1000; i++ {
		x := [4]uint64{rand64(), rand64(), rand64(), rand64()}
		v.Store(x)
		assert.Equal(t, v.Load(), x)
		assert.Equal(t, v.inst[0], x)
		assert.Equal(t, v.inst[1], x)
	}
	assert.Equal(t, v.Gen(), uint64(1000))
}

func TestValueWriteSettles(t *testing.T) {
	v := New(10)

	for i := 1; i <= 100; i++ {
		before := v.ctr.v.Load()
		v.Write(func(x *int) { *x += i })
		after := v.ctr.v.Load()

		assert.Equal(t, after-before, uint64(cycle))
		assert.Equal(t, after&stateMask, before&stateMask)
		assert.Equal(t, v.inst[0], v.inst[1])
		assert.Equal(t, v.Load(), 10+i*(i+1)/2)
	}
}

func TestValueWriteCalls(t *testing.T) {
	v := New(0)

	var seen []*int
	got := Write(v, func(x *int) *int {
		seen = append(seen, x)
		return x
	})

	assert.Equal(t, len(seen), 2)
	assert.That(t, seen[0] == &v.inst[1])
	assert.That(t, seen[1] == &v.inst[0])
	assert.That(t, got == &v.inst[0])

	n := Write(v, func(x *int) int { *x += 5; return *x * 2 })
	assert.Equal(t, n, 10)
	assert.Equal(t, Read(v, func(x *int) int { return *x }), 5)
}

// narrow only copies x through CopyFrom, which makes it visible whether Load
// and Store went through it.
type narrow struct {
	x    int
	skip int
}

func (n *narrow) CopyFrom(src *narrow) { n.x = src.x }

func TestValueCopier(t *testing.T) {
	v := New(narrow{x: 1, skip: 2})
	assert.Equal(t, v.Load(), narrow{x: 1})

	v.Store(narrow{x: 3, skip: 4})
	assert.Equal(t, v.inst[0], narrow{x: 3, skip: 2})
	assert.Equal(t, v.inst[1], narrow{x: 3, skip: 2})
}

func TestValueCloneAssign(t *testing.T) {
	a := New("a")
	b := a.Clone()
	assert.Equal(t, b.Load(), "a")

	a.Store("aa")
	assert.Equal(t, b.Load(), "a")

	b.Assign(a)
	assert.Equal(t, b.Load(), "aa")
	assert.Equal(t, b.Gen(), uint64(1))

	b.Assign(b)
	assert.Equal(t, b.Load(), "aa")
	assert.Equal(t, b.Gen(), uint64(1))
}

func TestValueReadDuringWrite(t *testing.T) {
	v := newPair(1)
	read := func() (n uint64, consistent, ok bool) {
		ok = v.TryRead(func(p *pair) { n, consistent = p.get() })
		return n, consistent, ok
	}

	// freeze the writer after it announced [1] and half wrote it. readers
	// still get [0] and are not disturbed.
	base := v.ctr.begin()
	v.inst[1].a.Store(2)
	n, consistent, ok := read()
	assert.That(t, ok && consistent)
	assert.Equal(t, n, uint64(1))

	// finish [1], publish it, and half write [0]. readers now get [1].
	v.inst[1].b.Store(^uint64(2))
	v.ctr.publish(base)
	v.inst[0].a.Store(2)
	n, consistent, ok = read()
	assert.That(t, ok && consistent)
	assert.Equal(t, n, uint64(2))

	v.inst[0].b.Store(^uint64(2))
	v.ctr.settle(base)
	n, consistent, ok = read()
	assert.That(t, ok && consistent)
	assert.Equal(t, n, uint64(2))
}

func TestValueReadRetriesTornRead(t *testing.T) {
	v := newPair(1)
	base := v.ctr.begin()
	v.inst[1].a.Store(2)

	// the first attempt reads [0] and, halfway through, the writer publishes
	// [1] and starts rewriting [0] underneath it. the torn value it sees must
	// be thrown away and the read retried on [1].
	calls := 0
	n := Read(v, func(p *pair) uint64 {
		calls++
		a := p.a.Load()
		if calls == 1 {
			v.inst[1].b.Store(^uint64(2))
			v.ctr.publish(base)
			v.inst[0].a.Store(2)
			v.inst[0].b.Store(^uint64(2))
		}
		b := p.b.Load()
		if b != ^a {
			return 0
		}
		return a
	})

	assert.Equal(t, calls, 2)
	assert.Equal(t, n, uint64(2))

	// same again while [0] is rebuilt and the writer settles.
	calls = 0
	n = Read(v, func(p *pair) uint64 {
		calls++
		if calls == 1 {
			v.ctr.settle(base)
		}
		a, _ := p.get()
		return a
	})
	assert.Equal(t, calls, 2)
	assert.Equal(t, n, uint64(2))
	assert.Equal(t, v.ctr.State(), uint64(settled))
}

func TestValueRace(t *testing.T) {
	const writes = 1000
	const reads = 10000

	v := newPair(0)
	np := runtime.GOMAXPROCS(-1)
	start := make(chan struct{})

	// a single writer bumping the value while a bunch of readers record whether
	// every value they accepted was whole, in range, and never went back.
	type result struct {
		bad         int
		retries     int
		maxAttempts int
	}
	results := make([]result, np)

	var wg sync.WaitGroup
	wg.Add(1 + np)
	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < writes; i++ {
			v.Write(func(p *pair) {
				n, _ := p.get()
				p.set(n + 1)
				// let readers run while the cycle is between phases.
				runtime.Gosched()
			})
		}
	}()
	for i := 0; i < np; i++ {
		go func(res *result) {
			defer wg.Done()
			<-start
			var last uint64
			for i := 0; i < reads; i++ {
				var n uint64
				var consistent bool
				attempts := 1
				for !v.TryRead(func(p *pair) {
					// yield between the two fields so the writer can move
					// underneath the read.
					a := p.a.Load()
					runtime.Gosched()
					n, consistent = a, p.b.Load() == ^a
				}) {
					attempts++
				}
				res.retries += attempts - 1
				if attempts > res.maxAttempts {
					res.maxAttempts = attempts
				}
				if !consistent || n < last || n > writes {
					res.bad++
				}
				last = n
			}
		}(&results[i])
	}
	close(start)
	wg.Wait()

	retries := 0
	for _, res := range results {
		assert.Equal(t, res.bad, 0)
		// every failed attempt overlapped at least one of the three counter
		// stores a write makes.
		assert.That(t, res.maxAttempts <= 3*writes+1)
		retries += res.retries
	}
	// the yields make overlapping reads certain, so some must have retried.
	assert.That(t, retries > 0)

	final := v.Load()
	n, consistent := final.get()
	assert.That(t, consistent)
	assert.Equal(t, n, uint64(writes))
	assert.Equal(t, v.Gen(), uint64(writes))
	assert.Equal(t, v.ctr.State(), uint64(settled))
}

func TestValueLoadIncrement(t *testing.T) {
	const writes = 1000
	const loads = 10000

	v := newPair(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < writes; i++ {
			v.Write(func(p *pair) {
				n, _ := p.get()
				p.set(n + 1)
				runtime.Gosched()
			})
		}
	}()

	// Load copies through CopyFrom while the writer is mid cycle. every copy
	// must be a value the counter actually held, and never go back.
	var last uint64
	for i := 0; i < loads; i++ {
		got := v.Load()
		n, consistent := got.get()
		assert.That(t, consistent)
		assert.That(t, n >= last && n <= writes)
		last = n
		if i%16 == 0 {
			runtime.Gosched()
		}
	}
	<-done

	final := v.Load()
	n, consistent := final.get()
	assert.That(t, consistent)
	assert.Equal(t, n, uint64(writes))
}

func TestValueLoadRace(t *testing.T) {
	const writes = 1000
	const reads = 10000

	v := newPair(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < writes; i++ {
			v.Store(*pairOf(uint64(i + 1)))
		}
	}()

	var last uint64
	for i := 0; i < reads; i++ {
		got := v.Load()
		n, consistent := got.get()
		assert.That(t, consistent)
		assert.That(t, n >= last && n <= writes)
		last = n
	}
	<-done
}

func pairOf(n uint64) *pair {
	p := new(pair)
	p.set(n)
	return p
}

func BenchmarkValue(b *testing.B) {
	b.Run("Read", func(b *testing.B) {
		v := newPair(1)
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			Read(v, func(p *pair) uint64 { return p.a.Load() })
		}
	})

	b.Run("Write", func(b *testing.B) {
		v := newPair(1)
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			v.Write(func(p *pair) { p.a.Add(1) })
		}
	})

	b.Run("Parallel", func(b *testing.B) {
		b.Run("Read", func(b *testing.B) {
			v := newPair(1)
			b.ReportAllocs()

			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					Read(v, func(p *pair) uint64 { return p.a.Load() })
				}
			})
		})

		b.Run("Write", func(b *testing.B) {
			first := new(uint64)
			v := newPair(1)
			b.ReportAllocs()

			b.RunParallel(func(pb *testing.PB) {
				// only a single goroutine can be calling Write
				if atomic.CompareAndSwapUint64(first, 0, 1) {
					for pb.Next() {
						v.Write(func(p *pair) { p.a.Add(1) })
					}
				} else {
					for pb.Next() {
						Read(v, func(p *pair) uint64 { return p.a.Load() })
					}
				}
			})
		})
	})
}
