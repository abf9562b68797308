package leftright

import "sync/atomic"

// The two low bits of the counter encode the state of the write cycle:
//
//	00 settled, both instances are equal and [0] is the one to use
//	01 [1] is under construction, so use [0]
//	11 [0] is under construction, so use [1]
//	10 never stored
//
// Every write cycle adds exactly 4 to the counter, so the bits above them count
// completed writes.
const (
	settled   = 0b00
	building1 = 0b01
	building0 = 0b11
	stateMask = 0b11
	cycle     = 4
)

// counter is the single atomic word that selects the instance readers use and
// tells them when a write overlapped their read. The zero value is settled.
//
// All of the operations below go through sync/atomic, which the Go memory model
// specifies as sequentially consistent. That is at least as strong as the
// release stores made by the writer and the acquire loads (and the acquire
// fence after the visitor) made by readers, so no extra fences are needed: a
// reader whose visitor observed any store made after a counter store is
// guaranteed to observe that counter store (or a later one) when it validates.
type counter struct {
	v atomic.Uint64
}

// Begin starts a read attempt.
func (c *counter) Begin() epoch {
	return epoch(c.v.Load())
}

// Valid reports whether a read attempt started at e only ever observed the
// instance e selected, while that instance was not being mutated.
func (c *counter) Valid(e epoch) bool {
	return e.matches(epoch(c.v.Load()))
}

// State returns the low two bits of the counter.
func (c *counter) State() uint64 {
	return c.v.Load() & stateMask
}

// Gen returns the number of completed write cycles.
func (c *counter) Gen() uint64 {
	return c.v.Load() / cycle
}

// begin moves the counter from 00 to 01 and returns the settled value the
// cycle started from. It panics if the counter is not settled, which happens
// when writers overlap, when a Write is reentered from its own visitor, or when
// an earlier visitor panicked midway through a cycle. Writers that overlap
// without being caught here are still a data race on the instances.
func (c *counter) begin() uint64 {
	base := c.v.Load()
	if base&stateMask != settled || !c.v.CompareAndSwap(base, base+building1) {
		panic("leftright: Write called while another Write is in progress")
	}
	return base
}

// publish moves the counter from 01 to 11, making [1] the instance new readers
// use. Everything written to [1] before the call is visible to them.
func (c *counter) publish(base uint64) {
	c.v.Store(base + building0)
}

// settle moves the counter from 11 back to 00 in the next cycle, returning new
// readers to [0].
func (c *counter) settle(base uint64) {
	c.v.Store(base + cycle)
}
