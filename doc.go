// package leftright provides a container that readers can always read without
// blocking, while a single writer updates it in place.
//
// Consider some routing table that is consulted on every request and replaced
// a few times a day. Guarding it with a sync.RWMutex makes every reader touch
// the same lock word and lets a writer stall all of them. Swapping an
// atomic.Pointer avoids that but allocates and builds a full copy per update.
// A Value keeps two instances of the table instead, and one atomic counter:
//
//	type routes struct {
//		version atomic.Uint64
//		backend [64]atomic.Uint32
//	}
//
//	var table leftright.Value[routes]
//
//	func Lookup(slot int) (backend uint32, version uint64) {
//		table.Read(func(r *routes) {
//			backend, version = r.backend[slot].Load(), r.version.Load()
//		})
//		return backend, version
//	}
//
//	func Move(slot int, to uint32) {
//		table.Write(func(r *routes) {
//			r.backend[slot].Store(to)
//			r.version.Add(1)
//		})
//	}
//
// The writer mutates the instance readers are not using, publishes it, then
// repeats the mutation on the other instance. Readers pick an instance from the
// counter, run their visitor, and check the counter again: if a write may have
// touched what they read they simply run the visitor again. The cost of an
// update is doubled, which is the point: writes are expected to be rare.
//
// Because readers can run concurrently with a mutation of the instance they are
// reading, every field a visitor reads must be accessed through sync/atomic.
// Payloads like that cannot be copied with plain assignment without racing, so
// they should implement Copier for Load and Store to use.
//
// Write must never be called concurrently with itself. Use Shared, or some
// other means of exclusion, when there may be more than one writer.
package leftright
