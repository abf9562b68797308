package leftright

// epoch is the counter value a reader observed when it started an attempt.
type epoch uint64

// index returns the instance readers that observed e must consult: bit 1.
func (e epoch) index() int {
	return int(e>>1) & 1
}

// matches reports whether a read that started at e and validated against o may
// be accepted. Only the lowest bit is ignored: 00 -> 01 leaves [0] untouched,
// but any change of bit 1 or above means the instance being read was either
// swapped out or has started being mutated.
func (e epoch) matches(o epoch) bool {
	return e>>1 == o>>1
}
