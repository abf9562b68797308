package leftright

// Copier is implemented by payloads whose plain assignment is not safe to race
// against readers, typically because their fields are sync/atomic types.
// CopyFrom must set the receiver to src field by field using atomic loads from
// src and atomic stores into the receiver.
type Copier[T any] interface {
	CopyFrom(src *T)
}

// copyValue sets *dst to *src, going through Copier when *T implements it.
func copyValue[T any](dst, src *T) {
	if c, ok := any(dst).(Copier[T]); ok {
		c.CopyFrom(src)
		return
	}
	*dst = *src
}
