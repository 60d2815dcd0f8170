package internal

// RTOCeiling bounds exponential retransmission-timeout growth. RFC 9293 does not
// mandate a specific ceiling; real stacks commonly settle around one minute.
const RTOCeiling = 60_000

// RTOBackoff is a virtual-time doubling counter for a retransmission timeout.
// Unlike a wall-clock backoff it never sleeps: the owner is expected to be
// driven by an external tick(ms) source and to consult Value() to arm a timer.
type RTOBackoff struct {
	initial uint32
	current uint32
}

// NewRTOBackoff returns a backoff that starts (and resets to) initialMillis.
func NewRTOBackoff(initialMillis uint32) RTOBackoff {
	if initialMillis == 0 {
		panic("initial RTO cannot be zero")
	}
	return RTOBackoff{initial: initialMillis, current: initialMillis}
}

// Value returns the current RTO in milliseconds.
func (b *RTOBackoff) Value() uint32 { return b.current }

// Reset restores the RTO to its initial value, as happens on a new cumulative ACK.
func (b *RTOBackoff) Reset() { b.current = b.initial }

// Double doubles the RTO up to RTOCeiling, as happens on each consecutive expiry.
func (b *RTOBackoff) Double() {
	next := b.current * 2
	if next > RTOCeiling || next < b.current {
		next = RTOCeiling
	}
	b.current = next
}
