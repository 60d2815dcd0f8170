// Package seqnum implements 32-bit TCP sequence number arithmetic as defined
// by RFC 9293 section 3.4, generalized to a 64-bit "absolute" sequence space
// so callers don't have to reason about wraparound themselves.
//
// A [Wrap32] is a point on the 2^32 cycle that TCP transmits on the wire.
// An absolute sequence number is a uint64 counter that starts at 0 for the
// SYN and never wraps in practice; [Wrap32.Unwrap] recovers one from the
// other given a checkpoint (the most recent known absolute sequence number).
package seqnum

import (
	"math"
	"strconv"
)

// Wrap32 is an unsigned 32-bit value representing a point on a 2^32 cycle,
// as carried on the wire in a TCP segment's seq/ack fields.
type Wrap32 uint32

// Wrap returns the Wrap32 corresponding to the absolute sequence number n,
// given zeroPoint as the origin (ISN) of the sequence space.
//
//	wrap(n, zero_point) = zero_point + (n mod 2^32)
func Wrap(n uint64, zeroPoint Wrap32) Wrap32 {
	return zeroPoint + Wrap32(uint32(n))
}

// Add returns w advanced by n, wrapping modulo 2^32.
func (w Wrap32) Add(n uint32) Wrap32 {
	return w + Wrap32(n)
}

// Sub returns the modular 32-bit difference w-other. The result wraps
// the same way unsigned subtraction wraps; it is not a signed distance.
func (w Wrap32) Sub(other Wrap32) Wrap32 {
	return w - other
}

// Unwrap returns the unique absolute sequence number whose low 32 bits
// equal w-zeroPoint, choosing among all candidates the one closest to checkpoint
// (ties broken toward the larger value).
//
// Concretely: let d = (w - zeroPoint) mod 2^32; if d >= checkpoint return d;
// otherwise let k = floor((checkpoint - d + 2^31) / 2^32) and return d + k*2^32.
func (w Wrap32) Unwrap(zeroPoint Wrap32, checkpoint uint64) uint64 {
	d := uint64(uint32(w - zeroPoint))
	if d >= checkpoint {
		return d
	}
	const cycle = uint64(1) << 32
	const half = uint64(1) << 31
	k := (checkpoint - d + half) / cycle
	return d + k*cycle
}

// LessThan reports whether w precedes other on the 32-bit cycle, per
// RFC 9293's serial number arithmetic (comparing modulo 2^32 with the
// usual ambiguity resolved by treating the cycle as split in half).
func (w Wrap32) LessThan(other Wrap32) bool {
	return int32(w-other) < 0
}

// String implements fmt.Stringer.
func (w Wrap32) String() string {
	return strconv.FormatUint(uint64(w), 10)
}

// MaxWindow is the largest representable TCP receive window (uint16).
const MaxWindow = math.MaxUint16
