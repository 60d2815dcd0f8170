// Package bytestream implements a bounded FIFO byte stream with separate
// writer and reader halves, using a ring-buffer
// (github.com/soypat/lneto/internal.Ring) generalized into a single owned
// value so a writer and reader can share it without a lock: callers are expected to serialize their own access, so no mutex is needed.
package bytestream

import "github.com/soypat/ustack/internal"

// ByteStream is a bounded queue of bytes with a fixed capacity. It is mutated
// by exactly one writer and one reader (see Writer/Reader below) and is safe
// to embed by value; the zero value is not usable, use [New].
type ByteStream struct {
	ring    internal.Ring
	pushed  uint64
	popped  uint64
	closed  bool
	errored bool
}

// New returns a ByteStream with the given capacity in bytes.
func New(capacity int) *ByteStream {
	if capacity <= 0 {
		panic("bytestream: capacity must be positive")
	}
	return &ByteStream{ring: internal.Ring{Buf: make([]byte, capacity)}}
}

// Writer returns the writer half of the stream.
func (bs *ByteStream) Writer() Writer { return Writer{bs} }

// Reader returns the reader half of the stream.
func (bs *ByteStream) Reader() Reader { return Reader{bs} }

// Capacity returns the total capacity C of the stream.
func (bs *ByteStream) Capacity() int { return bs.ring.Size() }

// AvailableCapacity returns C - len(buffered).
func (bs *ByteStream) AvailableCapacity() int { return bs.ring.Free() }

// BytesPushed returns the total number of bytes ever pushed (pushed_count).
func (bs *ByteStream) BytesPushed() uint64 { return bs.pushed }

// BytesPopped returns the total number of bytes ever popped (popped_count).
func (bs *ByteStream) BytesPopped() uint64 { return bs.popped }

// BytesBuffered returns the number of bytes currently queued, unread.
func (bs *ByteStream) BytesBuffered() int { return bs.ring.Buffered() }

// IsClosed reports whether Close has been called.
func (bs *ByteStream) IsClosed() bool { return bs.closed }

// HasError reports whether SetError has been called.
func (bs *ByteStream) HasError() bool { return bs.errored }

// IsFinished reports whether the stream is closed and fully drained.
func (bs *ByteStream) IsFinished() bool { return bs.closed && bs.ring.Buffered() == 0 }

// Writer is the write half of a ByteStream.
type Writer struct{ s *ByteStream }

// Push appends at most AvailableCapacity() bytes of b, truncating the rest
// silently; the caller must consult AvailableCapacity to detect a partial
// write. Push is a no-op once the stream is closed.
func (w Writer) Push(b []byte) (n int) {
	if w.s.closed || len(b) == 0 {
		return 0
	}
	free := w.s.ring.Free()
	if free == 0 {
		return 0
	}
	if len(b) > free {
		b = b[:free]
	}
	n, err := w.s.ring.Write(b)
	if err != nil {
		// Ring only errors when b is larger than its free space, ruled out above.
		return 0
	}
	w.s.pushed += uint64(n)
	return n
}

// Close marks the stream closed. Subsequent Push calls are no-ops.
func (w Writer) Close() { w.s.closed = true }

// SetError sets the sticky error flag observed via HasError.
func (w Writer) SetError() { w.s.errored = true }

// AvailableCapacity, BytesPushed, IsClosed, HasError mirror the ByteStream
// observers for convenience on the writer half.
func (w Writer) AvailableCapacity() int { return w.s.AvailableCapacity() }
func (w Writer) BytesPushed() uint64    { return w.s.BytesPushed() }
func (w Writer) IsClosed() bool         { return w.s.IsClosed() }
func (w Writer) HasError() bool         { return w.s.HasError() }

// Reader is the read half of a ByteStream.
type Reader struct{ s *ByteStream }

// Peek returns the longest contiguous run of unread bytes starting at the
// current read position, without copying: the returned slice aliases the
// stream's internal ring buffer and is only valid until the next mutating
// call (Pop, or a Push that wraps the write cursor past the read cursor).
// When the buffered region wraps around the end of the underlying array,
// Peek returns only the first (non-wrapping) contiguous run; callers that
// need the full buffered run across a wrap call Peek/Pop repeatedly.
func (r Reader) Peek() []byte {
	ring := &r.s.ring
	if ring.Buffered() == 0 {
		return nil
	}
	if ring.End > ring.Off {
		return ring.Buf[ring.Off:ring.End]
	}
	// Wrapped: readable data runs from Off to the end of the backing array.
	return ring.Buf[ring.Off:]
}

// Pop discards min(n, BytesBuffered()) bytes from the front of the stream.
func (r Reader) Pop(n int) {
	buffered := r.s.ring.Buffered()
	if n <= 0 || buffered == 0 {
		return
	}
	if n > buffered {
		n = buffered
	}
	err := r.s.ring.ReadDiscard(n)
	if err != nil {
		panic("bytestream: " + err.Error()) // unreachable given the clamp above
	}
	r.s.popped += uint64(n)
}

// AvailableCapacity, BytesPopped, BytesBuffered, IsClosed, HasError, IsFinished
// mirror the ByteStream observers for convenience on the reader half.
func (r Reader) AvailableCapacity() int { return r.s.AvailableCapacity() }
func (r Reader) BytesPushed() uint64    { return r.s.BytesPushed() }
func (r Reader) BytesPopped() uint64    { return r.s.BytesPopped() }
func (r Reader) BytesBuffered() int     { return r.s.BytesBuffered() }
func (r Reader) IsClosed() bool         { return r.s.IsClosed() }
func (r Reader) HasError() bool         { return r.s.HasError() }
func (r Reader) IsFinished() bool       { return r.s.IsFinished() }
