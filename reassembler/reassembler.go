// Package reassembler orders out-of-order byte-stream fragments keyed by
// absolute index and flushes contiguous runs into a bytestream.ByteStream,
// using a disjoint-interval set to track out-of-order fragments.
package reassembler

import (
	"sort"

	"github.com/soypat/ustack/bytestream"
)

// interval is a stored out-of-order fragment: bytes covering the absolute
// index range [start, start+len(data)).
type interval struct {
	start uint64
	data  []byte
}

func (iv interval) end() uint64 { return iv.start + uint64(len(iv.data)) }

// Reassembler reorders fragments into contiguous bytes and pushes them to an
// output ByteStream as they become eligible. The zero value is ready to use.
type Reassembler struct {
	pending         []interval // sorted, disjoint, each start >= firstUnassembled
	firstUnassembled uint64
	bytesPending    uint64
	eofSeen         bool
}

// FirstUnassembled returns the absolute index of the next byte the
// reassembler expects to flush.
func (r *Reassembler) FirstUnassembled() uint64 { return r.firstUnassembled }

// BytesPending returns the number of bytes currently held out-of-order.
func (r *Reassembler) BytesPending() uint64 { return r.bytesPending }

// IsEOFSeen reports whether a fragment with is_last=true has been inserted.
func (r *Reassembler) IsEOFSeen() bool { return r.eofSeen }

// Insert delivers in-order bytes to output and holds future bytes pending.
// firstIndex is the absolute stream index of data[0]; isLast marks data as
// containing (or immediately preceding, if data is empty) the final byte of
// the logical stream.
func (r *Reassembler) Insert(firstIndex uint64, data []byte, isLast bool, output bytestream.Writer) {
	if isLast {
		r.eofSeen = true
	}

	capacity := output.AvailableCapacity()
	windowEnd := r.firstUnassembled + uint64(capacity)

	lastIndex := firstIndex + uint64(len(data))
	if lastIndex <= r.firstUnassembled || firstIndex >= windowEnd {
		// Fully out of window: discard, but still try to flush/close below
		// (e.g. a redundant EOF-only probe with no new bytes).
		r.flush(output)
		return
	}

	// Left-trim prefix already assembled.
	if firstIndex < r.firstUnassembled {
		trim := r.firstUnassembled - firstIndex
		data = data[trim:]
		firstIndex = r.firstUnassembled
	}
	// Right-trim suffix beyond the window.
	if firstIndex+uint64(len(data)) > windowEnd {
		data = data[:windowEnd-firstIndex]
	}
	if len(data) == 0 {
		r.flush(output)
		return
	}

	r.merge(interval{start: firstIndex, data: data})
	r.flush(output)
}

// merge inserts iv into r.pending, coalescing any overlap so the invariant
// "pending is a set of disjoint intervals" is preserved.
func (r *Reassembler) merge(iv interval) {
	newStart, newEnd := iv.start, iv.end()

	// Find the range of existing intervals that overlap or touch iv's span.
	lo := sort.Search(len(r.pending), func(i int) bool {
		return r.pending[i].end() >= newStart
	})
	hi := lo
	for hi < len(r.pending) && r.pending[hi].start <= newEnd {
		hi++
	}

	for i := lo; i < hi; i++ {
		old := r.pending[i]
		if old.start < newStart {
			// Partial overlap on the left: trim the stored interval's tail,
			// keep its non-overlapping prefix by prepending it to the merge.
			prefixLen := newStart - old.start
			merged := make([]byte, 0, prefixLen+uint64(len(iv.data)))
			merged = append(merged, old.data[:prefixLen]...)
			merged = append(merged, iv.data...)
			iv = interval{start: old.start, data: merged}
			newStart, newEnd = iv.start, iv.end()
		}
		if old.end() > newEnd {
			// Partial overlap on the right: splits the stored interval,
			// keeping its non-overlapping suffix appended after the merge.
			suffixOff := newEnd - old.start
			merged := make([]byte, 0, uint64(len(iv.data))+uint64(len(old.data))-suffixOff)
			merged = append(merged, iv.data...)
			merged = append(merged, old.data[suffixOff:]...)
			iv = interval{start: iv.start, data: merged}
			newEnd = iv.end()
		}
		r.bytesPending -= uint64(len(old.data))
	}

	r.pending = append(r.pending[:lo], append([]interval{iv}, r.pending[hi:]...)...)
	r.bytesPending += uint64(len(iv.data))
}

// flush pushes the contiguous prefix starting at firstUnassembled to output,
// then closes output once EOF has been seen and no bytes remain pending.
func (r *Reassembler) flush(output bytestream.Writer) {
	for len(r.pending) > 0 && r.pending[0].start == r.firstUnassembled {
		iv := r.pending[0]
		n := output.Push(iv.data)
		r.firstUnassembled += uint64(n)
		r.bytesPending -= uint64(n)
		if n < len(iv.data) {
			// Output ran out of room mid-fragment: keep the unpushed
			// remainder pending at its new (advanced) start index.
			r.pending[0] = interval{start: r.firstUnassembled, data: iv.data[n:]}
			break
		}
		r.pending = r.pending[1:]
	}
	if r.eofSeen && r.bytesPending == 0 && len(r.pending) == 0 {
		output.Close()
	}
}
