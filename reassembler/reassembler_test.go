package reassembler

import (
	"bytes"
	"testing"

	"github.com/soypat/ustack/bytestream"
)

// TestOverlap covers overlap and coalescing.
func TestOverlap(t *testing.T) {
	bs := bytestream.New(8)
	var r Reassembler
	r.Insert(2, []byte("llo"), false, bs.Writer())
	r.Insert(0, []byte("hello"), true, bs.Writer())

	reader := bs.Reader()
	got := reader.Peek()
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q, want %q", got, "hello")
	}
	if !reader.IsClosed() {
		t.Fatal("expected output stream closed")
	}
	if r.BytesPending() != 0 {
		t.Fatalf("bytes_pending=%d, want 0", r.BytesPending())
	}
}

func TestOutOfOrderThreeWay(t *testing.T) {
	bs := bytestream.New(64)
	var r Reassembler
	w := bs.Writer()
	// Full logical stream is "hello world!" split into three non-overlapping
	// fragments delivered out of order.
	r.Insert(6, []byte("world"), false, w)
	r.Insert(0, []byte("hello "), false, w)
	r.Insert(11, []byte("!"), true, w)

	reader := bs.Reader()
	var got []byte
	for reader.BytesBuffered() > 0 {
		chunk := reader.Peek()
		got = append(got, chunk...)
		reader.Pop(len(chunk))
	}
	want := "hello world!"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if !reader.IsFinished() {
		t.Fatal("expected stream closed after EOF fragment flushed")
	}
}

func TestOutOfWindowDiscarded(t *testing.T) {
	bs := bytestream.New(4)
	var r Reassembler
	w := bs.Writer()
	r.Insert(10, []byte("xx"), false, w) // window_end = 0+4 = 4, fully beyond.
	if r.BytesPending() != 0 {
		t.Fatalf("expected fragment discarded, bytes_pending=%d", r.BytesPending())
	}
}

func TestRightTrimAtWindow(t *testing.T) {
	bs := bytestream.New(4)
	var r Reassembler
	w := bs.Writer()
	r.Insert(0, []byte("abcdef"), false, w) // capacity 4: only "abcd" fits.
	reader := bs.Reader()
	got := reader.Peek()
	if string(got) != "abcd" {
		t.Fatalf("got %q, want %q", got, "abcd")
	}
}

func TestLeftTrimAlreadyAssembled(t *testing.T) {
	bs := bytestream.New(16)
	var r Reassembler
	w := bs.Writer()
	r.Insert(0, []byte("abc"), false, w)
	reader := bs.Reader()
	reader.Pop(3) // first_unassembled is driven by flush, not by reader pop;
	// re-insert overlapping the already-flushed prefix.
	r.Insert(0, []byte("abcdef"), false, w)
	got := reader.Peek()
	if string(got) != "def" {
		t.Fatalf("got %q, want %q", got, "def")
	}
}

func TestBoundedness(t *testing.T) {
	bs := bytestream.New(8)
	var r Reassembler
	w := bs.Writer()
	r.Insert(2, []byte("xx"), false, w)
	r.Insert(5, []byte("yy"), false, w)
	total := r.BytesPending() + uint64(bs.Reader().BytesBuffered())
	if total > 8 {
		t.Fatalf("bytes_pending+buffered = %d exceeds capacity 8", total)
	}
}

func TestEOFOnEmptyFragmentClosesWhenDrained(t *testing.T) {
	bs := bytestream.New(8)
	var r Reassembler
	w := bs.Writer()
	r.Insert(0, []byte("hi"), false, w)
	r.Insert(2, nil, true, w) // FIN with no payload at the tail.
	reader := bs.Reader()
	reader.Pop(reader.BytesBuffered())
	if !reader.IsFinished() {
		t.Fatal("expected stream closed once flushed")
	}
}
