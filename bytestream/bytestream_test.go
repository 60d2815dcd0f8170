package bytestream

import (
	"bytes"
	"testing"
)

// TestStreamBasics covers capacity 2.
func TestStreamBasics(t *testing.T) {
	bs := New(2)
	w, r := bs.Writer(), bs.Reader()

	n := w.Push([]byte("cat"))
	if n != 2 {
		t.Fatalf("push truncated to %d, want 2", n)
	}
	if bs.AvailableCapacity() != 0 {
		t.Fatalf("available=%d, want 0", bs.AvailableCapacity())
	}
	if got := string(r.Peek()); got != "ca" {
		t.Fatalf("buffered=%q, want %q", got, "ca")
	}
	if bs.BytesPushed() != 2 {
		t.Fatalf("pushed=%d, want 2", bs.BytesPushed())
	}

	r.Pop(1)
	if got := string(r.Peek()); got != "a" {
		t.Fatalf("buffered=%q, want %q", got, "a")
	}
	if bs.AvailableCapacity() != 1 {
		t.Fatalf("available=%d, want 1", bs.AvailableCapacity())
	}

	w.Push([]byte("t"))
	// Buffered data wraps the backing array now; Peek may only return the
	// first contiguous run, so reassemble via repeated Peek/Pop.
	var got []byte
	for bs.BytesBuffered() > 0 {
		chunk := r.Peek()
		got = append(got, chunk...)
		r.Pop(len(chunk))
	}
	if !bytes.Equal(got, []byte("at")) {
		t.Fatalf("buffered=%q, want %q", got, "at")
	}
}

func TestPushAfterCloseIsNoop(t *testing.T) {
	bs := New(4)
	w, r := bs.Writer(), bs.Reader()
	w.Close()
	n := w.Push([]byte("x"))
	if n != 0 {
		t.Fatalf("push after close returned %d, want 0", n)
	}
	if !r.IsFinished() {
		t.Fatal("expected finished stream")
	}
}

func TestSetError(t *testing.T) {
	bs := New(4)
	w, r := bs.Writer(), bs.Reader()
	if r.HasError() {
		t.Fatal("fresh stream must not have error set")
	}
	w.SetError()
	if !r.HasError() {
		t.Fatal("expected error flag set")
	}
}

// TestInvariant checks bytes_pushed - bytes_popped = bytes_buffered <= capacity
// across a randomized sequence of push/pop operations.
func TestInvariant(t *testing.T) {
	bs := New(8)
	w, r := bs.Writer(), bs.Reader()
	data := []byte("the quick brown fox jumps over the lazy dog")
	for len(data) > 0 {
		n := w.Push(data)
		data = data[n:]
		if bs.BytesPushed()-bs.BytesPopped() != uint64(bs.BytesBuffered()) {
			t.Fatal("invariant violated after push")
		}
		if bs.BytesBuffered() > bs.Capacity() {
			t.Fatal("buffered exceeds capacity")
		}
		if bs.BytesBuffered() > 0 {
			chunk := r.Peek()
			popN := len(chunk)/2 + 1
			r.Pop(popN)
			if bs.BytesPushed()-bs.BytesPopped() != uint64(bs.BytesBuffered()) {
				t.Fatal("invariant violated after pop")
			}
		}
	}
}
