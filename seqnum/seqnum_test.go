package seqnum

import "testing"

func TestWrapUnwrapRoundTrip(t *testing.T) {
	var cases = []struct {
		isn, abs, checkpoint uint64
	}{
		{isn: 0, abs: 0, checkpoint: 0},
		{isn: 0, abs: 1, checkpoint: 0},
		{isn: 100, abs: 500, checkpoint: 500},
		{isn: 1 << 32, abs: (1 << 32) + 1, checkpoint: 1 << 32},
	}
	for i, c := range cases {
		zero := Wrap32(uint32(c.isn))
		got := Wrap(c.abs, zero).Unwrap(zero, c.checkpoint)
		if got != c.abs {
			t.Errorf("case %d: got %d want %d", i, got, c.abs)
		}
	}
}

// TestUnwrapClosestToCheckpoint exercises a worked example:
// isn=2^32-2, checkpoint=2^32. wrap(2^32+1) yields raw=2^32-1; unwrapping
// that raw value must recover 2^32+1, not the other candidate 1 (same low
// 32 bits after subtracting isn), because 2^32+1 is closer to the checkpoint.
func TestUnwrapClosestToCheckpoint(t *testing.T) {
	const cycle = uint64(1) << 32
	isn := Wrap32(uint32(cycle - 2))
	checkpoint := cycle
	abs := cycle + 1

	raw := Wrap(abs, isn)
	wantRaw := Wrap32(uint32(cycle - 1))
	if raw != wantRaw {
		t.Fatalf("wrap(%d) = %d, want %d", abs, raw, wantRaw)
	}
	got := raw.Unwrap(isn, checkpoint)
	if got != abs {
		t.Fatalf("unwrap = %d, want %d (not %d)", got, abs, abs-cycle)
	}
}

func TestUnwrapFarFromZero(t *testing.T) {
	// Checkpoint far larger than 2^31 away from any candidate within one
	// cycle of 0 forces k > 0: regression check that k uses integer
	// division rounding consistent with a floor() division.
	isn := Wrap32(5)
	checkpoint := uint64(10_000_000_000)
	raw := Wrap(checkpoint, isn) // choose abs == checkpoint exactly
	got := raw.Unwrap(isn, checkpoint)
	if got != checkpoint {
		t.Fatalf("got %d want %d", got, checkpoint)
	}
}

func TestAddSub(t *testing.T) {
	w := Wrap32(math32Max())
	if w.Add(1) != 0 {
		t.Fatalf("expected wraparound to 0, got %d", w.Add(1))
	}
	if w.Add(1).Sub(w) != 1 {
		t.Fatalf("sub mismatch")
	}
}

func math32Max() uint32 { return ^uint32(0) }

func TestLessThan(t *testing.T) {
	if !Wrap32(1).LessThan(Wrap32(2)) {
		t.Fatal("1 should be less than 2")
	}
	if Wrap32(2).LessThan(Wrap32(1)) {
		t.Fatal("2 should not be less than 1")
	}
	// Wraparound case: a value just past the cycle boundary is "less than"
	// a small value ahead of it in the serial-number sense.
	max := Wrap32(math32Max())
	if !max.LessThan(Wrap32(0)) {
		t.Fatal("wraparound comparison failed")
	}
}
