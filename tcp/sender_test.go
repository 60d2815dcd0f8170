package tcp

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/soypat/ustack/bytestream"
	"github.com/soypat/ustack/metrics"
	"github.com/soypat/ustack/seqnum"
)

// TestSenderSYNRetransmit covers a SYN send, RTO expiry, retransmit, and ack.
func TestSenderSYNRetransmit(t *testing.T) {
	isn := seqnum.Wrap32(1234)
	reg := prometheus.NewRegistry()
	m := metrics.NewSender(reg)
	s := NewSender(SenderConfig{ISN: isn, InitialRTOMs: 1000, Metrics: m})

	// Establish advertised_window=4 as an initial condition, without an
	// accompanying ackno.
	s.Receive(ReceiverMessage{WindowSize: 4})

	outbound := bytestream.New(16)
	s.Push(outbound.Reader())

	seg, ok := s.MaybeSend()
	if !ok {
		t.Fatal("expected a SYN segment")
	}
	if !seg.SYN || seg.Seqno != isn {
		t.Fatalf("expected bare SYN at isn, got %+v", seg)
	}
	if s.SequenceNumbersInFlight() != 1 {
		t.Fatalf("in_flight=%d, want 1", s.SequenceNumbersInFlight())
	}

	s.Tick(999)
	if _, ok := s.MaybeSend(); ok {
		t.Fatal("expected no segment before RTO elapses")
	}

	s.Tick(1)
	seg, ok = s.MaybeSend()
	if !ok || !seg.SYN {
		t.Fatal("expected SYN retransmission")
	}
	if s.ConsecutiveRetransmissions() != 1 {
		t.Fatalf("consecutive_retx=%d, want 1", s.ConsecutiveRetransmissions())
	}
	if s.CurrentRTO() != 2000 {
		t.Fatalf("current_RTO=%d, want 2000", s.CurrentRTO())
	}
	if got := testutil.ToFloat64(m.Retransmissions); got != 1 {
		t.Fatalf("retransmissions counter=%v, want 1", got)
	}

	s.Receive(ReceiverMessage{HasAckno: true, Ackno: isn.Add(1), WindowSize: 4})
	if len(s.outstandingQueue) != 0 {
		t.Fatalf("expected outstanding cleared, got %d", len(s.outstandingQueue))
	}
	if s.tmr.Running() {
		t.Fatal("expected timer stopped")
	}
	if s.ConsecutiveRetransmissions() != 0 {
		t.Fatalf("consecutive_retx=%d, want 0", s.ConsecutiveRetransmissions())
	}
	if s.CurrentRTO() != 1000 {
		t.Fatalf("current_RTO=%d, want 1000", s.CurrentRTO())
	}
}

func TestNewSenderRejectsNegativeMaxPayload(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected NewSender to panic on a negative MaxPayloadSize")
		}
	}()
	NewSender(SenderConfig{ISN: seqnum.Wrap32(0), InitialRTOMs: 1000, MaxPayloadSize: -1})
}

func TestSenderPushRespectsWindow(t *testing.T) {
	isn := seqnum.Wrap32(0)
	s := NewSender(SenderConfig{ISN: isn, InitialRTOMs: 1000, MaxPayloadSize: 2})
	s.Receive(ReceiverMessage{WindowSize: 5})

	bs := bytestream.New(32)
	bs.Writer().Push([]byte("abcdefgh"))
	s.Push(bs.Reader())

	var total int
	for {
		seg, ok := s.MaybeSend()
		if !ok {
			break
		}
		total += seg.SequenceLength()
	}
	if inFlight := s.SequenceNumbersInFlight(); inFlight > 5 {
		t.Fatalf("in_flight=%d exceeds window 5", inFlight)
	}
}

func TestSenderUnknownAcknoIgnored(t *testing.T) {
	isn := seqnum.Wrap32(100)
	s := NewSender(SenderConfig{ISN: isn, InitialRTOMs: 500})
	s.Receive(ReceiverMessage{WindowSize: 4})
	s.Push(bytestream.New(8).Reader())
	s.MaybeSend()

	outstandingBefore := len(s.outstandingQueue)
	s.Tick(250) // burn down most of the 500ms RTO before the spurious ack arrives.

	s.Receive(ReceiverMessage{HasAckno: true, Ackno: isn.Add(99), WindowSize: 4})
	if len(s.outstandingQueue) != outstandingBefore {
		t.Fatalf("spurious ackno must leave outstandingQueue untouched, got len=%d want %d", len(s.outstandingQueue), outstandingBefore)
	}
	if !s.tmr.Running() {
		t.Fatal("spurious ackno must not stop the retransmission timer")
	}
	// Only 250ms remained before the spurious ack; had it wrongly re-armed
	// the timer to a fresh 500ms RTO, this tick would not expire it.
	s.Tick(251)
	if !s.tmr.Expired() {
		t.Fatal("spurious ackno must not have re-armed the timer to a fresh full RTO")
	}
	if s.highestAcknoAbs != 0 {
		t.Fatalf("spurious ackno must be ignored, highest_ackno_abs=%d", s.highestAcknoAbs)
	}
}
