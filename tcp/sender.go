package tcp

import (
	"log/slog"

	"github.com/soypat/ustack/bytestream"
	"github.com/soypat/ustack/internal"
	"github.com/soypat/ustack/metrics"
	"github.com/soypat/ustack/seqnum"
)

// DefaultMaxPayloadSize is MAX_PAYLOAD_SIZE in canonical deployments: the
// largest payload a single outgoing segment carries.
const DefaultMaxPayloadSize = 1000

// outSegment is a segment awaiting transmission or acknowledgement, tagged
// with the absolute sequence number of its first sequence-consuming unit so
// the sender can compute its end-absolute-seqno without re-deriving it from
// the wrapped wire value.
type outSegment struct {
	msg     SenderMessage
	absSeq  uint64
}

func (s outSegment) endAbs() uint64 { return s.msg.endAbs(s.absSeq) }

// SenderConfig configures a Sender at construction, following the
// Configure/ConnConfig idiom used by github.com/soypat/lneto/tcp.Conn.
type SenderConfig struct {
	ISN            seqnum.Wrap32
	InitialRTOMs   uint32
	MaxPayloadSize int
	Logger         *slog.Logger
	Metrics        *metrics.Sender // optional; nil disables counters.
}

// Sender is the sending half of a TCP connection: it turns bytes pulled from
// a bytestream.Reader into segments, paces them against the peer's
// advertised window, and retransmits unacknowledged segments on a
// virtual-time retransmission timer with exponential backoff.
//
// Sequence numbers are tracked as absolute (unwrapped) uint64 offsets from
// isn internally; SenderMessage.Seqno is the only externally visible wire
// form.
type Sender struct {
	logger

	isn            seqnum.Wrap32
	maxPayloadSize int

	nextAbsSeqno     uint64
	highestAcknoAbs  uint64
	advertisedWindow uint16

	rto             internal.RTOBackoff
	tmr             timer
	consecutiveRetx int

	pendingSendQueue []outSegment
	outstandingQueue []outSegment
	// ackScratch is the alternate buffer outstandingQueue is filtered into on
	// each accepted ack, ping-ponged with outstandingQueue via internal.SliceReuse
	// to avoid reallocating on every ack.
	ackScratch  []outSegment
	validAcknos map[uint64]struct{}

	synSent bool
	finSent bool

	metrics *metrics.Sender
}

// NewSender constructs a Sender per cfg. Panics on a zero InitialRTOMs or a
// negative MaxPayloadSize, validating construction-time configuration rather
// than every call. A zero MaxPayloadSize defaults to DefaultMaxPayloadSize.
func NewSender(cfg SenderConfig) *Sender {
	if cfg.InitialRTOMs == 0 {
		panic(errZeroInitialRTO)
	}
	if cfg.MaxPayloadSize < 0 {
		panic(errZeroMaxPayload)
	}
	maxPayload := cfg.MaxPayloadSize
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayloadSize
	}
	return &Sender{
		logger:         logger{log: cfg.Logger},
		isn:            cfg.ISN,
		maxPayloadSize: maxPayload,
		rto:            internal.NewRTOBackoff(cfg.InitialRTOMs),
		validAcknos:    make(map[uint64]struct{}, 4),
		metrics:        cfg.Metrics,
	}
}

// effectiveWindow is max(advertised_window, 1), enabling a single
// zero-window probe byte while the peer advertises a zero window.
func (s *Sender) effectiveWindow() uint64 {
	if s.advertisedWindow == 0 {
		return 1
	}
	return uint64(s.advertisedWindow)
}

// SequenceNumbersInFlight returns next_abs_seqno - highest_ackno_abs.
func (s *Sender) SequenceNumbersInFlight() uint64 {
	return s.nextAbsSeqno - s.highestAcknoAbs
}

// Push fills the allowed window with new segments read from outbound,
// filling the peer's advertised window with new segments.
func (s *Sender) Push(outbound bytestream.Reader) {
	for {
		window := s.effectiveWindow()
		inFlight := s.SequenceNumbersInFlight()
		if inFlight >= window {
			break
		}

		seg := SenderMessage{Seqno: seqnum.Wrap(s.nextAbsSeqno, s.isn)}
		synBit := uint64(0)
		if !s.synSent {
			seg.SYN = true
			synBit = 1
		}

		room := s.highestAcknoAbs + window - s.nextAbsSeqno - synBit
		payloadLen := room
		if uint64(s.maxPayloadSize) < payloadLen {
			payloadLen = uint64(s.maxPayloadSize)
		}
		if payloadLen > 0 {
			chunk := outbound.Peek()
			if uint64(len(chunk)) > payloadLen {
				chunk = chunk[:payloadLen]
			}
			if len(chunk) > 0 {
				seg.Payload = append([]byte(nil), chunk...)
				outbound.Pop(len(chunk))
			}
		}

		fitsFinRoom := room - uint64(len(seg.Payload))
		if outbound.IsFinished() && !s.finSent && fitsFinRoom > 0 {
			seg.FIN = true
		}

		if seg.SequenceLength() == 0 {
			break
		}

		s.pendingSendQueue = append(s.pendingSendQueue, outSegment{msg: seg, absSeq: s.nextAbsSeqno})
		s.nextAbsSeqno += uint64(seg.SequenceLength())
		if seg.SYN {
			s.synSent = true
		}
		if seg.FIN {
			s.finSent = true
		}
	}
}

// MaybeSend returns the next segment to transmit, if any: a retransmission
// takes priority over new data.
func (s *Sender) MaybeSend() (SenderMessage, bool) {
	if s.tmr.Expired() && len(s.outstandingQueue) > 0 {
		seg := s.outstandingQueue[0]
		s.tmr.Start(uint64(s.rto.Value()))
		s.trace("retransmit", slog.Uint64("absSeq", seg.absSeq))
		if s.metrics != nil {
			s.metrics.IncRetransmission()
		}
		return seg.msg, true
	}

	if len(s.pendingSendQueue) == 0 {
		return SenderMessage{}, false
	}
	seg := s.pendingSendQueue[0]
	if seg.endAbs()-s.highestAcknoAbs > s.effectiveWindow() {
		return SenderMessage{}, false
	}
	s.pendingSendQueue = s.pendingSendQueue[1:]

	if !s.tmr.Running() {
		s.tmr.Start(uint64(s.rto.Value()))
	}
	s.outstandingQueue = append(s.outstandingQueue, seg)
	s.validAcknos[seg.endAbs()] = struct{}{}
	return seg.msg, true
}

// SendEmptyMessage produces a bare ack-only segment without mutating state,
// for the owner to use as a reply carrying only flow-control information.
func (s *Sender) SendEmptyMessage() SenderMessage {
	return SenderMessage{Seqno: seqnum.Wrap(s.nextAbsSeqno, s.isn)}
}

// Receive applies an incoming TCPReceiverMessage applying an accepted ack and refreshing the retransmission timer.
// A spurious ackno not found in validAcknos is rejected outright, leaving the
// timer and outstandingQueue untouched: re-arming the timer on a rejected ack
// would let a stream of stale acks indefinitely postpone a legitimate
// retransmission.
func (s *Sender) Receive(msg ReceiverMessage) {
	s.advertisedWindow = msg.WindowSize

	if msg.HasAckno {
		checkpoint := s.nextAbsSeqno
		ackAbs := msg.Ackno.Unwrap(s.isn, checkpoint)
		if _, ok := s.validAcknos[ackAbs]; !ok {
			return
		}
		delete(s.validAcknos, ackAbs)
		s.highestAcknoAbs = ackAbs
		s.rto.Reset()
		s.consecutiveRetx = 0

		internal.SliceReuse(&s.ackScratch, len(s.outstandingQueue))
		for _, seg := range s.outstandingQueue {
			if seg.endAbs() <= s.highestAcknoAbs {
				continue
			}
			s.ackScratch = append(s.ackScratch, seg)
		}
		s.outstandingQueue, s.ackScratch = s.ackScratch, s.outstandingQueue
	}

	if len(s.outstandingQueue) > 0 {
		s.tmr.Start(uint64(s.rto.Value()))
	} else {
		s.tmr.Stop()
	}
}

// Tick advances virtual time by elapsedMs milliseconds advancing the retransmission timer and backing off on expiry.
func (s *Sender) Tick(elapsedMs uint64) {
	wasRunning := s.tmr.Running()
	s.tmr.Tick(elapsedMs)
	if wasRunning && s.tmr.Expired() && s.advertisedWindow != 0 {
		s.consecutiveRetx++
		s.rto.Double()
	}
}

// ConsecutiveRetransmissions returns the number of back-to-back timer
// expirations observed since the last accepted ack.
func (s *Sender) ConsecutiveRetransmissions() int { return s.consecutiveRetx }

// CurrentRTO returns the retransmission timeout in effect, in milliseconds.
func (s *Sender) CurrentRTO() uint32 { return s.rto.Value() }
