package tcp

import (
	"log/slog"

	"github.com/soypat/ustack/bytestream"
	"github.com/soypat/ustack/reassembler"
	"github.com/soypat/ustack/seqnum"
)

// ReceiverConfig configures a Receiver at construction.
type ReceiverConfig struct {
	Logger *slog.Logger
}

// Receiver is the receiving half of a TCP connection: it waits for the SYN
// to learn the peer's initial sequence number, unwraps incoming wire
// sequence numbers into the reassembler's absolute stream-index space, and
// reports flow-control state back to the peer via Send.
type Receiver struct {
	logger

	synReceived bool
	isn         seqnum.Wrap32
}

// NewReceiver constructs a Receiver per cfg.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	return &Receiver{logger: logger{log: cfg.Logger}}
}

// IsSYNReceived reports whether the initial SYN has been observed.
func (r *Receiver) IsSYNReceived() bool { return r.synReceived }

// ISN returns the peer's initial sequence number, valid once
// IsSYNReceived is true.
func (r *Receiver) ISN() seqnum.Wrap32 { return r.isn }

// Receive applies an incoming TCPSenderMessage, as follows: the SYN establishes isn; subsequent segments unwrap against a
// checkpoint derived from how many bytes have already been pushed to
// inbound, and are handed to reassembler keyed by stream index (absolute
// index minus one, to exclude the SYN's own sequence-number slot).
func (r *Receiver) Receive(msg SenderMessage, ra *reassembler.Reassembler, inbound bytestream.Writer) {
	if !r.synReceived {
		if !msg.SYN {
			r.trace("dropped segment before SYN")
			return
		}
		r.isn = msg.Seqno
		r.synReceived = true
	}

	checkpoint := inbound.BytesPushed() + 1
	abs := msg.Seqno.Unwrap(r.isn, checkpoint)

	var streamIndex uint64
	if msg.SYN {
		streamIndex = 0
	} else if abs > 0 {
		streamIndex = abs - 1
	}

	ra.Insert(streamIndex, msg.Payload, msg.FIN, inbound)
}

// Send produces the TCPReceiverMessage to report back to the peer: the window
// is inbound's available capacity capped at seqnum.MaxWindow, and once the
// SYN has been received the ackno is isn advanced past the SYN, every byte
// pushed to inbound, and the FIN if inbound is closed.
func (r *Receiver) Send(inbound bytestream.Reader) ReceiverMessage {
	window := inbound.AvailableCapacity()
	if window > seqnum.MaxWindow {
		window = seqnum.MaxWindow
	}
	out := ReceiverMessage{WindowSize: uint16(window)}
	if !r.synReceived {
		return out
	}

	offset := inbound.BytesPushed() + 1
	if inbound.IsClosed() {
		offset++
	}
	out.Ackno = r.isn.Add(uint32(offset))
	out.HasAckno = true
	return out
}
