// Package tcp implements the receiver and sender halves of a minimal TCP
// connection: flow control, cumulative acknowledgement, and retransmission
// on top of a reassembler.Reassembler and a bytestream.ByteStream. It
// follows the logging and configuration idioms of
// github.com/soypat/lneto/tcp (embedded logger, slog attrs, Config structs
// passed to constructors) while implementing the simpler sender/receiver contract
// this package targets instead of a full RFC 9293 TCB.
package tcp

import "github.com/soypat/ustack/seqnum"

// SenderMessage is an outbound TCP segment as produced by Sender.
type SenderMessage struct {
	Seqno   seqnum.Wrap32
	SYN     bool
	Payload []byte
	FIN     bool
}

// SequenceLength returns SYN + len(Payload) + FIN, the number of sequence
// numbers this segment consumes.
func (m SenderMessage) SequenceLength() int {
	n := len(m.Payload)
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// endAbs returns the absolute sequence number one past the last sequence
// number this segment occupies, given the absolute sequence number of the
// segment's first byte.
func (m SenderMessage) endAbs(startAbs uint64) uint64 {
	return startAbs + uint64(m.SequenceLength())
}

// ReceiverMessage is an inbound flow-control/ack message as produced by
// Receiver.Send and consumed by Sender.Receive.
type ReceiverMessage struct {
	Ackno      seqnum.Wrap32
	HasAckno   bool
	WindowSize uint16
}
