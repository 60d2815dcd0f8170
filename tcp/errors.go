package tcp

import "errors"

var (
	// errZeroInitialRTO guards against a misconfigured Sender: an initial
	// RTO of zero would never give a peer time to ack before retransmitting.
	errZeroInitialRTO = errors.New("tcp: initial RTO must be nonzero")
	// errZeroMaxPayload guards against a negative max payload size, with
	// which a Sender could never make progress on push (zero selects
	// DefaultMaxPayloadSize).
	errZeroMaxPayload = errors.New("tcp: max payload size must not be negative")
)
