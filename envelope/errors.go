package envelope

import "fmt"

// InvalidMessage is raised by the codec when a frame or its payload
// cannot be parsed at all (garbled preamble, truncated bytes).
type InvalidMessage struct {
	Reason string
}

func (e *InvalidMessage) Error() string { return fmt.Sprintf("invalid message: %s", e.Reason) }

// MessageReceiveFailure covers failures discovered while assembling a
// received message, such as a chunk-gap timeout.
type MessageReceiveFailure struct {
	Reason string
}

func (e *MessageReceiveFailure) Error() string {
	return fmt.Sprintf("message receive failure: %s", e.Reason)
}

// Chunk gap reasons, used as MessageReceiveFailure.Reason values.
const (
	ReasonChunkGap        = "chunk_gap"
	ReasonChunkCountDrift = "chunk_count_drift"
)
