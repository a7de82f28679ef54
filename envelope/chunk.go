package envelope

import "time"

// Reassembler accumulates chunks of a server->client response, enforcing
// that they arrive in order starting at chunk-id 1 with a stable
// chunk-count; Expired lets the caller enforce the gap wait window (spec
// §4.2).
type Reassembler struct {
	total      int
	chunks     [][]byte
	nextID     int
	lastActive time.Time
}

// NewReassembler starts an empty reassembly. The expected chunk count is
// taken from the first chunk passed to Add.
func NewReassembler() *Reassembler {
	return &Reassembler{nextID: 1, lastActive: time.Now()}
}

// Add records chunk chunkID of chunkCount total chunks. It returns
// *MessageReceiveFailure if chunkCount drifts from a previously seen
// value or chunkID is out of the expected sequence.
func (r *Reassembler) Add(chunkCount, chunkID int, payload []byte) error {
	if r.total == 0 {
		r.total = chunkCount
	} else if r.total != chunkCount {
		return &MessageReceiveFailure{Reason: ReasonChunkCountDrift}
	}
	if chunkID != r.nextID {
		return &MessageReceiveFailure{Reason: ReasonChunkGap}
	}
	r.chunks = append(r.chunks, payload)
	r.nextID++
	r.lastActive = time.Now()
	return nil
}

// Done reports whether all chunks 1..total have been received.
func (r *Reassembler) Done() bool {
	return r.total > 0 && r.nextID > r.total
}

// Bytes concatenates the accumulated chunks in order.
func (r *Reassembler) Bytes() []byte {
	var size int
	for _, c := range r.chunks {
		size += len(c)
	}
	out := make([]byte, 0, size)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	return out
}

// Expired reports whether more than window has elapsed since the last
// chunk was accepted, i.e. the gap wait window has been exceeded.
func (r *Reassembler) Expired(window time.Duration) bool {
	return time.Since(r.lastActive) > window
}
